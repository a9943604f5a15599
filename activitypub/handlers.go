package activitypub

import (
	"log"
	"strings"
	"time"

	"github.com/deemkeen/loxodon/db"
	"github.com/deemkeen/loxodon/domain"
	"github.com/deemkeen/loxodon/util"
	"github.com/google/uuid"
)

func init() {
	for _, objectType := range []string{"Note", "Article", "Page", "Question"} {
		RegisterHandler("Create", objectType, handleCreate)
	}
	RegisterHandler("Announce", "*", handleAnnounce)
	RegisterHandler("Like", "*", handleLike)
	RegisterHandler("Follow", "*", handleFollow)
	RegisterHandler("Accept", "*", handleAccept)
	RegisterHandler("Reject", "*", handleReject)
	RegisterHandler("Undo", "*", handleUndo)
	RegisterHandler("Delete", "*", handleDelete)
	RegisterHandler("Update", "Person", handleUpdatePerson)
	RegisterHandler("Update", "Note", handleUpdateNote)
	RegisterHandler("Move", "*", handleMove)
}

// localAccountForURI resolves a local actor URI to its account. Covers
// both user actors and the instance actor.
func localAccountForURI(uri string, conf *util.AppConfig) *domain.Account {
	if uri == conf.InstanceActorURI() {
		_, acc := db.GetDB().ReadInstanceAcc()
		return acc
	}
	prefix := conf.BaseURL() + "/users/"
	if !strings.HasPrefix(uri, prefix) {
		return nil
	}
	username := strings.TrimPrefix(uri, prefix)
	if username == "" || strings.Contains(username, "/") {
		return nil
	}
	_, acc := db.GetDB().ReadAccByUsername(username)
	return acc
}

// handleCreate stores the delivered object as a post, resolving its
// reply parent first
func handleCreate(conf *util.AppConfig, activity *Activity, sender *domain.RemoteAccount) error {
	var doc ObjectDocument
	if err := activity.inlineObject(&doc); err != nil {
		return err
	}
	if doc.Attribution() != "" && doc.Attribution() != sender.ActorURI {
		return &ValidationError{Reason: "object attributedTo does not match sender"}
	}

	var parentId *uuid.UUID
	if doc.InReplyTo != "" {
		parent, err := GetOrFetchPost(doc.InReplyTo, conf)
		if err != nil {
			if isTerminal(err) {
				log.Printf("Inbox: parent %s unresolvable, storing %s without thread: %v", doc.InReplyTo, doc.Id, err)
			} else {
				return err
			}
		} else {
			parentId = &parent.Id
		}
	}

	_, err := createRemotePostFromObject(&doc, parentId, activity.ID, conf)
	return err
}

// handleAnnounce stores a repost of the announced object
func handleAnnounce(conf *util.AppConfig, activity *Activity, sender *domain.RemoteAccount) error {
	err, existing := db.GetDB().ReadPostByActivityURI(activity.ID)
	if err == nil && existing != nil {
		return nil
	}

	objectId := activity.ObjectId()
	if objectId == "" {
		return &ValidationError{Reason: "announce without object"}
	}

	target, err := GetOrFetchPost(objectId, conf)
	if err != nil {
		return err
	}

	repost := &domain.Post{
		Id:          uuid.New(),
		AccountId:   sender.Id,
		Author:      sender.Address(),
		Visibility:  ParseAudience(toStrings(activity.To), toStrings(activity.Cc), sender),
		ActivityURI: activity.ID,
		RepostOfId:  &target.Id,
		Local:       false,
		CreatedAt:   time.Now(),
	}
	if err := db.GetDB().CreatePost(repost); err != nil {
		if db.IsUniqueViolation(err) {
			return nil
		}
		return err
	}

	if target.Local {
		notifyPostOwner(target, sender, domain.NotificationRepost)
	}
	return nil
}

// handleLike records a reaction on a known post. Likes for posts this
// instance never stored are dropped without error.
func handleLike(conf *util.AppConfig, activity *Activity, sender *domain.RemoteAccount) error {
	err, existing := db.GetDB().ReadReactionByActivityURI(activity.ID)
	if err == nil && existing != nil {
		return nil
	}

	objectId := activity.ObjectId()
	post := findKnownPost(objectId, conf)
	if post == nil {
		log.Printf("Inbox: like for unknown object %s, dropping", objectId)
		return nil
	}

	reaction := &domain.Reaction{
		Id:          uuid.New(),
		AccountId:   sender.Id,
		PostId:      post.Id,
		ActivityURI: activity.ID,
		CreatedAt:   time.Now(),
	}
	if err := db.GetDB().CreateReaction(reaction); err != nil {
		if db.IsUniqueViolation(err) {
			return nil
		}
		return err
	}

	if post.Local {
		notifyPostOwner(post, sender, domain.NotificationLike)
	}
	return nil
}

// findKnownPost looks a URI up locally, never fetching
func findKnownPost(objectId string, conf *util.AppConfig) *domain.Post {
	if objectId == "" {
		return nil
	}
	if IsLocalObjectURI(objectId, conf) {
		postId, err := localObjectId(objectId, conf)
		if err != nil {
			return nil
		}
		_, post := db.GetDB().ReadPostById(postId)
		return post
	}
	_, post := db.GetDB().ReadPostByObjectURI(objectId)
	return post
}

func notifyPostOwner(post *domain.Post, actor *domain.RemoteAccount, notificationType string) {
	notification := &domain.Notification{
		Id:          uuid.New(),
		RecipientId: post.AccountId,
		ActorId:     actor.Id,
		PostId:      &post.Id,
		Type:        notificationType,
		CreatedAt:   time.Now(),
	}
	if err := db.GetDB().CreateNotification(notification); err != nil {
		log.Printf("Inbox: failed to create %s notification: %v", notificationType, err)
	}
}

// handleFollow stores the follow and answers with an Accept. Re-delivered
// follows re-send the Accept without creating a second row.
func handleFollow(conf *util.AppConfig, activity *Activity, sender *domain.RemoteAccount) error {
	targetURI := activity.ObjectId()
	target := localAccountForURI(targetURI, conf)
	if target == nil {
		return &ValidationError{Reason: "follow target is not a local actor"}
	}

	_, existing := db.GetDB().ReadFollowByURI(activity.ID)
	if existing == nil {
		follow := &domain.Follow{
			Id:              uuid.New(),
			AccountId:       sender.Id,
			TargetAccountId: target.Id,
			URI:             activity.ID,
			Accepted:        true,
			CreatedAt:       time.Now(),
		}
		if err := db.GetDB().CreateFollow(follow); err != nil && !db.IsUniqueViolation(err) {
			return err
		}
		notification := &domain.Notification{
			Id:          uuid.New(),
			RecipientId: target.Id,
			ActorId:     sender.Id,
			Type:        domain.NotificationFollow,
			CreatedAt:   time.Now(),
		}
		if err := db.GetDB().CreateNotification(notification); err != nil {
			log.Printf("Inbox: failed to create follow notification: %v", err)
		}
	}

	accept := BuildAccept(target, activity, conf)
	return Deliver(conf, target, accept, []domain.RemoteAccount{*sender})
}

// handleAccept marks a follow we sent as accepted
func handleAccept(conf *util.AppConfig, activity *Activity, sender *domain.RemoteAccount) error {
	followURI := activity.ObjectId()
	if followURI == "" {
		return &ValidationError{Reason: "accept without object"}
	}
	return db.GetDB().AcceptFollowByURI(followURI)
}

// handleReject removes a follow the remote side declined
func handleReject(conf *util.AppConfig, activity *Activity, sender *domain.RemoteAccount) error {
	followURI := activity.ObjectId()
	if followURI == "" {
		return &ValidationError{Reason: "reject without object"}
	}
	return db.GetDB().DeleteFollowByURI(followURI)
}

// handleUndo reverses a previous Follow, Like or Announce. Undoing
// something that was never stored is a no-op.
func handleUndo(conf *util.AppConfig, activity *Activity, sender *domain.RemoteAccount) error {
	innerId := activity.ObjectId()
	if innerId == "" {
		return &ValidationError{Reason: "undo without object"}
	}

	switch activity.objectType() {
	case "Follow":
		return db.GetDB().DeleteFollowByURI(innerId)
	case "Like":
		return db.GetDB().DeleteReactionByActivityURI(innerId)
	case "Announce":
		err, repost := db.GetDB().ReadPostByActivityURI(innerId)
		if err != nil || repost == nil {
			return nil
		}
		return db.GetDB().DeletePost(repost.Id)
	case "":
		// Bare URI: the undone activity could be any of the three
		if err := db.GetDB().DeleteFollowByURI(innerId); err != nil {
			return err
		}
		if err := db.GetDB().DeleteReactionByActivityURI(innerId); err != nil {
			return err
		}
		err, repost := db.GetDB().ReadPostByActivityURI(innerId)
		if err == nil && repost != nil {
			return db.GetDB().DeletePost(repost.Id)
		}
		return nil
	default:
		log.Printf("Inbox: ignoring undo of %s from %s", activity.objectType(), sender.ActorURI)
		return nil
	}
}

// handleDelete removes a post, or the sender's whole account when the
// deleted object is the actor itself
func handleDelete(conf *util.AppConfig, activity *Activity, sender *domain.RemoteAccount) error {
	objectId := activity.ObjectId()
	if objectId == "" {
		return &ValidationError{Reason: "delete without object"}
	}

	if objectId == activity.Actor {
		log.Printf("Inbox: deleting remote account %s", sender.ActorURI)
		if err := db.GetDB().DeleteFollowsByAccountId(sender.Id); err != nil {
			return err
		}
		if err := db.GetDB().DeletePostsByAccountId(sender.Id); err != nil {
			return err
		}
		return db.GetDB().DeleteRemoteAccount(sender.Id)
	}

	err, post := db.GetDB().ReadPostByObjectURI(objectId)
	if err != nil || post == nil {
		// Deletes for objects never stored are acknowledged silently
		return nil
	}
	if post.AccountId != sender.Id {
		return &ValidationError{Reason: "delete for a post the sender does not own"}
	}
	return db.GetDB().DeletePost(post.Id)
}

// handleUpdatePerson refreshes the cached profile of the sender
func handleUpdatePerson(conf *util.AppConfig, activity *Activity, sender *domain.RemoteAccount) error {
	if activity.ObjectId() != sender.ActorURI {
		return &ValidationError{Reason: "update for an actor the sender does not own"}
	}

	fetched, err := FetchRemoteActor(sender.ActorURI, conf, sender)
	if err != nil {
		return err
	}
	if fetched.PublicKeyPem != sender.PublicKeyPem {
		log.Printf("Inbox: public key of %s changed", sender.ActorURI)
	}
	fetched.Id = sender.Id
	return db.GetDB().UpdateRemoteAccount(fetched)
}

// handleUpdateNote applies an edit to a stored post. Edits of unknown
// posts are ignored.
func handleUpdateNote(conf *util.AppConfig, activity *Activity, sender *domain.RemoteAccount) error {
	var doc ObjectDocument
	if err := activity.inlineObject(&doc); err != nil {
		return err
	}

	err, post := db.GetDB().ReadPostByObjectURI(doc.Id)
	if err != nil || post == nil {
		return nil
	}
	if post.AccountId != sender.Id {
		return &ValidationError{Reason: "update for a post the sender does not own"}
	}
	return db.GetDB().UpdatePostContent(post.Id, util.SanitizeContent(doc.Content), doc.Sensitive, doc.Summary)
}

// handleMove acknowledges account migrations. Follower migration is not
// implemented; the move is only recorded in the log.
func handleMove(conf *util.AppConfig, activity *Activity, sender *domain.RemoteAccount) error {
	log.Printf("Inbox: actor %s moved to %s", sender.ActorURI, activity.ObjectId())
	return nil
}
