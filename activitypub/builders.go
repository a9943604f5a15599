package activitypub

import (
	"time"

	"github.com/deemkeen/loxodon/domain"
	"github.com/deemkeen/loxodon/util"
	"github.com/google/uuid"
)

const activityStreamsContext = "https://www.w3.org/ns/activitystreams"

// AccountActorURI returns the actor URI of a local account
func AccountActorURI(acc *domain.Account, conf *util.AppConfig) string {
	if acc.IsInstance {
		return conf.InstanceActorURI()
	}
	return conf.ActorURI(acc.Username)
}

func newActivityId(conf *util.AppConfig) string {
	return conf.BaseURL() + "/activities/" + uuid.New().String()
}

// BuildAccept wraps a received Follow in an Accept
func BuildAccept(acc *domain.Account, followActivity *Activity, conf *util.AppConfig) map[string]interface{} {
	return map[string]interface{}{
		"@context": activityStreamsContext,
		"id":       newActivityId(conf),
		"type":     "Accept",
		"actor":    AccountActorURI(acc, conf),
		"object": map[string]interface{}{
			"id":     followActivity.ID,
			"type":   "Follow",
			"actor":  followActivity.Actor,
			"object": followActivity.ObjectId(),
		},
	}
}

// BuildCreateNote wraps a local post in a Create addressed per its
// visibility scope
func BuildCreateNote(acc *domain.Account, post *domain.Post, conf *util.AppConfig) map[string]interface{} {
	actorURI := AccountActorURI(acc, conf)
	objectURI := conf.ObjectURI(post.Id.String())

	note := map[string]interface{}{
		"id":           objectURI,
		"type":         "Note",
		"attributedTo": actorURI,
		"content":      post.Content,
		"published":    post.CreatedAt.UTC().Format(time.RFC3339),
		"sensitive":    post.Sensitive,
	}
	if post.ContentWarning != "" {
		note["summary"] = post.ContentWarning
	}
	if post.InReplyToId != nil {
		note["inReplyTo"] = conf.ObjectURI(post.InReplyToId.String())
	}

	to, cc := addressing(actorURI, post.Visibility)
	note["to"] = to
	note["cc"] = cc

	return map[string]interface{}{
		"@context": activityStreamsContext,
		"id":       objectURI + "/activity",
		"type":     "Create",
		"actor":    actorURI,
		"to":       to,
		"cc":       cc,
		"object":   note,
	}
}

// addressing maps a visibility scope onto to/cc lists
func addressing(actorURI string, visibility string) ([]string, []string) {
	followers := actorURI + "/followers"
	switch visibility {
	case domain.VisibilityPublic:
		return []string{publicAudienceMarkers[0]}, []string{followers}
	case domain.VisibilityFollowers:
		return []string{followers}, []string{}
	case domain.VisibilitySubscribers:
		return []string{actorURI + "/subscribers"}, []string{}
	default:
		return []string{}, []string{}
	}
}

// BuildFollow creates a Follow activity for a remote actor
func BuildFollow(acc *domain.Account, target *domain.RemoteAccount, followURI string, conf *util.AppConfig) map[string]interface{} {
	return map[string]interface{}{
		"@context": activityStreamsContext,
		"id":       followURI,
		"type":     "Follow",
		"actor":    AccountActorURI(acc, conf),
		"object":   target.ActorURI,
	}
}

// BuildUndoFollow reverses a previously sent Follow
func BuildUndoFollow(acc *domain.Account, target *domain.RemoteAccount, followURI string, conf *util.AppConfig) map[string]interface{} {
	return map[string]interface{}{
		"@context": activityStreamsContext,
		"id":       newActivityId(conf),
		"type":     "Undo",
		"actor":    AccountActorURI(acc, conf),
		"object":   BuildFollow(acc, target, followURI, conf),
	}
}

// BuildLike creates a Like of a remote object
func BuildLike(acc *domain.Account, objectURI string, likeURI string, conf *util.AppConfig) map[string]interface{} {
	return map[string]interface{}{
		"@context": activityStreamsContext,
		"id":       likeURI,
		"type":     "Like",
		"actor":    AccountActorURI(acc, conf),
		"object":   objectURI,
	}
}

// BuildUndoLike reverses a previously sent Like
func BuildUndoLike(acc *domain.Account, objectURI string, likeURI string, conf *util.AppConfig) map[string]interface{} {
	return map[string]interface{}{
		"@context": activityStreamsContext,
		"id":       newActivityId(conf),
		"type":     "Undo",
		"actor":    AccountActorURI(acc, conf),
		"object":   BuildLike(acc, objectURI, likeURI, conf),
	}
}

// BuildAnnounce creates a public Announce (repost) of an object
func BuildAnnounce(acc *domain.Account, objectURI string, announceURI string, conf *util.AppConfig) map[string]interface{} {
	actorURI := AccountActorURI(acc, conf)
	return map[string]interface{}{
		"@context": activityStreamsContext,
		"id":       announceURI,
		"type":     "Announce",
		"actor":    actorURI,
		"to":       []string{publicAudienceMarkers[0]},
		"cc":       []string{actorURI + "/followers"},
		"object":   objectURI,
	}
}

// BuildUndoAnnounce reverses a previously sent Announce
func BuildUndoAnnounce(acc *domain.Account, objectURI string, announceURI string, conf *util.AppConfig) map[string]interface{} {
	return map[string]interface{}{
		"@context": activityStreamsContext,
		"id":       newActivityId(conf),
		"type":     "Undo",
		"actor":    AccountActorURI(acc, conf),
		"object":   BuildAnnounce(acc, objectURI, announceURI, conf),
	}
}

// BuildDeleteNote creates a Delete with a Tombstone for a local post
func BuildDeleteNote(acc *domain.Account, post *domain.Post, conf *util.AppConfig) map[string]interface{} {
	objectURI := conf.ObjectURI(post.Id.String())
	return map[string]interface{}{
		"@context": activityStreamsContext,
		"id":       newActivityId(conf),
		"type":     "Delete",
		"actor":    AccountActorURI(acc, conf),
		"to":       []string{publicAudienceMarkers[0]},
		"object": map[string]interface{}{
			"id":   objectURI,
			"type": "Tombstone",
		},
	}
}

// BuildUpdatePerson announces a profile change to followers
func BuildUpdatePerson(acc *domain.Account, conf *util.AppConfig) map[string]interface{} {
	actorURI := AccountActorURI(acc, conf)
	return map[string]interface{}{
		"@context": activityStreamsContext,
		"id":       newActivityId(conf),
		"type":     "Update",
		"actor":    actorURI,
		"to":       []string{publicAudienceMarkers[0]},
		"object":   BuildActorDocument(acc, conf),
	}
}

// BuildActorDocument renders a local account as an actor document
func BuildActorDocument(acc *domain.Account, conf *util.AppConfig) map[string]interface{} {
	actorURI := AccountActorURI(acc, conf)
	actorType := "Person"
	if acc.IsInstance {
		actorType = "Application"
	}
	doc := map[string]interface{}{
		"@context": []string{
			activityStreamsContext,
			"https://w3id.org/security/v1",
		},
		"id":                actorURI,
		"type":              actorType,
		"preferredUsername": acc.Username,
		"name":              acc.DisplayName,
		"summary":           acc.Summary,
		"inbox":             actorURI + "/inbox",
		"outbox":            actorURI + "/outbox",
		"followers":         actorURI + "/followers",
		"following":         actorURI + "/following",
		"subscribers":       actorURI + "/subscribers",
		"publicKey": map[string]interface{}{
			"id":           actorURI + "#main-key",
			"owner":        actorURI,
			"publicKeyPem": acc.WebPublicKey,
		},
	}
	if acc.AvatarURL != "" {
		doc["icon"] = map[string]interface{}{
			"type": "Image",
			"url":  acc.AvatarURL,
		}
	}
	return doc
}
