package activitypub

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode"

	"github.com/deemkeen/loxodon/db"
	"github.com/deemkeen/loxodon/domain"
	"github.com/deemkeen/loxodon/util"
	"github.com/google/uuid"
)

// Attachments beyond this count are ignored
const maxAttachments = 4

// The public audience collection, plus the non-standard spellings some
// servers put on the wire
var publicAudienceMarkers = []string{
	"https://www.w3.org/ns/activitystreams#Public",
	"as:Public",
	"Public",
}

// Tag is a mention or hashtag inside an object
type Tag struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Href string `json:"href"`
}

// Attachment is a media document attached to an object
type Attachment struct {
	Type      string `json:"type"`
	MediaType string `json:"mediaType"`
	URL       string `json:"url"`
}

// ObjectDocument is the wire representation of a Note-like object
type ObjectDocument struct {
	Id           string       `json:"id"`
	Type         string       `json:"type"`
	AttributedTo interface{}  `json:"attributedTo"`
	Content      string       `json:"content"`
	Published    string       `json:"published"`
	InReplyTo    string       `json:"inReplyTo"`
	To           interface{}  `json:"to"`
	Cc           interface{}  `json:"cc"`
	Tag          []Tag        `json:"tag"`
	Attachment   []Attachment `json:"attachment"`
	Sensitive    bool         `json:"sensitive"`
	Summary      string       `json:"summary"`
}

// Attribution returns the author actor URI. attributedTo arrives as a
// string, a list of strings, or a list of objects with an id.
func (doc *ObjectDocument) Attribution() string {
	values := toStrings(doc.AttributedTo)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// toStrings flattens a JSON-LD value that may be a string, a list of
// strings, or a list of objects carrying an id
func toStrings(v interface{}) []string {
	switch value := v.(type) {
	case string:
		if value == "" {
			return nil
		}
		return []string{value}
	case []interface{}:
		var out []string
		for _, item := range value {
			switch entry := item.(type) {
			case string:
				if entry != "" {
					out = append(out, entry)
				}
			case map[string]interface{}:
				if id, ok := entry["id"].(string); ok && id != "" {
					out = append(out, id)
				}
			}
		}
		return out
	default:
		return nil
	}
}

// ParseAudience maps the to/cc addressing of an object onto a visibility
// scope. Widest scope wins: public beats followers beats subscribers;
// anything else is direct.
func ParseAudience(to []string, cc []string, author *domain.RemoteAccount) string {
	all := append(append([]string{}, to...), cc...)

	for _, addr := range all {
		for _, marker := range publicAudienceMarkers {
			if addr == marker {
				return domain.VisibilityPublic
			}
		}
	}
	if author != nil {
		for _, addr := range all {
			if author.FollowersURI != "" && addr == author.FollowersURI {
				return domain.VisibilityFollowers
			}
		}
		for _, addr := range all {
			if author.SubscribersURI != "" && addr == author.SubscribersURI {
				return domain.VisibilitySubscribers
			}
		}
	}
	return domain.VisibilityDirect
}

// IsLocalObjectURI reports whether a URI addresses an object served by
// this instance
func IsLocalObjectURI(uri string, conf *util.AppConfig) bool {
	return strings.HasPrefix(uri, conf.BaseURL()+"/objects/")
}

func localObjectId(uri string, conf *util.AppConfig) (uuid.UUID, error) {
	idPart := strings.TrimPrefix(uri, conf.BaseURL()+"/objects/")
	return uuid.Parse(idPart)
}

// GetOrFetchPost resolves an object URI to a stored post, fetching the
// object and its unresolved ancestors first. The ancestor walk is a
// plain loop with a counted depth bound, so a hostile reply chain
// cannot recurse unboundedly.
func GetOrFetchPost(objectURI string, conf *util.AppConfig) (*domain.Post, error) {
	if IsLocalObjectURI(objectURI, conf) {
		postId, err := localObjectId(objectURI, conf)
		if err != nil {
			return nil, ErrNotFound
		}
		err, post := db.GetDB().ReadPostById(postId)
		if err != nil || post == nil {
			return nil, ErrNotFound
		}
		return post, nil
	}

	_, cached := db.GetDB().ReadPostByObjectURI(objectURI)
	if cached != nil {
		return cached, nil
	}

	// Walk up the reply chain until a known ancestor or a root. The
	// chain collects unresolved objects newest-first.
	var chain []*ObjectDocument
	currentURI := objectURI
	var parent *domain.Post

	for depth := 0; ; depth++ {
		if depth >= conf.Conf.MaxReplyDepth {
			return nil, ErrDepthExceeded
		}

		body, err := FetchJSON(currentURI, conf)
		if err != nil {
			return nil, err
		}
		var doc ObjectDocument
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse object document: %w", err)
		}
		if doc.Id == "" {
			return nil, &ValidationError{Reason: "object document missing id"}
		}
		chain = append(chain, &doc)

		if doc.InReplyTo == "" {
			break
		}
		if IsLocalObjectURI(doc.InReplyTo, conf) {
			p, err := GetOrFetchPost(doc.InReplyTo, conf)
			if err == nil {
				parent = p
			} else {
				log.Printf("Objects: local parent %s not found: %v", doc.InReplyTo, err)
			}
			break
		}
		_, known := db.GetDB().ReadPostByObjectURI(doc.InReplyTo)
		if known != nil {
			parent = known
			break
		}
		currentURI = doc.InReplyTo
	}

	// Store oldest-first so each reply can reference its parent row
	var result *domain.Post
	for i := len(chain) - 1; i >= 0; i-- {
		var parentId *uuid.UUID
		if parent != nil {
			parentId = &parent.Id
		}
		post, err := createRemotePostFromObject(chain[i], parentId, "", conf)
		if err != nil {
			return nil, err
		}
		parent = post
		result = post
	}
	return result, nil
}

// createRemotePostFromObject stores a fetched or delivered object as a
// post. Redelivery of an already-stored object returns the existing row.
func createRemotePostFromObject(doc *ObjectDocument, inReplyToId *uuid.UUID, activityURI string, conf *util.AppConfig) (*domain.Post, error) {
	if doc.Id == "" {
		return nil, &ValidationError{Reason: "object missing id"}
	}
	// A remote server must not deliver objects under our own id space
	if IsLocalObjectURI(doc.Id, conf) {
		return nil, ErrLocalObject
	}
	if doc.Type != "Note" && doc.Type != "Article" && doc.Type != "Page" && doc.Type != "Question" {
		return nil, &ValidationError{Reason: fmt.Sprintf("unsupported object type: %s", doc.Type)}
	}

	err, existing := db.GetDB().ReadPostByObjectURI(doc.Id)
	if err == nil && existing != nil {
		return existing, nil
	}

	authorURI := doc.Attribution()
	if authorURI == "" {
		return nil, &ValidationError{Reason: "object missing attributedTo"}
	}
	author, err := GetOrFetchActor(authorURI, conf)
	if err != nil {
		return nil, err
	}

	visibility := ParseAudience(toStrings(doc.To), toStrings(doc.Cc), author)
	if visibility == domain.VisibilityDirect {
		log.Printf("Objects: %s has no recognized audience, storing as direct", doc.Id)
	}

	createdAt := time.Now()
	if doc.Published != "" {
		if t, err := time.Parse(time.RFC3339, doc.Published); err == nil {
			createdAt = t
		}
	}

	post := &domain.Post{
		Id:             uuid.New(),
		AccountId:      author.Id,
		Author:         author.Address(),
		Content:        util.SanitizeContent(doc.Content),
		Visibility:     visibility,
		ObjectURI:      doc.Id,
		ActivityURI:    activityURI,
		InReplyToId:    inReplyToId,
		Sensitive:      doc.Sensitive,
		ContentWarning: doc.Summary,
		Local:          false,
		CreatedAt:      createdAt,
	}

	if err := db.GetDB().CreatePost(post); err != nil {
		if db.IsUniqueViolation(err) {
			err2, stored := db.GetDB().ReadPostByObjectURI(doc.Id)
			if err2 == nil && stored != nil {
				return stored, nil
			}
		}
		return nil, fmt.Errorf("failed to store post: %w", err)
	}

	processTags(doc.Tag, author, post, conf)
	mirrorAttachments(doc.Attachment, conf)

	return post, nil
}

// processTags resolves the tag list of a stored object. Each tag is
// handled individually best-effort: a hashtag that fails to store or a
// mention that fails to resolve never fails the post.
func processTags(tags []Tag, author *domain.RemoteAccount, post *domain.Post, conf *util.AppConfig) {
	for _, tag := range tags {
		switch tag.Type {
		case "Hashtag":
			name, ok := normalizeHashtag(tag.Name)
			if !ok {
				continue
			}
			if err := db.GetDB().AddPostTag(post.Id, name); err != nil && !db.IsUniqueViolation(err) {
				log.Printf("Objects: failed to store hashtag %s: %v", name, err)
			}
		case "Mention":
			processMention(tag, author, post, conf)
		}
	}
}

// normalizeHashtag strips the leading hash and lowercases the name.
// Names with anything beyond letters, digits and underscores are dropped.
func normalizeHashtag(name string) (string, bool) {
	tag := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "#"))
	if tag == "" {
		return "", false
	}
	for _, r := range tag {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return "", false
		}
	}
	return tag, true
}

// processMention resolves one mention tag. Local mentions become
// notifications; mentioned remote actors are imported by href, or by
// user@domain address when the tag carries no href.
func processMention(tag Tag, author *domain.RemoteAccount, post *domain.Post, conf *util.AppConfig) {
	if username, ok := localUsernameFromHref(tag.Href, conf); ok {
		notifyLocalMention(username, author, post)
		return
	}
	if tag.Href != "" {
		if _, err := GetOrFetchActor(tag.Href, conf); err != nil {
			log.Printf("Objects: could not resolve mentioned actor %s: %v", tag.Href, err)
		}
		return
	}

	name := strings.TrimPrefix(tag.Name, "@")
	if name == "" {
		return
	}
	if strings.Contains(name, "@") {
		if _, err := ResolveActorAddress(name, conf); err != nil {
			log.Printf("Objects: could not resolve mentioned address %s: %v", name, err)
		}
		return
	}
	notifyLocalMention(name, author, post)
}

func notifyLocalMention(username string, author *domain.RemoteAccount, post *domain.Post) {
	err, acc := db.GetDB().ReadAccByUsername(username)
	if err != nil || acc == nil {
		return
	}
	notification := &domain.Notification{
		Id:          uuid.New(),
		RecipientId: acc.Id,
		ActorId:     author.Id,
		PostId:      &post.Id,
		Type:        domain.NotificationMention,
		CreatedAt:   time.Now(),
	}
	if err := db.GetDB().CreateNotification(notification); err != nil {
		log.Printf("Objects: failed to create mention notification: %v", err)
	}
}

func localUsernameFromHref(href string, conf *util.AppConfig) (string, bool) {
	prefix := conf.BaseURL() + "/users/"
	if !strings.HasPrefix(href, prefix) {
		return "", false
	}
	username := strings.TrimPrefix(href, prefix)
	if username == "" || strings.Contains(username, "/") {
		return "", false
	}
	return username, true
}

// mirrorAttachments mirrors image attachments to local storage,
// best-effort and bounded. Non-image attachments are skipped.
func mirrorAttachments(attachments []Attachment, conf *util.AppConfig) {
	count := 0
	for _, att := range attachments {
		if count >= maxAttachments {
			log.Printf("Objects: attachment limit reached, skipping the rest")
			return
		}
		if att.URL == "" {
			continue
		}
		if att.MediaType != "" && !strings.HasPrefix(att.MediaType, "image/") {
			log.Printf("Objects: skipping attachment with media type %s", att.MediaType)
			continue
		}
		if _, err := SaveRemoteImage(att.URL, conf); err != nil {
			log.Printf("Objects: could not mirror attachment %s: %v", att.URL, err)
		}
		count++
	}
}
