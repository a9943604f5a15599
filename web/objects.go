package web

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/deemkeen/loxodon/db"
	"github.com/deemkeen/loxodon/domain"
	"github.com/deemkeen/loxodon/util"
	"github.com/google/uuid"
)

// GetObject renders a local post as an ActivityPub Note. Only public
// local posts are served; everything else looks like it does not exist.
func GetObject(postId uuid.UUID, conf *util.AppConfig) (error, string) {
	database := db.GetDB()
	err, post := database.ReadPostById(postId)
	if err != nil || post == nil {
		return fmt.Errorf("object not found"), "{}"
	}
	if !post.Local || post.Visibility != domain.VisibilityPublic {
		return fmt.Errorf("object not found"), "{}"
	}

	err, acc := database.ReadAccById(post.AccountId)
	if err != nil || acc == nil {
		return fmt.Errorf("object not found"), "{}"
	}

	actorURI := conf.ActorURI(acc.Username)
	objectURI := conf.ObjectURI(post.Id.String())

	noteObj := map[string]interface{}{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"id":           objectURI,
		"type":         "Note",
		"attributedTo": actorURI,
		"content":      post.Content,
		"published":    post.CreatedAt.UTC().Format(time.RFC3339),
		"sensitive":    post.Sensitive,
		"to": []string{
			"https://www.w3.org/ns/activitystreams#Public",
		},
		"cc": []string{
			actorURI + "/followers",
		},
	}
	if post.ContentWarning != "" {
		noteObj["summary"] = post.ContentWarning
	}
	if post.InReplyToId != nil {
		noteObj["inReplyTo"] = conf.ObjectURI(post.InReplyToId.String())
	}
	if post.EditedAt != nil {
		noteObj["updated"] = post.EditedAt.UTC().Format(time.RFC3339)
	}

	jsonBytes, err := json.Marshal(noteObj)
	if err != nil {
		return err, "{}"
	}
	return nil, string(jsonBytes)
}
