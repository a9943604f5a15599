package domain

import (
	"fmt"
	"github.com/google/uuid"
	"time"
)

// Post visibility scopes, in decreasing audience order
const (
	VisibilityPublic      = "public"
	VisibilityFollowers   = "followers"
	VisibilitySubscribers = "subscribers"
	VisibilityDirect      = "direct"
)

// Post is a local or cached remote status. Remote posts carry the remote
// object URI; local posts have an empty ObjectURI and are addressed by id.
type Post struct {
	Id             uuid.UUID
	AccountId      uuid.UUID // local account or remote account
	Author         string    // username or user@domain, denormalized for display
	Content        string
	Visibility     string
	ObjectURI      string     // remote AP object id, empty for local posts
	ActivityURI    string     // remote Create/Announce activity id, for idempotency
	InReplyToId    *uuid.UUID
	RepostOfId     *uuid.UUID // set when this post is an Announce
	Sensitive      bool
	ContentWarning string
	Local          bool
	CreatedAt      time.Time
	EditedAt       *time.Time
}

func (post *Post) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tAuthor: %s \n\tContent: %s \n\tCreatedAt: %s)", post.Id, post.Author, post.Content, post.CreatedAt)
}

// IsRepost reports whether the post is an announce of another post
func (post *Post) IsRepost() bool {
	return post.RepostOfId != nil
}
