package domain

import (
	"github.com/google/uuid"
	"time"
)

// RemoteAccount represents a cached federated user
type RemoteAccount struct {
	Id             uuid.UUID
	Username       string
	Domain         string
	ActorURI       string
	DisplayName    string
	Summary        string
	InboxURI       string
	SharedInboxURI string
	FollowersURI   string
	SubscribersURI string
	PublicKeyPem   string
	AvatarURL      string
	BannerURL      string
	LastFetchedAt  time.Time
}

// Address returns the user@domain form of the account
func (acc *RemoteAccount) Address() string {
	return acc.Username + "@" + acc.Domain
}

// Follow represents a follow relationship between two accounts
// (either side can be local or remote)
type Follow struct {
	Id              uuid.UUID
	AccountId       uuid.UUID // the follower
	TargetAccountId uuid.UUID // the account being followed
	URI             string    // ActivityPub Follow activity URI (empty for local follows)
	CreatedAt       time.Time
	Accepted        bool
}

// Reaction represents a like/favourite on a post, keyed by the remote
// activity URI for idempotent redelivery
type Reaction struct {
	Id          uuid.UUID
	AccountId   uuid.UUID
	PostId      uuid.UUID
	ActivityURI string
	CreatedAt   time.Time
}

// Notification types
const (
	NotificationMention = "mention"
	NotificationFollow  = "follow"
	NotificationLike    = "like"
	NotificationRepost  = "repost"
)

// Notification is created as a side effect of handler mutations
type Notification struct {
	Id          uuid.UUID
	RecipientId uuid.UUID // local account
	ActorId     uuid.UUID // who triggered it
	PostId      *uuid.UUID
	Type        string
	CreatedAt   time.Time
}
