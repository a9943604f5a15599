package domain

import (
	"fmt"
	"github.com/google/uuid"
	"time"
)

// Account represents a local user (or the instance service actor)
type Account struct {
	Id            uuid.UUID
	Username      string
	DisplayName   string
	Summary       string
	AvatarURL     string
	WebPublicKey  string
	WebPrivateKey string
	IsInstance    bool
	CreatedAt     time.Time
}

func (acc *Account) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tUsername: %s \n\tCreatedAt: %s)", acc.Id, acc.Username, acc.CreatedAt)
}
