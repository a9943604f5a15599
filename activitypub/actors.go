package activitypub

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/deemkeen/loxodon/db"
	"github.com/deemkeen/loxodon/domain"
	"github.com/deemkeen/loxodon/util"
	"github.com/google/uuid"
)

// Cached remote actors are refetched after this long
const actorCacheMaxAge = 24 * time.Hour

// ActorDocument is the wire representation of a remote actor profile
type ActorDocument struct {
	Id                string `json:"id"`
	Type              string `json:"type"`
	PreferredUsername string `json:"preferredUsername"`
	Name              string `json:"name"`
	Summary           string `json:"summary"`
	Inbox             string `json:"inbox"`
	Outbox            string `json:"outbox"`
	Followers         string `json:"followers"`
	Subscribers       string `json:"subscribers"`
	Endpoints         struct {
		SharedInbox string `json:"sharedInbox"`
	} `json:"endpoints"`
	Icon struct {
		URL string `json:"url"`
	} `json:"icon"`
	Image struct {
		URL string `json:"url"`
	} `json:"image"`
	PublicKey struct {
		Id           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

// FetchRemoteActor fetches and validates an actor document. prev carries
// the previously cached record so image mirroring can fall back to the
// old values when a fetch fails.
func FetchRemoteActor(actorURI string, conf *util.AppConfig, prev *domain.RemoteAccount) (*domain.RemoteAccount, error) {
	body, err := FetchJSON(actorURI, conf)
	if err != nil {
		return nil, err
	}

	var doc ActorDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse actor document: %w", err)
	}

	if doc.Id != actorURI {
		return nil, &ValidationError{Reason: fmt.Sprintf("actor id %s does not match fetched URI %s", doc.Id, actorURI)}
	}
	if doc.PreferredUsername == "" || doc.Inbox == "" {
		return nil, &ValidationError{Reason: "actor document missing preferredUsername or inbox"}
	}
	if doc.PublicKey.PublicKeyPem == "" {
		return nil, &ValidationError{Reason: "actor document missing public key"}
	}
	if _, err := ParsePublicKey(doc.PublicKey.PublicKeyPem); err != nil {
		return nil, &ValidationError{Reason: "actor public key is not valid PEM"}
	}

	acc := &domain.RemoteAccount{
		Id:             uuid.New(),
		Username:       doc.PreferredUsername,
		Domain:         util.ExtractDomain(actorURI),
		ActorURI:       actorURI,
		DisplayName:    doc.Name,
		Summary:        util.SanitizeContent(doc.Summary),
		InboxURI:       doc.Inbox,
		SharedInboxURI: doc.Endpoints.SharedInbox,
		FollowersURI:   doc.Followers,
		SubscribersURI: doc.Subscribers,
		PublicKeyPem:   doc.PublicKey.PublicKeyPem,
		LastFetchedAt:  time.Now(),
	}

	var prevAvatar, prevBanner string
	if prev != nil {
		prevAvatar = prev.AvatarURL
		prevBanner = prev.BannerURL
	}
	acc.AvatarURL = fetchImageWithFallback(doc.Icon.URL, prevAvatar, conf)
	acc.BannerURL = fetchImageWithFallback(doc.Image.URL, prevBanner, conf)

	return acc, nil
}

// fetchImageWithFallback mirrors a profile image best-effort: a failed
// fetch keeps whatever value was cached before instead of failing the
// actor refresh
func fetchImageWithFallback(url string, previous string, conf *util.AppConfig) string {
	if url == "" {
		return previous
	}
	if _, err := SaveRemoteImage(url, conf); err != nil {
		log.Printf("Actors: could not mirror image %s: %v", url, err)
		return previous
	}
	return url
}

// GetOrFetchActor returns the cached remote account for an actor URI,
// refreshing it when stale. A failed refresh falls back to the cached
// record so transient remote outages do not break processing.
func GetOrFetchActor(actorURI string, conf *util.AppConfig) (*domain.RemoteAccount, error) {
	_, cached := db.GetDB().ReadRemoteAccountByURI(actorURI)

	if cached != nil && time.Since(cached.LastFetchedAt) < actorCacheMaxAge {
		return cached, nil
	}

	fetched, err := FetchRemoteActor(actorURI, conf, cached)
	if err != nil {
		if cached != nil {
			log.Printf("Actors: refresh of %s failed, using cached record: %v", actorURI, err)
			return cached, nil
		}
		return nil, err
	}

	if cached != nil {
		fetched.Id = cached.Id
		if err := db.GetDB().UpdateRemoteAccount(fetched); err != nil {
			log.Printf("Actors: failed to update %s: %v", actorURI, err)
		}
		return fetched, nil
	}

	if err := db.GetDB().CreateRemoteAccount(fetched); err != nil {
		if db.IsUniqueViolation(err) {
			// Lost a race to a concurrent fetch of the same actor
			err2, existing := db.GetDB().ReadRemoteAccountByURI(actorURI)
			if err2 == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("failed to store remote account: %w", err)
	}
	return fetched, nil
}

// ResolveActorAddress resolves user@domain to a stored remote account,
// going through webfinger and an actor fetch when unknown
func ResolveActorAddress(address string, conf *util.AppConfig) (*domain.RemoteAccount, error) {
	actorURI, err := ResolveWebfinger(address, conf)
	if err != nil {
		return nil, err
	}
	return GetOrFetchActor(actorURI, conf)
}
