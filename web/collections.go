package web

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/deemkeen/loxodon/activitypub"
	"github.com/deemkeen/loxodon/db"
	"github.com/deemkeen/loxodon/domain"
	"github.com/deemkeen/loxodon/util"
)

const outboxPageSize = 20

// GetOutbox returns an ActivityPub OrderedCollection of a user's public
// posts. Without a page parameter only the collection metadata is
// returned; pages carry the Create activities.
func GetOutbox(username string, page int, conf *util.AppConfig) (error, string) {
	err, acc := db.GetDB().ReadAccByUsername(username)
	if err != nil || acc == nil {
		return fmt.Errorf("unknown user: %s", username), "{}"
	}

	outboxURL := conf.ActorURI(username) + "/outbox"

	if page == 0 {
		err, totalItems := db.GetDB().CountPublicPostsByUsername(username)
		if err != nil {
			log.Printf("Outbox: failed to count posts for %s: %v", username, err)
			return err, "{}"
		}

		collection := map[string]interface{}{
			"@context":   "https://www.w3.org/ns/activitystreams",
			"id":         outboxURL,
			"type":       "OrderedCollection",
			"totalItems": totalItems,
			"first":      fmt.Sprintf("%s?page=1", outboxURL),
		}
		return marshalCollection(collection)
	}

	return getOutboxPage(acc, page, outboxURL, conf)
}

func getOutboxPage(acc *domain.Account, page int, outboxURL string, conf *util.AppConfig) (error, string) {
	offset := (page - 1) * outboxPageSize

	// Fetch one extra row to know whether a next page exists
	err, posts := db.GetDB().ReadPublicPostsByUsername(acc.Username, outboxPageSize+1, offset)
	if err != nil {
		log.Printf("Outbox: failed to fetch page %d for %s: %v", page, acc.Username, err)
		return err, "{}"
	}

	hasMore := false
	items := []interface{}{}
	if posts != nil {
		pagePosts := *posts
		if len(pagePosts) > outboxPageSize {
			hasMore = true
			pagePosts = pagePosts[:outboxPageSize]
		}
		for i := range pagePosts {
			items = append(items, activitypub.BuildCreateNote(acc, &pagePosts[i], conf))
		}
	}

	collectionPage := map[string]interface{}{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"id":           fmt.Sprintf("%s?page=%d", outboxURL, page),
		"type":         "OrderedCollectionPage",
		"partOf":       outboxURL,
		"orderedItems": items,
	}
	if hasMore {
		collectionPage["next"] = fmt.Sprintf("%s?page=%d", outboxURL, page+1)
	}
	if page > 1 {
		collectionPage["prev"] = fmt.Sprintf("%s?page=%d", outboxURL, page-1)
	}
	return marshalCollection(collectionPage)
}

// GetFollowersCollection returns the followers collection of a user,
// counts only. The member list is never paged out.
func GetFollowersCollection(username string, conf *util.AppConfig) (error, string) {
	err, acc := db.GetDB().ReadAccByUsername(username)
	if err != nil || acc == nil {
		return fmt.Errorf("unknown user: %s", username), "{}"
	}

	err, count := db.GetDB().CountFollowers(acc.Id)
	if err != nil {
		return err, "{}"
	}
	return countOnlyCollection(conf.ActorURI(username)+"/followers", count)
}

// GetFollowingCollection returns the following collection of a user,
// counts only
func GetFollowingCollection(username string, conf *util.AppConfig) (error, string) {
	err, acc := db.GetDB().ReadAccByUsername(username)
	if err != nil || acc == nil {
		return fmt.Errorf("unknown user: %s", username), "{}"
	}

	err, count := db.GetDB().CountFollowing(acc.Id)
	if err != nil {
		return err, "{}"
	}
	return countOnlyCollection(conf.ActorURI(username)+"/following", count)
}

// GetSubscribersCollection returns the subscribers collection of a user,
// counts only. Subscribers are tracked like followers but empty until
// paid subscriptions are wired up.
func GetSubscribersCollection(username string, conf *util.AppConfig) (error, string) {
	err, acc := db.GetDB().ReadAccByUsername(username)
	if err != nil || acc == nil {
		return fmt.Errorf("unknown user: %s", username), "{}"
	}
	return countOnlyCollection(conf.ActorURI(username)+"/subscribers", 0)
}

func countOnlyCollection(id string, totalItems int) (error, string) {
	collection := map[string]interface{}{
		"@context":   "https://www.w3.org/ns/activitystreams",
		"id":         id,
		"type":       "OrderedCollection",
		"totalItems": totalItems,
	}
	return marshalCollection(collection)
}

func marshalCollection(collection map[string]interface{}) (error, string) {
	jsonData, err := json.Marshal(collection)
	if err != nil {
		return err, "{}"
	}
	return nil, string(jsonData)
}

// ParsePageParam extracts the page parameter from a query string.
// "page=true" is the ActivityPub spelling for the first page.
func ParsePageParam(pageStr string) int {
	if pageStr == "" {
		return 0
	}
	if pageStr == "true" {
		return 1
	}
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 0 {
		return 0
	}
	return page
}
