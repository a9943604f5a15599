package web

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/deemkeen/loxodon/activitypub"
	"github.com/deemkeen/loxodon/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

func Router(conf *util.AppConfig) error {
	log.Printf("Starting federation server on %s:%d", conf.Conf.Host, conf.Conf.HttpPort)
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	// Stricter rate limit for inbox deliveries: 5 req/sec per IP
	inboxLimiter := NewRateLimiter(rate.Limit(5), 10)
	maxBodySize := MaxBytesMiddleware(conf.Conf.MaxObjectSize)

	// RSS feeds
	g.GET("/feed", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")

		username := c.Query("username")
		rss, err := GetRSS(conf, username)
		if err != nil {
			c.Render(404, render.String{Format: ""})
		} else {
			c.Render(200, render.String{Format: rss})
		}
	})

	g.GET("/feed/:id", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")
		feedId, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.Render(404, render.String{Format: ""})
			return
		}

		rssItem, err := GetRSSItem(conf, feedId)
		if err != nil {
			c.Render(404, render.String{Format: ""})
		} else {
			c.Render(200, render.String{Format: rssItem})
		}
	})

	// Local objects
	g.GET("/objects/:id", func(c *gin.Context) {
		c.Header("Content-Type", "application/activity+json; charset=utf-8")

		postId, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(404, gin.H{"error": "Object not found"})
			return
		}

		err, object := GetObject(postId, conf)
		if err != nil {
			c.JSON(404, gin.H{"error": "Object not found"})
		} else {
			c.Render(200, render.String{Format: object})
		}
	})

	// Actors. Non-ActivityPub clients get sent to the feed instead of
	// the raw actor document.
	g.GET("/users/:username", func(c *gin.Context) {
		username := c.Param("username")
		if !acceptsActivityJSON(c) {
			c.Redirect(302, "/feed?username="+username)
			return
		}
		c.Header("Content-Type", "application/activity+json; charset=utf-8")
		err, actor := GetActor(username, conf)
		if err != nil {
			c.Render(404, render.String{Format: actor})
		} else {
			c.Render(200, render.String{Format: actor})
		}
	})

	g.GET("/actor", func(c *gin.Context) {
		c.Header("Content-Type", "application/activity+json; charset=utf-8")
		err, actor := GetInstanceActor(conf)
		if err != nil {
			c.Render(404, render.String{Format: actor})
		} else {
			c.Render(200, render.String{Format: actor})
		}
	})

	// Inboxes. The shared inbox, per-user inboxes and the instance actor
	// inbox all feed the same queue; processing does not depend on which
	// local inbox received the delivery. The mutex serializes
	// authenticate+enqueue so concurrent deliveries for the same actor
	// cannot interleave; it is released before any handler side effect
	// runs in the worker.
	inboxMu := &sync.Mutex{}
	inboxHandler := func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			log.Printf("Inbox: failed to read body: %v", err)
			c.Status(400)
			return
		}
		handleInboxPost(c, body, conf, inboxMu)
	}
	g.POST("/inbox", RateLimitMiddleware(inboxLimiter), maxBodySize, inboxHandler)
	g.POST("/users/:username/inbox", RateLimitMiddleware(inboxLimiter), maxBodySize, inboxHandler)
	g.POST("/actor/inbox", RateLimitMiddleware(inboxLimiter), maxBodySize, inboxHandler)

	// Collections
	g.GET("/users/:username/outbox", func(c *gin.Context) {
		c.Header("Content-Type", "application/activity+json; charset=utf-8")
		page := ParsePageParam(c.Query("page"))
		err, outbox := GetOutbox(c.Param("username"), page, conf)
		if err != nil {
			c.Render(404, render.String{Format: outbox})
		} else {
			c.Render(200, render.String{Format: outbox})
		}
	})

	collectionRoute := func(path string, get func(string, *util.AppConfig) (error, string)) {
		g.GET(path, func(c *gin.Context) {
			c.Header("Content-Type", "application/activity+json; charset=utf-8")

			// Member lists are not exposed, only counts
			if c.Query("page") != "" {
				c.JSON(403, gin.H{"error": "Collection pages are not available"})
				return
			}

			err, collection := get(c.Param("username"), conf)
			if err != nil {
				c.Render(404, render.String{Format: collection})
			} else {
				c.Render(200, render.String{Format: collection})
			}
		})
	}
	collectionRoute("/users/:username/followers", GetFollowersCollection)
	collectionRoute("/users/:username/following", GetFollowingCollection)
	collectionRoute("/users/:username/subscribers", GetSubscribersCollection)

	// Webfinger
	g.GET("/.well-known/webfinger", func(c *gin.Context) {
		c.Header("Content-Type", "application/jrd+json; charset=utf-8")

		resource := c.Query("resource")
		if resource == "" || !strings.HasPrefix(resource, "acct:") {
			c.Render(404, render.String{Format: GetWebFingerNotFound()})
			return
		}
		resource = strings.TrimPrefix(resource, "acct:")
		resource = strings.TrimSuffix(resource, fmt.Sprintf("@%s", conf.Conf.SslDomain))
		err, resp := GetWebfinger(resource, conf)
		if err != nil {
			c.Render(404, render.String{Format: GetWebFingerNotFound()})
		} else {
			c.Render(200, render.String{Format: resp})
		}
	})

	return g.Run(fmt.Sprintf(":%d", conf.Conf.HttpPort))
}

// acceptsActivityJSON reports whether the client asked for an
// ActivityPub representation. An absent Accept header counts as yes,
// since federation software does not always send one.
func acceptsActivityJSON(c *gin.Context) bool {
	accept := c.GetHeader("Accept")
	if accept == "" || accept == "*/*" {
		return true
	}
	return strings.Contains(accept, "application/activity+json") ||
		strings.Contains(accept, "application/ld+json")
}

// handleInboxPost maps inbox processing errors onto status codes.
// Accepted deliveries answer 202 before any handler runs.
func handleInboxPost(c *gin.Context, body []byte, conf *util.AppConfig, mu *sync.Mutex) {
	mu.Lock()
	err := activitypub.HandleInboxRequest(c.Request, body, conf)
	mu.Unlock()
	if err == nil {
		c.Status(202)
		return
	}

	var verr *activitypub.ValidationError
	switch {
	case errors.Is(err, activitypub.ErrMissingSignature),
		errors.Is(err, activitypub.ErrInvalidSignature),
		errors.Is(err, activitypub.ErrExpiredHeader),
		errors.Is(err, activitypub.ErrMissingDigest):
		log.Printf("Inbox: rejected delivery: %v", err)
		c.JSON(401, gin.H{"error": "Signature verification failed"})
	case errors.As(err, &verr):
		log.Printf("Inbox: malformed delivery: %v", err)
		c.JSON(400, gin.H{"error": "Invalid activity"})
	default:
		log.Printf("Inbox: failed to accept delivery: %v", err)
		c.JSON(500, gin.H{"error": "Internal error"})
	}
}
