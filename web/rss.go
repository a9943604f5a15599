package web

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/deemkeen/loxodon/db"
	"github.com/deemkeen/loxodon/util"
	"github.com/gorilla/feeds"
	"github.com/google/uuid"
)

const rssFeedSize = 50

// GetRSS renders a user's public posts as an RSS feed
func GetRSS(conf *util.AppConfig, username string) (string, error) {
	err, acc := db.GetDB().ReadAccByUsername(username)
	if err != nil || acc == nil {
		return "", errors.New("unknown user")
	}

	err, posts := db.GetDB().ReadPublicPostsByUsername(username, rssFeedSize, 0)
	if err != nil {
		log.Printf("RSS: could not get posts of %s: %v", username, err)
		return "", errors.New("error retrieving posts")
	}

	link := fmt.Sprintf("%s/feed?username=%s", conf.BaseURL(), username)
	email := fmt.Sprintf("%s@%s", username, conf.Conf.SslDomain)

	feed := &feeds.Feed{
		Title:       fmt.Sprintf("%s - %s", util.Name, username),
		Link:        &feeds.Link{Href: link},
		Description: fmt.Sprintf("public posts of %s", username),
		Author:      &feeds.Author{Name: username, Email: email},
		Created:     time.Now(),
	}

	var feedItems []*feeds.Item
	for _, post := range *posts {
		feedItems = append(feedItems,
			&feeds.Item{
				Id:      post.Id.String(),
				Title:   post.CreatedAt.Format(time.RFC822),
				Link:    &feeds.Link{Href: conf.ObjectURI(post.Id.String())},
				Content: post.Content,
				Author:  &feeds.Author{Name: username, Email: email},
				Created: post.CreatedAt,
			})
	}

	feed.Items = feedItems
	return feed.ToRss()
}

// GetRSSItem renders a single public post as a one-item feed
func GetRSSItem(conf *util.AppConfig, id uuid.UUID) (string, error) {
	err, post := db.GetDB().ReadPostById(id)
	if err != nil || post == nil {
		return "", errors.New("error retrieving post by id")
	}
	if !post.Local || post.Visibility != "public" {
		return "", errors.New("error retrieving post by id")
	}

	url := conf.ObjectURI(post.Id.String())
	email := fmt.Sprintf("%s@%s", post.Author, conf.Conf.SslDomain)

	feed := &feeds.Feed{
		Title:       fmt.Sprintf("%s - single post", util.Name),
		Link:        &feeds.Link{Href: url},
		Description: fmt.Sprintf("post by %s", post.Author),
		Author:      &feeds.Author{Name: post.Author, Email: email},
		Created:     time.Now(),
	}

	feed.Items = []*feeds.Item{
		{
			Id:      post.Id.String(),
			Title:   post.CreatedAt.Format(time.RFC822),
			Link:    &feeds.Link{Href: url},
			Content: post.Content,
			Author:  &feeds.Author{Name: post.Author, Email: email},
			Created: post.CreatedAt,
		},
	}
	return feed.ToRss()
}
