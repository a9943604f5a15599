package db

import (
	"database/sql"
	"time"

	"github.com/deemkeen/loxodon/domain"
	"github.com/google/uuid"
)

// Post queries
const (
	sqlInsertPost = `INSERT INTO posts(id, account_id, author, content, visibility, object_uri, activity_uri, in_reply_to_id, repost_of_id, sensitive, content_warning, local, created_at, edited_at)
                     VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectPostCols = `SELECT id, account_id, author, content, visibility, object_uri, activity_uri, in_reply_to_id, repost_of_id, sensitive, content_warning, local, created_at, edited_at FROM posts`

	sqlSelectPostById          = sqlSelectPostCols + ` WHERE id = ?`
	sqlSelectPostByObjectURI   = sqlSelectPostCols + ` WHERE object_uri = ?`
	sqlSelectPostByActivityURI = sqlSelectPostCols + ` WHERE activity_uri = ?`
	sqlSelectPublicPostsByUser = sqlSelectPostCols + ` WHERE author = ? AND visibility = 'public' AND repost_of_id IS NULL ORDER BY created_at DESC LIMIT ? OFFSET ?`
	sqlCountPublicPostsByUser  = `SELECT COUNT(*) FROM posts WHERE author = ? AND visibility = 'public' AND repost_of_id IS NULL`

	sqlUpdatePostContent    = `UPDATE posts SET content = ?, sensitive = ?, content_warning = ?, edited_at = ? WHERE id = ?`
	sqlDeletePostById       = `DELETE FROM posts WHERE id = ?`
	sqlDeletePostsByAccount = `DELETE FROM posts WHERE account_id = ?`

	sqlInsertPostTag         = `INSERT INTO post_tags(post_id, tag_name) VALUES (?, ?)`
	sqlSelectPostTags        = `SELECT tag_name FROM post_tags WHERE post_id = ? ORDER BY tag_name`
	sqlDeleteTagsByPost      = `DELETE FROM post_tags WHERE post_id = ?`
	sqlDeleteTagsByPostOwner = `DELETE FROM post_tags WHERE post_id IN (SELECT id FROM posts WHERE account_id = ?)`
)

func (db *DB) CreatePost(post *domain.Post) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		return insertPost(tx, post)
	})
}

func insertPost(tx DBTX, post *domain.Post) error {
	var inReplyTo, repostOf interface{}
	if post.InReplyToId != nil {
		inReplyTo = post.InReplyToId.String()
	}
	if post.RepostOfId != nil {
		repostOf = post.RepostOfId.String()
	}
	_, err := tx.Exec(sqlInsertPost,
		post.Id.String(),
		post.AccountId.String(),
		post.Author,
		post.Content,
		post.Visibility,
		post.ObjectURI,
		post.ActivityURI,
		inReplyTo,
		repostOf,
		post.Sensitive,
		post.ContentWarning,
		post.Local,
		post.CreatedAt,
		post.EditedAt,
	)
	return err
}

func scanPost(row interface{ Scan(...any) error }) (error, *domain.Post) {
	var post domain.Post
	var idStr, accountIdStr string
	var inReplyTo, repostOf sql.NullString
	var editedAt sql.NullTime
	err := row.Scan(
		&idStr,
		&accountIdStr,
		&post.Author,
		&post.Content,
		&post.Visibility,
		&post.ObjectURI,
		&post.ActivityURI,
		&inReplyTo,
		&repostOf,
		&post.Sensitive,
		&post.ContentWarning,
		&post.Local,
		&post.CreatedAt,
		&editedAt,
	)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	post.Id, _ = uuid.Parse(idStr)
	post.AccountId, _ = uuid.Parse(accountIdStr)
	if inReplyTo.Valid {
		id, _ := uuid.Parse(inReplyTo.String)
		post.InReplyToId = &id
	}
	if repostOf.Valid {
		id, _ := uuid.Parse(repostOf.String)
		post.RepostOfId = &id
	}
	if editedAt.Valid {
		t := editedAt.Time
		post.EditedAt = &t
	}
	return nil, &post
}

func (db *DB) ReadPostById(id uuid.UUID) (error, *domain.Post) {
	return scanPost(db.db.QueryRow(sqlSelectPostById, id.String()))
}

func (db *DB) ReadPostByObjectURI(uri string) (error, *domain.Post) {
	return scanPost(db.db.QueryRow(sqlSelectPostByObjectURI, uri))
}

func (db *DB) ReadPostByActivityURI(uri string) (error, *domain.Post) {
	return scanPost(db.db.QueryRow(sqlSelectPostByActivityURI, uri))
}

func (db *DB) ReadPublicPostsByUsername(username string, limit int, offset int) (error, *[]domain.Post) {
	rows, err := db.db.Query(sqlSelectPublicPostsByUser, username, limit, offset)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		err, post := scanPost(rows)
		if err != nil {
			return err, &posts
		}
		posts = append(posts, *post)
	}
	if err = rows.Err(); err != nil {
		return err, &posts
	}
	return nil, &posts
}

func (db *DB) CountPublicPostsByUsername(username string) (error, int) {
	var count int
	err := db.db.QueryRow(sqlCountPublicPostsByUser, username).Scan(&count)
	return err, count
}

func (db *DB) UpdatePostContent(id uuid.UUID, content string, sensitive bool, contentWarning string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		now := time.Now()
		_, err := tx.Exec(sqlUpdatePostContent, content, sensitive, contentWarning, now, id.String())
		return err
	})
}

func (db *DB) DeletePost(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlDeleteTagsByPost, id.String()); err != nil {
			return err
		}
		_, err := tx.Exec(sqlDeletePostById, id.String())
		return err
	})
}

func (db *DB) DeletePostsByAccountId(accountId uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlDeleteTagsByPostOwner, accountId.String()); err != nil {
			return err
		}
		_, err := tx.Exec(sqlDeletePostsByAccount, accountId.String())
		return err
	})
}

// AddPostTag records a normalized hashtag on a post
func (db *DB) AddPostTag(postId uuid.UUID, tagName string) error {
	_, err := db.db.Exec(sqlInsertPostTag, postId.String(), tagName)
	return err
}

func (db *DB) ReadPostTags(postId uuid.UUID) (error, *[]string) {
	rows, err := db.db.Query(sqlSelectPostTags, postId.String())
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return err, &tags
		}
		tags = append(tags, tag)
	}
	if err = rows.Err(); err != nil {
		return err, &tags
	}
	return nil, &tags
}
