package db

import (
	"database/sql"

	"github.com/deemkeen/loxodon/domain"
	"github.com/google/uuid"
)

// Remote account queries
const (
	sqlInsertRemoteAccount = `INSERT INTO remote_accounts(id, username, domain, actor_uri, display_name, summary, inbox_uri, shared_inbox_uri, followers_uri, subscribers_uri, public_key_pem, avatar_url, banner_url, last_fetched_at)
                              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectRemoteAccountCols = `SELECT id, username, domain, actor_uri, display_name, summary, inbox_uri, shared_inbox_uri, followers_uri, subscribers_uri, public_key_pem, avatar_url, banner_url, last_fetched_at FROM remote_accounts`

	sqlSelectRemoteAccountByURI = sqlSelectRemoteAccountCols + ` WHERE actor_uri = ?`
	sqlSelectRemoteAccountById  = sqlSelectRemoteAccountCols + ` WHERE id = ?`

	sqlUpdateRemoteAccount = `UPDATE remote_accounts SET display_name = ?, summary = ?, inbox_uri = ?, shared_inbox_uri = ?, followers_uri = ?, subscribers_uri = ?, public_key_pem = ?, avatar_url = ?, banner_url = ?, last_fetched_at = ? WHERE actor_uri = ?`
	sqlDeleteRemoteAccount = `DELETE FROM remote_accounts WHERE id = ?`
)

func (db *DB) CreateRemoteAccount(acc *domain.RemoteAccount) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertRemoteAccount,
			acc.Id.String(),
			acc.Username,
			acc.Domain,
			acc.ActorURI,
			acc.DisplayName,
			acc.Summary,
			acc.InboxURI,
			acc.SharedInboxURI,
			acc.FollowersURI,
			acc.SubscribersURI,
			acc.PublicKeyPem,
			acc.AvatarURL,
			acc.BannerURL,
			acc.LastFetchedAt,
		)
		return err
	})
}

func scanRemoteAccount(row interface{ Scan(...any) error }) (error, *domain.RemoteAccount) {
	var acc domain.RemoteAccount
	var idStr string
	err := row.Scan(
		&idStr,
		&acc.Username,
		&acc.Domain,
		&acc.ActorURI,
		&acc.DisplayName,
		&acc.Summary,
		&acc.InboxURI,
		&acc.SharedInboxURI,
		&acc.FollowersURI,
		&acc.SubscribersURI,
		&acc.PublicKeyPem,
		&acc.AvatarURL,
		&acc.BannerURL,
		&acc.LastFetchedAt,
	)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	acc.Id, _ = uuid.Parse(idStr)
	return nil, &acc
}

func (db *DB) ReadRemoteAccountByURI(uri string) (error, *domain.RemoteAccount) {
	return scanRemoteAccount(db.db.QueryRow(sqlSelectRemoteAccountByURI, uri))
}

func (db *DB) ReadRemoteAccountById(id uuid.UUID) (error, *domain.RemoteAccount) {
	return scanRemoteAccount(db.db.QueryRow(sqlSelectRemoteAccountById, id.String()))
}

func (db *DB) UpdateRemoteAccount(acc *domain.RemoteAccount) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateRemoteAccount,
			acc.DisplayName,
			acc.Summary,
			acc.InboxURI,
			acc.SharedInboxURI,
			acc.FollowersURI,
			acc.SubscribersURI,
			acc.PublicKeyPem,
			acc.AvatarURL,
			acc.BannerURL,
			acc.LastFetchedAt,
			acc.ActorURI,
		)
		return err
	})
}

func (db *DB) DeleteRemoteAccount(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteRemoteAccount, id.String())
		return err
	})
}

// Follow queries
const (
	sqlInsertFollow             = `INSERT INTO follows(id, account_id, target_account_id, uri, accepted, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	sqlSelectFollowByURI        = `SELECT id, account_id, target_account_id, uri, accepted, created_at FROM follows WHERE uri = ?`
	sqlSelectFollowersOfAccount = `SELECT id, account_id, target_account_id, uri, accepted, created_at FROM follows WHERE target_account_id = ? AND accepted = 1`
	sqlCountFollowersOfAccount  = `SELECT COUNT(*) FROM follows WHERE target_account_id = ? AND accepted = 1`
	sqlCountFollowingOfAccount  = `SELECT COUNT(*) FROM follows WHERE account_id = ? AND accepted = 1`
	sqlAcceptFollowByURI        = `UPDATE follows SET accepted = 1 WHERE uri = ?`
	sqlDeleteFollowByURI        = `DELETE FROM follows WHERE uri = ?`
	sqlDeleteFollowsByAccount   = `DELETE FROM follows WHERE account_id = ? OR target_account_id = ?`
)

func (db *DB) CreateFollow(follow *domain.Follow) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertFollow,
			follow.Id.String(),
			follow.AccountId.String(),
			follow.TargetAccountId.String(),
			follow.URI,
			follow.Accepted,
			follow.CreatedAt,
		)
		return err
	})
}

func scanFollow(row interface{ Scan(...any) error }) (error, *domain.Follow) {
	var follow domain.Follow
	var idStr, accountIdStr, targetIdStr string
	err := row.Scan(
		&idStr,
		&accountIdStr,
		&targetIdStr,
		&follow.URI,
		&follow.Accepted,
		&follow.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	follow.Id, _ = uuid.Parse(idStr)
	follow.AccountId, _ = uuid.Parse(accountIdStr)
	follow.TargetAccountId, _ = uuid.Parse(targetIdStr)
	return nil, &follow
}

func (db *DB) ReadFollowByURI(uri string) (error, *domain.Follow) {
	return scanFollow(db.db.QueryRow(sqlSelectFollowByURI, uri))
}

// ReadFollowersOfAccount returns accepted follows targeting the account
func (db *DB) ReadFollowersOfAccount(targetId uuid.UUID) (error, *[]domain.Follow) {
	rows, err := db.db.Query(sqlSelectFollowersOfAccount, targetId.String())
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var follows []domain.Follow
	for rows.Next() {
		err, follow := scanFollow(rows)
		if err != nil {
			return err, &follows
		}
		follows = append(follows, *follow)
	}
	if err = rows.Err(); err != nil {
		return err, &follows
	}
	return nil, &follows
}

func (db *DB) CountFollowers(targetId uuid.UUID) (error, int) {
	var count int
	err := db.db.QueryRow(sqlCountFollowersOfAccount, targetId.String()).Scan(&count)
	return err, count
}

func (db *DB) CountFollowing(accountId uuid.UUID) (error, int) {
	var count int
	err := db.db.QueryRow(sqlCountFollowingOfAccount, accountId.String()).Scan(&count)
	return err, count
}

func (db *DB) AcceptFollowByURI(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlAcceptFollowByURI, uri)
		return err
	})
}

func (db *DB) DeleteFollowByURI(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteFollowByURI, uri)
		return err
	})
}

func (db *DB) DeleteFollowsByAccountId(accountId uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteFollowsByAccount, accountId.String(), accountId.String())
		return err
	})
}

// Reaction queries
const (
	sqlInsertReaction             = `INSERT INTO reactions(id, account_id, post_id, activity_uri, created_at) VALUES (?, ?, ?, ?, ?)`
	sqlSelectReactionByActivity   = `SELECT id, account_id, post_id, activity_uri, created_at FROM reactions WHERE activity_uri = ?`
	sqlDeleteReactionByActivity   = `DELETE FROM reactions WHERE activity_uri = ?`
)

func (db *DB) CreateReaction(reaction *domain.Reaction) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertReaction,
			reaction.Id.String(),
			reaction.AccountId.String(),
			reaction.PostId.String(),
			reaction.ActivityURI,
			reaction.CreatedAt,
		)
		return err
	})
}

func (db *DB) ReadReactionByActivityURI(uri string) (error, *domain.Reaction) {
	row := db.db.QueryRow(sqlSelectReactionByActivity, uri)
	var reaction domain.Reaction
	var idStr, accountIdStr, postIdStr string
	err := row.Scan(&idStr, &accountIdStr, &postIdStr, &reaction.ActivityURI, &reaction.CreatedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	reaction.Id, _ = uuid.Parse(idStr)
	reaction.AccountId, _ = uuid.Parse(accountIdStr)
	reaction.PostId, _ = uuid.Parse(postIdStr)
	return nil, &reaction
}

func (db *DB) DeleteReactionByActivityURI(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteReactionByActivity, uri)
		return err
	})
}

// Notification queries
const sqlInsertNotification = `INSERT INTO notifications(id, recipient_id, actor_id, post_id, notification_type, created_at) VALUES (?, ?, ?, ?, ?, ?)`

func (db *DB) CreateNotification(n *domain.Notification) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		var postId interface{}
		if n.PostId != nil {
			postId = n.PostId.String()
		}
		_, err := tx.Exec(sqlInsertNotification,
			n.Id.String(),
			n.RecipientId.String(),
			n.ActorId.String(),
			postId,
			n.Type,
			n.CreatedAt,
		)
		return err
	})
}
