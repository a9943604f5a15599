package db

import (
	"context"
	"database/sql"
	"sync"

	"github.com/deemkeen/loxodon/domain"
	"github.com/deemkeen/loxodon/util"
	"github.com/google/uuid"
	"log"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
	"time"
)

// DBTX is the narrow query surface shared by *sql.DB and *sql.Tx.
// Query helpers take a DBTX so they run identically inside and outside
// a transaction.
type DBTX interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// DB is the database struct.
type DB struct {
	db *sql.DB
}

var (
	dbInstance *DB
	dbOnce     sync.Once
)

const (
	//Accounts
	sqlCreateAccountsTable = `CREATE TABLE IF NOT EXISTS accounts(
                        id uuid NOT NULL PRIMARY KEY,
                        username varchar(100) UNIQUE NOT NULL,
                        display_name text,
                        summary text,
                        avatar_url text,
                        web_public_key text,
                        web_private_key text,
                        is_instance int default 0,
                        created_at timestamp default current_timestamp
                        )`
	sqlInsertAccount            = `INSERT INTO accounts(id, username, display_name, summary, avatar_url, web_public_key, web_private_key, is_instance, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectAccountByUsername  = `SELECT id, username, display_name, summary, avatar_url, web_public_key, web_private_key, is_instance, created_at FROM accounts WHERE username = ?`
	sqlSelectAccountById        = `SELECT id, username, display_name, summary, avatar_url, web_public_key, web_private_key, is_instance, created_at FROM accounts WHERE id = ?`
	sqlSelectInstanceAccount    = `SELECT id, username, display_name, summary, avatar_url, web_public_key, web_private_key, is_instance, created_at FROM accounts WHERE is_instance = 1`
)

// Open opens (or creates) the database at the given path. Used by GetDB
// and directly by tests.
func Open(path string) (*DB, error) {
	sqlDb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if path == ":memory:" {
		// Every connection gets its own in-memory database, so the
		// pool must stay at a single connection
		sqlDb.SetMaxOpenConns(1)
	} else {
		// Configure connection pool for concurrent access
		sqlDb.SetMaxOpenConns(25)
		sqlDb.SetMaxIdleConns(5)
		sqlDb.SetConnMaxLifetime(time.Hour)

		var journalMode string
		err = sqlDb.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode)
		if err != nil {
			log.Printf("Warning: Failed to enable WAL mode: %v", err)
		} else {
			log.Printf("Database journal mode: %s", journalMode)
		}

		// PRAGMAs tuned for the concurrent federation workload
		sqlDb.Exec("PRAGMA synchronous = NORMAL")
		sqlDb.Exec("PRAGMA cache_size = -64000")
		sqlDb.Exec("PRAGMA temp_store = MEMORY")
		sqlDb.Exec("PRAGMA busy_timeout = 5000")
	}
	sqlDb.Exec("PRAGMA foreign_keys = ON")

	database := &DB{db: sqlDb}
	if err := database.RunMigrations(); err != nil {
		return nil, err
	}
	return database, nil
}

func GetDB() *DB {
	dbOnce.Do(func() {
		database, err := Open(util.ResolveFilePath("database.db"))
		if err != nil {
			panic(err)
		}
		log.Printf("Database initialized with connection pooling (max 25 connections)")
		dbInstance = database
	})

	return dbInstance
}

// UseDB replaces the singleton returned by GetDB. Tests use it to point
// the federation code at a fresh in-memory database.
func UseDB(database *DB) {
	dbOnce.Do(func() {})
	dbInstance = database
}

// wrapTransaction runs the given function within a transaction.
func (db *DB) wrapTransaction(f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("error starting transaction: %s", err)
		return err
	}
	for {
		err = f(tx)
		if err != nil {
			serr, ok := err.(*sqlite.Error)
			if ok && serr.Code() == sqlitelib.SQLITE_BUSY {
				continue
			}
			tx.Rollback()
			return err
		}
		err = tx.Commit()
		if err != nil {
			log.Printf("error committing transaction: %s", err)
			return err
		}
		break
	}
	return nil
}

// IsUniqueViolation reports whether err is a unique/primary key conflict.
// Callers racing on get-or-fetch treat this as "already resolved by a
// concurrent caller" and re-read instead of failing.
func IsUniqueViolation(err error) bool {
	serr, ok := err.(*sqlite.Error)
	if !ok {
		return false
	}
	code := serr.Code()
	return code == sqlitelib.SQLITE_CONSTRAINT ||
		code == sqlitelib.SQLITE_CONSTRAINT_UNIQUE ||
		code == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY
}

func (db *DB) CreateAccount(acc *domain.Account) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		return insertAccount(tx, acc)
	})
}

func insertAccount(tx DBTX, acc *domain.Account) error {
	isInstance := 0
	if acc.IsInstance {
		isInstance = 1
	}
	_, err := tx.Exec(sqlInsertAccount,
		acc.Id.String(),
		acc.Username,
		acc.DisplayName,
		acc.Summary,
		acc.AvatarURL,
		acc.WebPublicKey,
		acc.WebPrivateKey,
		isInstance,
		acc.CreatedAt,
	)
	return err
}

func scanAccount(row *sql.Row) (error, *domain.Account) {
	var acc domain.Account
	var idStr string
	var isInstance int
	err := row.Scan(
		&idStr,
		&acc.Username,
		&acc.DisplayName,
		&acc.Summary,
		&acc.AvatarURL,
		&acc.WebPublicKey,
		&acc.WebPrivateKey,
		&isInstance,
		&acc.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	acc.Id, _ = uuid.Parse(idStr)
	acc.IsInstance = isInstance == 1
	return nil, &acc
}

func (db *DB) ReadAccByUsername(username string) (error, *domain.Account) {
	return scanAccount(db.db.QueryRow(sqlSelectAccountByUsername, username))
}

func (db *DB) ReadAccById(id uuid.UUID) (error, *domain.Account) {
	return scanAccount(db.db.QueryRow(sqlSelectAccountById, id.String()))
}

func (db *DB) ReadInstanceAcc() (error, *domain.Account) {
	return scanAccount(db.db.QueryRow(sqlSelectInstanceAccount))
}

// EnsureInstanceAccount creates the instance service actor on first start.
// The instance actor signs fetch requests before any local user exists.
func (db *DB) EnsureInstanceAccount(domainName string) (error, *domain.Account) {
	err, existing := db.ReadInstanceAcc()
	if err == nil && existing != nil {
		return nil, existing
	}

	keypair := util.GeneratePemKeypair()
	acc := &domain.Account{
		Id:            uuid.New(),
		Username:      domainName,
		DisplayName:   domainName,
		WebPublicKey:  keypair.Public,
		WebPrivateKey: keypair.Private,
		IsInstance:    true,
		CreatedAt:     time.Now(),
	}
	if err := db.CreateAccount(acc); err != nil {
		if IsUniqueViolation(err) {
			return db.ReadInstanceAcc()
		}
		return err, nil
	}
	log.Printf("DB: Created instance actor for %s", domainName)
	return nil, acc
}
