package db

import (
	"database/sql"
	"testing"
	"time"

	"github.com/deemkeen/loxodon/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *DB {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	// A single connection keeps all statements on the same in-memory DB
	sqlDB.SetMaxOpenConns(1)

	db := &DB{db: sqlDB}
	if err := db.RunMigrations(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

func testAccount(username string) *domain.Account {
	return &domain.Account{
		Id:            uuid.New(),
		Username:      username,
		DisplayName:   username,
		WebPublicKey:  "pub",
		WebPrivateKey: "priv",
		CreatedAt:     time.Now(),
	}
}

func testRemoteAccount(username string, remoteDomain string) *domain.RemoteAccount {
	return &domain.RemoteAccount{
		Id:            uuid.New(),
		Username:      username,
		Domain:        remoteDomain,
		ActorURI:      "https://" + remoteDomain + "/users/" + username,
		InboxURI:      "https://" + remoteDomain + "/users/" + username + "/inbox",
		PublicKeyPem:  "pem",
		LastFetchedAt: time.Now(),
	}
}

func TestCreateAndReadAccount(t *testing.T) {
	db := setupTestDB(t)

	acc := testAccount("alice")
	if err := db.CreateAccount(acc); err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}

	err, read := db.ReadAccByUsername("alice")
	if err != nil {
		t.Fatalf("Failed to read account: %v", err)
	}
	if read.Id != acc.Id {
		t.Errorf("Expected id %s, got %s", acc.Id, read.Id)
	}
	if read.IsInstance {
		t.Error("Regular account should not be an instance account")
	}
}

func TestEnsureInstanceAccount(t *testing.T) {
	db := setupTestDB(t)

	err, acc := db.EnsureInstanceAccount("example.com")
	if err != nil {
		t.Fatalf("Failed to ensure instance account: %v", err)
	}
	if !acc.IsInstance {
		t.Error("Instance account should have IsInstance set")
	}
	if acc.WebPrivateKey == "" || acc.WebPublicKey == "" {
		t.Error("Instance account should have a keypair")
	}

	// Second call returns the same account instead of creating another
	err, again := db.EnsureInstanceAccount("example.com")
	if err != nil {
		t.Fatalf("Second ensure failed: %v", err)
	}
	if again.Id != acc.Id {
		t.Errorf("Expected same instance account %s, got %s", acc.Id, again.Id)
	}
}

func TestCreatePostDuplicateObjectURI(t *testing.T) {
	db := setupTestDB(t)

	remote := testRemoteAccount("bob", "remote.example")
	if err := db.CreateRemoteAccount(remote); err != nil {
		t.Fatalf("Failed to create remote account: %v", err)
	}

	post := &domain.Post{
		Id:        uuid.New(),
		AccountId: remote.Id,
		Author:    remote.Address(),
		Content:   "hello",
		Visibility: domain.VisibilityPublic,
		ObjectURI: "https://remote.example/objects/1",
		CreatedAt: time.Now(),
	}
	if err := db.CreatePost(post); err != nil {
		t.Fatalf("Failed to create post: %v", err)
	}

	duplicate := *post
	duplicate.Id = uuid.New()
	err := db.CreatePost(&duplicate)
	if err == nil {
		t.Fatal("Expected unique violation for duplicate object URI")
	}
	if !IsUniqueViolation(err) {
		t.Errorf("Expected IsUniqueViolation to report true, got: %v", err)
	}

	err, read := db.ReadPostByObjectURI(post.ObjectURI)
	if err != nil {
		t.Fatalf("Failed to read post: %v", err)
	}
	if read.Id != post.Id {
		t.Errorf("Expected original post %s, got %s", post.Id, read.Id)
	}
}

func TestReadPublicPostsExcludesNonPublic(t *testing.T) {
	db := setupTestDB(t)

	acc := testAccount("carol")
	if err := db.CreateAccount(acc); err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}

	for i, visibility := range []string{domain.VisibilityPublic, domain.VisibilityFollowers, domain.VisibilityDirect} {
		post := &domain.Post{
			Id:         uuid.New(),
			AccountId:  acc.Id,
			Author:     acc.Username,
			Content:    "post",
			Visibility: visibility,
			Local:      true,
			CreatedAt:  time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := db.CreatePost(post); err != nil {
			t.Fatalf("Failed to create post: %v", err)
		}
	}

	err, posts := db.ReadPublicPostsByUsername("carol", 10, 0)
	if err != nil {
		t.Fatalf("Failed to read posts: %v", err)
	}
	if len(*posts) != 1 {
		t.Errorf("Expected 1 public post, got %d", len(*posts))
	}

	err, count := db.CountPublicPostsByUsername("carol")
	if err != nil {
		t.Fatalf("Failed to count posts: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected count 1, got %d", count)
	}
}

func TestFollowLifecycle(t *testing.T) {
	db := setupTestDB(t)

	local := testAccount("dave")
	if err := db.CreateAccount(local); err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}
	remote := testRemoteAccount("erin", "remote.example")
	if err := db.CreateRemoteAccount(remote); err != nil {
		t.Fatalf("Failed to create remote account: %v", err)
	}

	follow := &domain.Follow{
		Id:              uuid.New(),
		AccountId:       remote.Id,
		TargetAccountId: local.Id,
		URI:             "https://remote.example/activities/follow-1",
		Accepted:        true,
		CreatedAt:       time.Now(),
	}
	if err := db.CreateFollow(follow); err != nil {
		t.Fatalf("Failed to create follow: %v", err)
	}

	// A redelivered follow hits the unique constraint
	duplicate := *follow
	duplicate.Id = uuid.New()
	if err := db.CreateFollow(&duplicate); !IsUniqueViolation(err) {
		t.Errorf("Expected unique violation for duplicate follow, got: %v", err)
	}

	err, count := db.CountFollowers(local.Id)
	if err != nil {
		t.Fatalf("Failed to count followers: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 follower, got %d", count)
	}

	err, byURI := db.ReadFollowByURI(follow.URI)
	if err != nil || byURI == nil {
		t.Fatalf("Failed to read follow by URI: %v", err)
	}
	if byURI.AccountId != remote.Id {
		t.Errorf("Expected follower %s, got %s", remote.Id, byURI.AccountId)
	}

	// The delivery fan-out path: followers back to their inboxes
	err, followers := db.ReadFollowersOfAccount(local.Id)
	if err != nil {
		t.Fatalf("Failed to read followers: %v", err)
	}
	if len(*followers) != 1 {
		t.Fatalf("Expected 1 follower row, got %d", len(*followers))
	}
	err, follower := db.ReadRemoteAccountById((*followers)[0].AccountId)
	if err != nil || follower == nil {
		t.Fatalf("Failed to read follower account: %v", err)
	}
	if follower.InboxURI != remote.InboxURI {
		t.Errorf("Expected inbox %s, got %s", remote.InboxURI, follower.InboxURI)
	}

	if err := db.DeleteFollowByURI(follow.URI); err != nil {
		t.Fatalf("Failed to delete follow: %v", err)
	}
	err, count = db.CountFollowers(local.Id)
	if err != nil {
		t.Fatalf("Failed to count followers: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 followers after undo, got %d", count)
	}

	// Deleting an absent follow is a no-op
	if err := db.DeleteFollowByURI(follow.URI); err != nil {
		t.Errorf("Deleting missing follow should not fail: %v", err)
	}
}

func TestReactionUniquePerAccountAndPost(t *testing.T) {
	db := setupTestDB(t)

	remote := testRemoteAccount("frank", "remote.example")
	if err := db.CreateRemoteAccount(remote); err != nil {
		t.Fatalf("Failed to create remote account: %v", err)
	}

	postId := uuid.New()
	reaction := &domain.Reaction{
		Id:          uuid.New(),
		AccountId:   remote.Id,
		PostId:      postId,
		ActivityURI: "https://remote.example/activities/like-1",
		CreatedAt:   time.Now(),
	}
	if err := db.CreateReaction(reaction); err != nil {
		t.Fatalf("Failed to create reaction: %v", err)
	}

	second := &domain.Reaction{
		Id:          uuid.New(),
		AccountId:   remote.Id,
		PostId:      postId,
		ActivityURI: "https://remote.example/activities/like-2",
		CreatedAt:   time.Now(),
	}
	if err := db.CreateReaction(second); !IsUniqueViolation(err) {
		t.Errorf("Expected unique violation for second like on same post, got: %v", err)
	}

	if err := db.DeleteReactionByActivityURI(reaction.ActivityURI); err != nil {
		t.Fatalf("Failed to delete reaction: %v", err)
	}
	err, read := db.ReadReactionByActivityURI(reaction.ActivityURI)
	if read != nil {
		t.Error("Reaction should be gone after delete")
	}
	if err != sql.ErrNoRows {
		t.Errorf("Expected ErrNoRows, got: %v", err)
	}
}
