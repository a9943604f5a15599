package activitypub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deemkeen/loxodon/domain"
	"github.com/deemkeen/loxodon/util"
	"github.com/google/uuid"
)

func testSender(t *testing.T) *domain.Account {
	t.Helper()
	keypair := util.GeneratePemKeypair()
	return &domain.Account{
		Id:            uuid.New(),
		Username:      "alice",
		WebPublicKey:  keypair.Public,
		WebPrivateKey: keypair.Private,
		CreatedAt:     time.Now(),
	}
}

func captureSleeps(t *testing.T) *[]time.Duration {
	t.Helper()
	var sleeps []time.Duration
	original := sleepFunc
	sleepFunc = func(d time.Duration) {
		sleeps = append(sleeps, d)
	}
	t.Cleanup(func() { sleepFunc = original })
	return &sleeps
}

func TestDeliveryRetrySchedule(t *testing.T) {
	sleeps := captureSleeps(t)

	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	conf := testConf()
	sender := testSender(t)
	deliverToInboxes(conf, sender, []byte(`{"type":"Create"}`), []domain.RemoteAccount{
		{InboxURI: server.URL + "/inbox"},
	})

	if got := atomic.LoadInt32(&requests); got != 3 {
		t.Errorf("Expected 3 delivery attempts, got %d", got)
	}
	expected := []time.Duration{30 * time.Second, 5 * time.Minute}
	if len(*sleeps) != len(expected) {
		t.Fatalf("Expected %d backoff sleeps, got %d", len(expected), len(*sleeps))
	}
	for i, want := range expected {
		if (*sleeps)[i] != want {
			t.Errorf("Backoff %d: expected %s, got %s", i, want, (*sleeps)[i])
		}
	}
}

func TestDeliveryStopsRetryingAfterSuccess(t *testing.T) {
	sleeps := captureSleeps(t)

	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	conf := testConf()
	sender := testSender(t)
	deliverToInboxes(conf, sender, []byte(`{"type":"Create"}`), []domain.RemoteAccount{
		{InboxURI: server.URL + "/inbox"},
	})

	if got := atomic.LoadInt32(&requests); got != 2 {
		t.Errorf("Expected 2 delivery attempts, got %d", got)
	}
	if len(*sleeps) != 1 {
		t.Errorf("Expected 1 backoff sleep, got %d", len(*sleeps))
	}
}

func TestDeliveryFailingInboxDoesNotDelayOthers(t *testing.T) {
	var mu sync.Mutex
	var events []string
	record := func(event string) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	}

	original := sleepFunc
	sleepFunc = func(d time.Duration) { record("sleep " + d.String()) }
	t.Cleanup(func() { sleepFunc = original })

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		record("POST " + r.URL.Path)
		if strings.HasPrefix(r.URL.Path, "/a/") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	conf := testConf()
	sender := testSender(t)
	deliverToInboxes(conf, sender, []byte(`{"type":"Create"}`), []domain.RemoteAccount{
		{InboxURI: server.URL + "/a/inbox"},
		{InboxURI: server.URL + "/b/inbox"},
	})

	// The healthy inbox is attempted in the first pass; only the failing
	// inbox enters the retry set
	expected := []string{
		"POST /a/inbox",
		"POST /b/inbox",
		"sleep 30s",
		"POST /a/inbox",
		"sleep 5m0s",
		"POST /a/inbox",
	}
	if len(events) != len(expected) {
		t.Fatalf("Expected events %v, got %v", expected, events)
	}
	for i, want := range expected {
		if events[i] != want {
			t.Fatalf("Event %d: expected %q, got %q (all: %v)", i, want, events[i], events)
		}
	}
}

func TestDeliveryRequestShape(t *testing.T) {
	var contentType, signature, digest string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		signature = r.Header.Get("Signature")
		digest = r.Header.Get("Digest")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	conf := testConf()
	sender := testSender(t)
	deliverToInboxes(conf, sender, []byte(`{"type":"Create"}`), []domain.RemoteAccount{
		{InboxURI: server.URL + "/inbox"},
	})

	if contentType != ActivityContentType {
		t.Errorf("Expected content type %s, got %s", ActivityContentType, contentType)
	}
	if signature == "" {
		t.Error("Delivery must carry an HTTP signature")
	}
	if digest != ComputeDigest([]byte(`{"type":"Create"}`)) {
		t.Errorf("Unexpected digest header: %s", digest)
	}
}

func TestDeliveryCollapsesSharedInboxes(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sharedInbox := server.URL + "/inbox"
	recipients := []domain.RemoteAccount{
		{InboxURI: server.URL + "/users/a/inbox", SharedInboxURI: sharedInbox},
		{InboxURI: server.URL + "/users/b/inbox", SharedInboxURI: sharedInbox},
		{InboxURI: server.URL + "/users/c/inbox", SharedInboxURI: sharedInbox},
	}

	conf := testConf()
	sender := testSender(t)
	deliverToInboxes(conf, sender, []byte(`{"type":"Create"}`), recipients)

	if got := atomic.LoadInt32(&requests); got != 1 {
		t.Errorf("Shared inbox recipients should collapse to 1 delivery, got %d", got)
	}
}

func TestDeliverySkippedInPrivateMode(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
	}))
	defer server.Close()

	conf := testConf()
	conf.Conf.Private = true
	sender := testSender(t)
	deliverToInboxes(conf, sender, []byte(`{"type":"Create"}`), []domain.RemoteAccount{
		{InboxURI: server.URL + "/inbox"},
	})

	if got := atomic.LoadInt32(&requests); got != 0 {
		t.Errorf("Private mode must not deliver, got %d requests", got)
	}
}

func TestDeliveryEmptyRecipientsIsNoop(t *testing.T) {
	conf := testConf()
	sender := testSender(t)
	// Must return without touching the network or the sender key
	deliverToInboxes(conf, sender, []byte(`{}`), nil)
}
