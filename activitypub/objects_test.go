package activitypub

import (
	"encoding/json"
	"testing"

	"github.com/deemkeen/loxodon/domain"
	"github.com/deemkeen/loxodon/util"
)

func testConf() *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.SslDomain = "example.com"
	conf.Conf.FetcherTimeoutSec = 5
	conf.Conf.MaxObjectSize = 1024 * 1024
	conf.Conf.MaxReplyDepth = 10
	return conf
}

func TestToStrings(t *testing.T) {
	if got := toStrings("https://example.com/a"); len(got) != 1 || got[0] != "https://example.com/a" {
		t.Errorf("Single string should yield one entry, got %v", got)
	}

	list := []interface{}{"https://example.com/a", "https://example.com/b"}
	if got := toStrings(list); len(got) != 2 {
		t.Errorf("String list should yield two entries, got %v", got)
	}

	objects := []interface{}{
		map[string]interface{}{"id": "https://example.com/a"},
		"https://example.com/b",
	}
	got := toStrings(objects)
	if len(got) != 2 || got[0] != "https://example.com/a" {
		t.Errorf("Mixed list should flatten object ids, got %v", got)
	}

	if got := toStrings(nil); got != nil {
		t.Errorf("Nil should yield nil, got %v", got)
	}
	if got := toStrings(42); got != nil {
		t.Errorf("Unexpected type should yield nil, got %v", got)
	}
}

func TestParseAudience(t *testing.T) {
	author := &domain.RemoteAccount{
		FollowersURI:   "https://remote.example/users/bob/followers",
		SubscribersURI: "https://remote.example/users/bob/subscribers",
	}

	tests := []struct {
		name string
		to   []string
		cc   []string
		want string
	}{
		{"public marker in to", []string{"https://www.w3.org/ns/activitystreams#Public"}, nil, domain.VisibilityPublic},
		{"public marker in cc", []string{author.FollowersURI}, []string{"https://www.w3.org/ns/activitystreams#Public"}, domain.VisibilityPublic},
		{"compact public marker", []string{"as:Public"}, nil, domain.VisibilityPublic},
		{"bare public marker", nil, []string{"Public"}, domain.VisibilityPublic},
		{"followers only", []string{author.FollowersURI}, nil, domain.VisibilityFollowers},
		{"subscribers only", []string{author.SubscribersURI}, nil, domain.VisibilitySubscribers},
		{"followers beats subscribers", []string{author.SubscribersURI, author.FollowersURI}, nil, domain.VisibilityFollowers},
		{"direct", []string{"https://example.com/users/alice"}, nil, domain.VisibilityDirect},
		{"empty addressing", nil, nil, domain.VisibilityDirect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseAudience(tt.to, tt.cc, author); got != tt.want {
				t.Errorf("ParseAudience() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseAudienceWithoutAuthor(t *testing.T) {
	if got := ParseAudience([]string{"https://somewhere/followers"}, nil, nil); got != domain.VisibilityDirect {
		t.Errorf("Unknown collections without an author should be direct, got %s", got)
	}
}

func TestIsLocalObjectURI(t *testing.T) {
	conf := testConf()

	if !IsLocalObjectURI("https://example.com/objects/123", conf) {
		t.Error("Own object URI should be local")
	}
	if IsLocalObjectURI("https://remote.example/objects/123", conf) {
		t.Error("Foreign object URI should not be local")
	}
	if IsLocalObjectURI("https://example.com/users/alice", conf) {
		t.Error("Actor URI should not be a local object URI")
	}
}

func TestObjectDocumentAttribution(t *testing.T) {
	jsonData := `{
		"id": "https://remote.example/objects/1",
		"type": "Note",
		"attributedTo": [{"type": "Person", "id": "https://remote.example/users/bob"}],
		"content": "<p>hi</p>"
	}`

	var doc ObjectDocument
	if err := json.Unmarshal([]byte(jsonData), &doc); err != nil {
		t.Fatalf("Failed to unmarshal object: %v", err)
	}
	if doc.Attribution() != "https://remote.example/users/bob" {
		t.Errorf("Expected attribution from object list, got %s", doc.Attribution())
	}
}

func TestObjectDocumentUnmarshal(t *testing.T) {
	jsonData := `{
		"id": "https://remote.example/objects/1",
		"type": "Note",
		"attributedTo": "https://remote.example/users/bob",
		"content": "<p>hello</p>",
		"published": "2024-03-01T12:00:00Z",
		"inReplyTo": "https://remote.example/objects/0",
		"sensitive": true,
		"summary": "cw",
		"to": ["https://www.w3.org/ns/activitystreams#Public"],
		"tag": [{"type": "Mention", "name": "@alice@example.com", "href": "https://example.com/users/alice"}],
		"attachment": [{"type": "Document", "mediaType": "image/png", "url": "https://remote.example/media/1.png"}]
	}`

	var doc ObjectDocument
	if err := json.Unmarshal([]byte(jsonData), &doc); err != nil {
		t.Fatalf("Failed to unmarshal object: %v", err)
	}
	if doc.Type != "Note" {
		t.Errorf("Expected type Note, got %s", doc.Type)
	}
	if doc.InReplyTo != "https://remote.example/objects/0" {
		t.Errorf("Unexpected inReplyTo: %s", doc.InReplyTo)
	}
	if !doc.Sensitive || doc.Summary != "cw" {
		t.Error("Sensitive flag and summary should be parsed")
	}
	if len(doc.Tag) != 1 || doc.Tag[0].Type != "Mention" {
		t.Errorf("Expected one mention tag, got %v", doc.Tag)
	}
	if len(doc.Attachment) != 1 || doc.Attachment[0].MediaType != "image/png" {
		t.Errorf("Expected one attachment, got %v", doc.Attachment)
	}
}

func TestNormalizeHashtag(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"#Fedi", "fedi", true},
		{"fedi", "fedi", true},
		{"#tag_2024", "tag_2024", true},
		{"#über", "über", true},
		{"#", "", false},
		{"", "", false},
		{"#not valid!", "", false},
		{"#a/b", "", false},
	}
	for _, tt := range tests {
		got, ok := normalizeHashtag(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("normalizeHashtag(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLocalUsernameFromHref(t *testing.T) {
	conf := testConf()

	if username, ok := localUsernameFromHref("https://example.com/users/alice", conf); !ok || username != "alice" {
		t.Errorf("Expected alice, got %s (%v)", username, ok)
	}
	if _, ok := localUsernameFromHref("https://remote.example/users/alice", conf); ok {
		t.Error("Foreign href should not resolve")
	}
	if _, ok := localUsernameFromHref("https://example.com/users/alice/followers", conf); ok {
		t.Error("Collection href should not resolve to a username")
	}
}
