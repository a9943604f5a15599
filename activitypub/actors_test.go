package activitypub

import (
	"encoding/json"
	"testing"
)

func TestActorDocumentUnmarshal(t *testing.T) {
	jsonData := `{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id": "https://remote.example/users/bob",
		"type": "Person",
		"preferredUsername": "bob",
		"name": "Bob Example",
		"summary": "<p>hi</p>",
		"inbox": "https://remote.example/users/bob/inbox",
		"outbox": "https://remote.example/users/bob/outbox",
		"followers": "https://remote.example/users/bob/followers",
		"endpoints": {
			"sharedInbox": "https://remote.example/inbox"
		},
		"icon": {
			"type": "Image",
			"mediaType": "image/png",
			"url": "https://remote.example/avatars/bob.png"
		},
		"publicKey": {
			"id": "https://remote.example/users/bob#main-key",
			"owner": "https://remote.example/users/bob",
			"publicKeyPem": "-----BEGIN PUBLIC KEY-----\nMIIBIjANBg...\n-----END PUBLIC KEY-----"
		}
	}`

	var doc ActorDocument
	if err := json.Unmarshal([]byte(jsonData), &doc); err != nil {
		t.Fatalf("Failed to unmarshal actor document: %v", err)
	}

	if doc.Id != "https://remote.example/users/bob" {
		t.Errorf("Unexpected id: %s", doc.Id)
	}
	if doc.PreferredUsername != "bob" {
		t.Errorf("Unexpected preferredUsername: %s", doc.PreferredUsername)
	}
	if doc.Inbox != "https://remote.example/users/bob/inbox" {
		t.Errorf("Unexpected inbox: %s", doc.Inbox)
	}
	if doc.Endpoints.SharedInbox != "https://remote.example/inbox" {
		t.Errorf("Unexpected sharedInbox: %s", doc.Endpoints.SharedInbox)
	}
	if doc.Icon.URL != "https://remote.example/avatars/bob.png" {
		t.Errorf("Unexpected icon url: %s", doc.Icon.URL)
	}
	if doc.PublicKey.Owner != doc.Id {
		t.Errorf("Key owner should be the actor, got %s", doc.PublicKey.Owner)
	}
}

func TestActorDocumentMissingOptionalFields(t *testing.T) {
	jsonData := `{
		"id": "https://remote.example/users/bob",
		"type": "Person",
		"preferredUsername": "bob",
		"inbox": "https://remote.example/users/bob/inbox",
		"publicKey": {"publicKeyPem": "PEM"}
	}`

	var doc ActorDocument
	if err := json.Unmarshal([]byte(jsonData), &doc); err != nil {
		t.Fatalf("Failed to unmarshal minimal actor document: %v", err)
	}
	if doc.Endpoints.SharedInbox != "" || doc.Icon.URL != "" {
		t.Error("Missing optional fields should stay empty")
	}
}

func TestResolveActorAddressRejectsMalformedAddress(t *testing.T) {
	conf := testConf()
	for _, address := range []string{"", "bob", "@remote.example", "bob@"} {
		if _, err := ResolveActorAddress(address, conf); err == nil {
			t.Errorf("Expected error for address %q", address)
		}
	}
}
