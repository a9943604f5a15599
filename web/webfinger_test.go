package web

import (
	"encoding/json"
	"testing"
)

func TestGetWebFingerNotFound(t *testing.T) {
	result := GetWebFingerNotFound()
	expected := `{"detail":"Not Found"}`

	if result != expected {
		t.Errorf("Expected %s, got %s", expected, result)
	}

	var jsonMap map[string]interface{}
	if err := json.Unmarshal([]byte(result), &jsonMap); err != nil {
		t.Error("Result should be valid JSON")
	}
	if jsonMap["detail"] != "Not Found" {
		t.Error("JSON should contain 'detail' field with 'Not Found'")
	}
}

func TestWebfingerSubjectFormat(t *testing.T) {
	tests := []struct {
		username string
		domain   string
		want     string
	}{
		{"alice", "example.com", "acct:alice@example.com"},
		{"bob", "social.network", "acct:bob@social.network"},
		{"user_123", "test.org", "acct:user_123@test.org"},
	}

	for _, tt := range tests {
		t.Run(tt.username+"@"+tt.domain, func(t *testing.T) {
			subject := "acct:" + tt.username + "@" + tt.domain
			if subject != tt.want {
				t.Errorf("Expected subject %s, got %s", tt.want, subject)
			}
		})
	}
}
