package util

import (
	"testing"
)

func TestConfigURIHelpers(t *testing.T) {
	conf := &AppConfig{}
	conf.Conf.SslDomain = "example.com"

	if conf.BaseURL() != "https://example.com" {
		t.Errorf("Unexpected base URL: %s", conf.BaseURL())
	}
	if conf.ActorURI("alice") != "https://example.com/users/alice" {
		t.Errorf("Unexpected actor URI: %s", conf.ActorURI("alice"))
	}
	if conf.InstanceActorURI() != "https://example.com/actor" {
		t.Errorf("Unexpected instance actor URI: %s", conf.InstanceActorURI())
	}
	if conf.ObjectURI("123") != "https://example.com/objects/123" {
		t.Errorf("Unexpected object URI: %s", conf.ObjectURI("123"))
	}
}

func TestApplyLimitDefaults(t *testing.T) {
	conf := &AppConfig{}
	applyLimitDefaults(conf)

	if conf.Conf.FetcherTimeoutSec != 30 {
		t.Errorf("Expected default fetcher timeout 30, got %d", conf.Conf.FetcherTimeoutSec)
	}
	if conf.Conf.MaxObjectSize != 1024*1024 {
		t.Errorf("Expected default max object size 1MiB, got %d", conf.Conf.MaxObjectSize)
	}
	if conf.Conf.MaxReplyDepth != 10 {
		t.Errorf("Expected default reply depth 10, got %d", conf.Conf.MaxReplyDepth)
	}
}

func TestApplyLimitDefaultsKeepsExplicitValues(t *testing.T) {
	conf := &AppConfig{}
	conf.Conf.FetcherTimeoutSec = 5
	conf.Conf.MaxObjectSize = 2048
	conf.Conf.MaxReplyDepth = 3
	applyLimitDefaults(conf)

	if conf.Conf.FetcherTimeoutSec != 5 || conf.Conf.MaxObjectSize != 2048 || conf.Conf.MaxReplyDepth != 3 {
		t.Error("Explicit limits should not be overridden")
	}
}

func TestUserAgent(t *testing.T) {
	conf := &AppConfig{}
	conf.Conf.SslDomain = "example.com"

	ua := conf.UserAgent()
	if ua == "" {
		t.Fatal("User agent should not be empty")
	}
	if ua[:len(Name)] != Name {
		t.Errorf("User agent should start with the instance name, got %s", ua)
	}
}
