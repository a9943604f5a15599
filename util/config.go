package util

import (
	_ "embed"
	"fmt"
	"gopkg.in/yaml.v3"
	"log"
	"os"
	"strconv"
)

const Name = "loxodon"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host              string
		HttpPort          int    `yaml:"httpPort"`
		SslDomain         string `yaml:"sslDomain"`
		Private           bool   `yaml:"private"`
		FetcherTimeoutSec int    `yaml:"fetcherTimeoutSec"`
		MaxObjectSize     int64  `yaml:"maxObjectSize"`
		MaxReplyDepth     int    `yaml:"maxReplyDepth"`
	}
}

// BaseURL returns the https URL of this instance, without a trailing slash
func (c *AppConfig) BaseURL() string {
	return fmt.Sprintf("https://%s", c.Conf.SslDomain)
}

// ActorURI returns the actor URI of a local username
func (c *AppConfig) ActorURI(username string) string {
	return fmt.Sprintf("%s/users/%s", c.BaseURL(), username)
}

// InstanceActorURI returns the URI of the instance service actor
func (c *AppConfig) InstanceActorURI() string {
	return fmt.Sprintf("%s/actor", c.BaseURL())
}

// ObjectURI returns the object URI of a local post id
func (c *AppConfig) ObjectURI(id string) string {
	return fmt.Sprintf("%s/objects/%s", c.BaseURL(), id)
}

// UserAgent returns the User-Agent header value for outbound requests
func (c *AppConfig) UserAgent() string {
	return fmt.Sprintf("%s/%s; %s", Name, GetVersion(), c.BaseURL())
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	var buf []byte
	var err error

	// Try to read from resolved path
	buf, err = os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Printf("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		// Try to write default config to user config directory
		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644)
			if writeErr != nil {
				log.Printf("Warning: could not write default config to %s: %v", userConfigPath, writeErr)
			} else {
				log.Printf("Created default config file at %s", userConfigPath)
			}
		}
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	envHost := os.Getenv("LOXODON_HOST")
	envHttpPort := os.Getenv("LOXODON_HTTPPORT")
	envSslDomain := os.Getenv("LOXODON_SSLDOMAIN")
	envPrivate := os.Getenv("LOXODON_PRIVATE")
	envFetcherTimeout := os.Getenv("LOXODON_FETCHER_TIMEOUT")
	envMaxObjectSize := os.Getenv("LOXODON_MAX_OBJECT_SIZE")
	envMaxReplyDepth := os.Getenv("LOXODON_MAX_REPLY_DEPTH")

	if envHost != "" {
		c.Conf.Host = envHost
	}

	if envHttpPort != "" {
		v, err := strconv.Atoi(envHttpPort)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.HttpPort = v
	}

	if envSslDomain != "" {
		c.Conf.SslDomain = envSslDomain
	}

	if envPrivate == "true" {
		c.Conf.Private = true
	}

	if envFetcherTimeout != "" {
		v, err := strconv.Atoi(envFetcherTimeout)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.FetcherTimeoutSec = v
	}

	if envMaxObjectSize != "" {
		v, err := strconv.ParseInt(envMaxObjectSize, 10, 64)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.MaxObjectSize = v
	}

	if envMaxReplyDepth != "" {
		v, err := strconv.Atoi(envMaxReplyDepth)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.MaxReplyDepth = v
	}

	applyLimitDefaults(c)

	return c, nil
}

// applyLimitDefaults fills in limits the config file left at zero
func applyLimitDefaults(c *AppConfig) {
	if c.Conf.FetcherTimeoutSec == 0 {
		c.Conf.FetcherTimeoutSec = 30
	}
	if c.Conf.MaxObjectSize == 0 {
		c.Conf.MaxObjectSize = 1 * 1024 * 1024
	}
	if c.Conf.MaxReplyDepth == 0 {
		c.Conf.MaxReplyDepth = 10
	}
}
