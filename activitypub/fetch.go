package activitypub

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/deemkeen/loxodon/db"
	"github.com/deemkeen/loxodon/util"
)

const ActivityContentType = "application/activity+json"

// connect timeout for outbound requests; the overall deadline comes from
// the configured fetcher timeout
const connectTimeout = 10 * time.Second

func newHTTPClient(conf *util.AppConfig) *http.Client {
	return &http.Client{
		Timeout: time.Duration(conf.Conf.FetcherTimeoutSec) * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
		},
	}
}

// FetchJSON issues a GET for an ActivityPub document, signed with the
// instance actor key. A private (federation-disabled) instance makes no
// outbound requests at all.
func FetchJSON(rawURL string, conf *util.AppConfig) ([]byte, error) {
	if conf.Conf.Private {
		log.Printf("Fetcher: private mode, not fetching %s", rawURL)
		return nil, ErrPrivateMode
	}

	req, err := http.NewRequest("GET", rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", ActivityContentType)
	req.Header.Set("User-Agent", conf.UserAgent())
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)

	if err := signFetchRequest(req, conf); err != nil {
		// An unsigned fetch still works against most servers
		log.Printf("Fetcher: could not sign request for %s: %v", rawURL, err)
	}

	body, err := readLimitedResponse(newHTTPClient(conf), req, conf.Conf.MaxObjectSize)
	if err != nil {
		return nil, err
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("invalid JSON from %s", rawURL)
	}
	return body, nil
}

// signFetchRequest signs a GET with the instance actor key
func signFetchRequest(req *http.Request, conf *util.AppConfig) error {
	err, instanceAcc := db.GetDB().ReadInstanceAcc()
	if err != nil || instanceAcc == nil {
		return fmt.Errorf("instance actor unavailable: %w", err)
	}
	privateKey, err := ParsePrivateKey(instanceAcc.WebPrivateKey)
	if err != nil {
		return err
	}
	keyId := conf.InstanceActorURI() + "#main-key"
	return SignRequest(req, privateKey, keyId, nil)
}

// FetchBinary streams a remote file (avatar, banner, attachment) and
// aborts early once the running byte count exceeds maxSize
func FetchBinary(rawURL string, maxSize int64, conf *util.AppConfig) ([]byte, string, error) {
	if conf.Conf.Private {
		log.Printf("Fetcher: private mode, not fetching %s", rawURL)
		return nil, "", ErrPrivateMode
	}

	req, err := http.NewRequest("GET", rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", conf.UserAgent())

	resp, err := newHTTPClient(conf).Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &HTTPError{Status: resp.StatusCode}
	}
	if resp.ContentLength > maxSize {
		return nil, "", ErrTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, "", ErrTooLarge
	}

	return data, resp.Header.Get("Content-Type"), nil
}

// readLimitedResponse performs the request and reads at most maxSize bytes
func readLimitedResponse(client *http.Client, req *http.Request, maxSize int64) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Status: resp.StatusCode}
	}
	if resp.ContentLength > maxSize {
		return nil, ErrTooLarge
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > maxSize {
		return nil, ErrTooLarge
	}
	return body, nil
}

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// SaveRemoteImage mirrors a remote image into the media directory and
// returns the local file path. Unknown media types are rejected.
func SaveRemoteImage(rawURL string, conf *util.AppConfig) (string, error) {
	data, contentType, err := FetchBinary(rawURL, conf.Conf.MaxObjectSize, conf)
	if err != nil {
		return "", err
	}

	mediaType := strings.Split(contentType, ";")[0]
	ext, ok := imageExtensions[mediaType]
	if !ok {
		return "", fmt.Errorf("unsupported media type: %s", mediaType)
	}

	mediaDir, err := util.GetMediaDir()
	if err != nil {
		return "", err
	}

	hash := sha256.Sum256([]byte(rawURL))
	fileName := hex.EncodeToString(hash[:16]) + ext
	filePath := filepath.Join(mediaDir, fileName)

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save media file: %w", err)
	}
	return filePath, nil
}

// JsonResourceDescriptor is the webfinger response document
type JsonResourceDescriptor struct {
	Subject string `json:"subject"`
	Links   []struct {
		Rel  string `json:"rel"`
		Type string `json:"type"`
		Href string `json:"href"`
	} `json:"links"`
}

// ResolveWebfinger resolves a user@domain address to its actor URL via
// the remote server's webfinger endpoint
func ResolveWebfinger(address string, conf *util.AppConfig) (string, error) {
	address = strings.TrimPrefix(address, "@")
	parts := strings.Split(address, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("invalid actor address: %s", address)
	}

	if conf.Conf.Private {
		log.Printf("Fetcher: private mode, not resolving %s", address)
		return "", ErrPrivateMode
	}

	webfingerURL := fmt.Sprintf("https://%s/.well-known/webfinger?resource=%s",
		parts[1], url.QueryEscape("acct:"+address))

	req, err := http.NewRequest("GET", webfingerURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/jrd+json, application/json")
	req.Header.Set("User-Agent", conf.UserAgent())

	body, err := readLimitedResponse(newHTTPClient(conf), req, conf.Conf.MaxObjectSize)
	if err != nil {
		return "", err
	}

	var jrd JsonResourceDescriptor
	if err := json.Unmarshal(body, &jrd); err != nil {
		return "", fmt.Errorf("failed to parse webfinger response: %w", err)
	}

	for _, link := range jrd.Links {
		if link.Rel == "self" && link.Href != "" {
			return link.Href, nil
		}
	}
	return "", ErrNotFound
}
