package activitypub

import (
	"bytes"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/deemkeen/loxodon/db"
	"github.com/deemkeen/loxodon/domain"
	"github.com/deemkeen/loxodon/util"
)

// Retry delays between delivery attempts to one inbox. An inbox that
// still fails after the last attempt is abandoned.
var deliveryBackoff = []time.Duration{
	30 * time.Second,
	5 * time.Minute,
	50 * time.Minute,
}

const deliveryMaxAttempts = 3

// Swapped out in tests so backoff does not sleep for real
var sleepFunc = time.Sleep

// Deliver enqueues an activity for delivery to the given recipients.
// The actual sending happens in the outgoing worker; enqueueing makes
// the delivery durable across restarts.
func Deliver(conf *util.AppConfig, sender *domain.Account, activity map[string]interface{}, recipients []domain.RemoteAccount) error {
	if len(recipients) == 0 {
		return nil
	}

	activityJSON, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to serialize activity: %w", err)
	}

	job := domain.OutgoingActivityJob{
		Activity:   activityJSON,
		SenderId:   sender.Id,
		Recipients: recipients,
	}
	jobData, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return db.GetDB().EnqueueJob(domain.JobTypeOutgoingActivity, string(jobData), time.Now())
}

// deliverToInboxes sends a serialized activity to the recipients'
// inboxes. Inboxes are deduplicated (shared inboxes collapse whole
// servers into one target) and tried in sorted order so delivery runs
// are deterministic. Each pass attempts every pending inbox; the
// failures form the retry set for the next pass, after a backoff. A
// dead inbox therefore never delays another inbox's first attempt.
func deliverToInboxes(conf *util.AppConfig, sender *domain.Account, activityJSON []byte, recipients []domain.RemoteAccount) {
	if len(recipients) == 0 {
		return
	}
	if conf.Conf.Private {
		log.Printf("Deliverer: private mode, dropping delivery of %d recipients", len(recipients))
		return
	}

	inboxSet := make(map[string]struct{})
	for _, recipient := range recipients {
		inbox := recipient.InboxURI
		if recipient.SharedInboxURI != "" {
			inbox = recipient.SharedInboxURI
		}
		if inbox != "" {
			inboxSet[inbox] = struct{}{}
		}
	}
	inboxes := make([]string, 0, len(inboxSet))
	for inbox := range inboxSet {
		inboxes = append(inboxes, inbox)
	}
	sort.Strings(inboxes)

	privateKey, err := ParsePrivateKey(sender.WebPrivateKey)
	if err != nil {
		log.Printf("Deliverer: cannot parse key of %s: %v", sender.Username, err)
		return
	}
	keyId := AccountActorURI(sender, conf) + "#main-key"

	pending := inboxes
	for attempt := 1; ; attempt++ {
		var failed []string
		for _, inbox := range pending {
			err := sendActivity(conf, inbox, activityJSON, privateKey, keyId)
			if err == nil {
				continue
			}
			if attempt == deliveryMaxAttempts {
				log.Printf("Deliverer: abandoning %s after %d attempts: %v", inbox, attempt, err)
				continue
			}
			log.Printf("Deliverer: attempt %d for %s failed: %v", attempt, inbox, err)
			failed = append(failed, inbox)
		}
		if len(failed) == 0 {
			return
		}
		delay := deliveryBackoff[attempt-1]
		log.Printf("Deliverer: retrying %d inboxes in %s", len(failed), delay)
		sleepFunc(delay)
		pending = failed
	}
}

// sendActivity performs one signed POST to an inbox
func sendActivity(conf *util.AppConfig, inbox string, activityJSON []byte, privateKey *rsa.PrivateKey, keyId string) error {
	req, err := http.NewRequest("POST", inbox, bytes.NewReader(activityJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", ActivityContentType)
	req.Header.Set("User-Agent", conf.UserAgent())
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)

	if err := SignRequest(req, privateKey, keyId, activityJSON); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := newHTTPClient(conf).Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{Status: resp.StatusCode}
	}
	return nil
}
