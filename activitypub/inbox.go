package activitypub

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/deemkeen/loxodon/db"
	"github.com/deemkeen/loxodon/domain"
	"github.com/deemkeen/loxodon/util"
)

// Activity is the outer envelope of an incoming activity
type Activity struct {
	Context interface{} `json:"@context"`
	ID      string      `json:"id"`
	Type    string      `json:"type"`
	Actor   string      `json:"actor"`
	Object  interface{} `json:"object"`
	To      interface{} `json:"to"`
	Cc      interface{} `json:"cc"`
}

// ObjectId returns the object as a bare URI, whether it arrived inline
// or as a reference
func (a *Activity) ObjectId() string {
	switch obj := a.Object.(type) {
	case string:
		return obj
	case map[string]interface{}:
		if id, ok := obj["id"].(string); ok {
			return id
		}
	}
	return ""
}

// objectType returns the type of an inline object, or "" for references
func (a *Activity) objectType() string {
	obj, ok := a.Object.(map[string]interface{})
	if !ok {
		return ""
	}
	t, _ := obj["type"].(string)
	return t
}

// inlineObject re-marshals an inline object into the given target
func (a *Activity) inlineObject(target interface{}) error {
	obj, ok := a.Object.(map[string]interface{})
	if !ok {
		return &ValidationError{Reason: "activity object is not inline"}
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

// ActivityHandler processes one verified activity. sender is the
// authenticated signer, already resolved to a cached account.
type ActivityHandler func(conf *util.AppConfig, activity *Activity, sender *domain.RemoteAccount) error

type handlerKey struct {
	activityType string
	objectType   string
}

// handlerRegistry routes on (activity type, object type). The "*" object
// type catches activities whose handling does not depend on the object.
var handlerRegistry = map[handlerKey]ActivityHandler{}

// RegisterHandler binds a handler for an activity/object type pair
func RegisterHandler(activityType string, objectType string, handler ActivityHandler) {
	handlerRegistry[handlerKey{activityType, objectType}] = handler
}

func lookupHandler(activityType string, objectType string) ActivityHandler {
	if handler, ok := handlerRegistry[handlerKey{activityType, objectType}]; ok {
		return handler
	}
	return handlerRegistry[handlerKey{activityType, "*"}]
}

// dispatch routes an activity to its registered handler. Unmapped
// activity types are logged and acknowledged, never an error.
func dispatch(conf *util.AppConfig, activity *Activity, sender *domain.RemoteAccount) error {
	handler := lookupHandler(activity.Type, activity.objectType())
	if handler == nil {
		log.Printf("Inbox: ignoring unsupported activity %s(%s) from %s",
			activity.Type, activity.objectType(), activity.Actor)
		return nil
	}
	return handler(conf, activity, sender)
}

// AuthenticateRequest verifies the HTTP signature of an inbox delivery
// and returns the signing actor. The signer must match the activity
// actor; key owner mismatches are rejected outright.
func AuthenticateRequest(req *http.Request, body []byte, conf *util.AppConfig) (*domain.RemoteAccount, error) {
	keyId, err := RequestKeyId(req)
	if err != nil {
		return nil, err
	}

	actorId := KeyIdToActorId(keyId)
	signer, err := GetOrFetchActor(actorId, conf)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot resolve signer %s: %v", ErrInvalidSignature, actorId, err)
	}

	if err := VerifyDate(req); err != nil {
		return nil, err
	}
	if err := VerifyDigest(req, body); err != nil {
		return nil, err
	}
	if _, err := VerifyRequest(req, signer.PublicKeyPem); err != nil {
		return nil, err
	}
	return signer, nil
}

// HandleInboxRequest authenticates an inbox POST and enqueues the
// activity for asynchronous processing. Returning nil means the delivery
// was accepted (202); processing happens in the incoming worker.
func HandleInboxRequest(req *http.Request, body []byte, conf *util.AppConfig) error {
	var activity Activity
	if err := json.Unmarshal(body, &activity); err != nil {
		return &ValidationError{Reason: "body is not a JSON activity"}
	}
	if activity.Type == "" || activity.Actor == "" {
		return &ValidationError{Reason: "activity missing type or actor"}
	}

	signer, err := AuthenticateRequest(req, body, conf)
	if err != nil {
		return err
	}
	if signer.ActorURI != activity.Actor {
		return fmt.Errorf("%w: signer %s does not match actor %s",
			ErrInvalidSignature, signer.ActorURI, activity.Actor)
	}

	job := domain.IncomingActivityJob{
		Activity:        json.RawMessage(body),
		IsAuthenticated: true,
	}
	jobData, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return db.GetDB().EnqueueJob(domain.JobTypeIncomingActivity, string(jobData), time.Now())
}

// ProcessActivity runs one dequeued activity through the dispatcher.
// Called from the incoming worker only.
func ProcessActivity(conf *util.AppConfig, raw json.RawMessage, isAuthenticated bool) error {
	if !isAuthenticated {
		return &ValidationError{Reason: "unauthenticated activity in queue"}
	}

	var activity Activity
	if err := json.Unmarshal(raw, &activity); err != nil {
		return &ValidationError{Reason: "stored activity is not valid JSON"}
	}

	sender, err := GetOrFetchActor(activity.Actor, conf)
	if err != nil {
		return fmt.Errorf("cannot resolve actor %s: %w", activity.Actor, err)
	}
	return dispatch(conf, &activity, sender)
}
