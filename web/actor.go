package web

import (
	"encoding/json"

	"github.com/deemkeen/loxodon/activitypub"
	"github.com/deemkeen/loxodon/db"
	"github.com/deemkeen/loxodon/util"
)

// GetActor renders a local user as an ActivityPub actor document
func GetActor(username string, conf *util.AppConfig) (error, string) {
	err, acc := db.GetDB().ReadAccByUsername(username)
	if err != nil || acc == nil {
		return err, "{}"
	}

	doc := activitypub.BuildActorDocument(acc, conf)
	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return err, "{}"
	}
	return nil, string(jsonBytes)
}

// GetInstanceActor renders the instance service actor. It signs this
// server's fetch requests and is resolvable like any other actor.
func GetInstanceActor(conf *util.AppConfig) (error, string) {
	err, acc := db.GetDB().ReadInstanceAcc()
	if err != nil || acc == nil {
		return err, "{}"
	}

	doc := activitypub.BuildActorDocument(acc, conf)
	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return err, "{}"
	}
	return nil, string(jsonBytes)
}
