package web

import (
	"fmt"

	"github.com/deemkeen/loxodon/db"
	"github.com/deemkeen/loxodon/util"
)

// GetWebfinger resolves a local username to its JRD document. The
// instance actor answers for the bare domain.
func GetWebfinger(user string, conf *util.AppConfig) (error, string) {
	var actorURI string

	if user == conf.Conf.SslDomain {
		actorURI = conf.InstanceActorURI()
	} else {
		err, acc := db.GetDB().ReadAccByUsername(user)
		if err != nil || acc == nil {
			return fmt.Errorf("unknown user: %s", user), GetWebFingerNotFound()
		}
		actorURI = conf.ActorURI(acc.Username)
	}

	return nil, fmt.Sprintf(
		`{
					"subject": "acct:%s@%s",

					"links": [
						{
							"rel": "self",
							"type": "application/activity+json",
							"href": "%s"
						}
					]
				}`, user, conf.Conf.SslDomain, actorURI)
}

func GetWebFingerNotFound() string {
	return `{"detail":"Not Found"}`
}
