package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/deemkeen/loxodon/activitypub"
	"github.com/deemkeen/loxodon/db"
	"github.com/deemkeen/loxodon/util"
	"github.com/deemkeen/loxodon/web"
)

func main() {

	conf, err := util.ReadConf()
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Println(util.GetNameAndVersion())
	fmt.Println("Configuration: ")
	fmt.Println(util.PrettyPrint(conf))

	// Opening the database runs the migrations
	database := db.GetDB()

	// The instance actor signs fetches before any user exists
	if err, _ := database.EnsureInstanceAccount(conf.Conf.SslDomain); err != nil {
		log.Fatalln(err)
	}

	activitypub.StartJobWorkers(conf)

	startServing(conf)
}

func startServing(conf *util.AppConfig) {
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := web.Router(conf); err != nil {
			log.Fatalln(err)
		}
	}()

	<-done
	log.Println("Stopping federation server")
}
