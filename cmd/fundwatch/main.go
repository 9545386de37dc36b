// Package main: fundwatch service.
//
// fundwatch watches an ERC-20 token contract for transfers into funding round collection wallets and
// notifies the bot backend when a round has collected a payment from every member.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bookmebot/fundwatch/api"
	"github.com/bookmebot/fundwatch/lib/chain"
	"github.com/bookmebot/fundwatch/lib/config"
	"github.com/bookmebot/fundwatch/lib/msg"
	"github.com/bookmebot/fundwatch/lib/msg/amqp"
	"github.com/bookmebot/fundwatch/lib/notify"
	"github.com/bookmebot/fundwatch/lib/store"
	"github.com/bookmebot/fundwatch/lib/store/db"
	"github.com/bookmebot/fundwatch/watcher"
	"github.com/bookmebot/fundwatch/watcher/rounds"
)

func main() {
	// get command line flags
	confPath := flag.String("c", "", "flag to get configuration from json file")
	monitor := flag.Bool("m", false, "flag to monitor the server with Prometheus at http://localhost:9100")
	flag.Parse()

	// extract configuration
	conf, err := config.ExtractConfiguration(*confPath)
	if err != nil {
		panic(err)
	}

	log.Printf("Configuration:%+v", conf)

	// connect to database
	var dbConn store.DB

	if conf.DbConn != "" {
		if dbConn, err = db.New(conf.DbType, conf.DbConn); err != nil {
			panic(err)
		}

		log.Printf("Connecting to database:%+v\n", conf.DbConn)
	}

	// load the transfer event source for the configured network and token
	src, err := chain.Init(conf.Network, conf.Token)
	if err != nil {
		panic(err)
	}

	log.Printf("[%s] Watching token %s", conf.Network, conf.Token)

	// load Prometheus monitor
	if *monitor {
		go func() {
			log.Println("Serving metrics API")

			h := http.NewServeMux()

			h.Handle("/metrics", promhttp.Handler())
			http.ListenAndServe(":9100", h)
		}()
	}

	// load message broker
	var mb msg.MsgBroker

	switch conf.MbType {
	case "amqp":
		if mb, err = amqp.New(conf.MbConn); err != nil {
			time.Sleep(10 * time.Second) // wait 10s for AMQP to be ready and try to reconnect

			if mb, err = amqp.New(conf.MbConn); err != nil {
				panic(err)
			}
		}

		if err = mb.Setup(nil); err != nil {
			panic(err)
		}

		defer func() {
			errClose := mb.Close()
			log.Printf("Closing messageBroker: %e", errClose)
		}()
	default:
		log.Printf("Unknown message broker type: %s\n", conf.MbType)
	}

	// create watcher service
	w := watcher.New(conf.DbType, dbConn, mb, src, rounds.NewStore(conf.TokenDecimals), notify.New(conf.Webhook))

	// recover the configured rounds from the database
	if err = w.LoadRounds(); err != nil {
		panic(err)
	}

	// create configuration API service
	a := api.New(w)

	ctx, cancel := context.WithCancel(context.Background())

	// capture CTRL+C or docker's SIGTERM for gracious exit
	finish := make(chan int)

	go func() {
		sigchan := make(chan os.Signal, 10)
		signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
		<-sigchan
		log.Println("Program killed !")
		// do last actions and wait for all write operations to end
		cancel()
		a.StopService()

		if dbConn != nil {
			errClose := db.Close(conf.DbType, dbConn)
			log.Printf("Disconnecting %v database, err:%e\n", conf.DbType, errClose)
		}

		close(finish)
	}()

	// manage round requests from the broker
	if err = w.ManageRoundRequests(); err != nil {
		log.Printf("Error setting up broker reader for round requests:%e", err)
	}

	// launch the watch loop
	done := w.Watch(ctx)

	// init RESTful API, wait for its return and log response
	log.Printf("Fundwatch: %s\n", a.Init(conf.RestfulEndpoint, conf.Port, conf.SSLPort, conf.SSLCert, conf.SSLKey))

	log.Printf("Watch: %s\n", <-done)

	<-finish
}
