// Package api implements the funding round configuration service.
//
// It exposes a RESTful API for backends to create, replace, remove and list funding rounds. Mutations are
// written to the durable store before the in-memory round table, so a restart always recovers the
// acknowledged configuration.
package api

import (
	"context"
	"log"
	"net/http"

	"github.com/bookmebot/fundwatch/watcher"
)

// Service contains the data necessary to deliver the configuration API.
type Service struct {
	w  *watcher.Watcher
	s  *http.Server  // http server
	ss *http.Server  // https server
	sc chan struct{} // http server channel used for graceful shutdowns
}

// New returns a pointer to a new configuration service.
func New(w *watcher.Watcher) *Service {
	return &Service{w: w}
}

// StopService shuts down the http servers implementing the RESTful API.
func (a *Service) StopService() {
	var err error

	if a.s != nil {
		if err = a.s.Shutdown(context.Background()); err != nil {
			log.Printf("Error in http server shutdown:%e", err)
		}
	}

	if a.ss != nil {
		if err = a.ss.Shutdown(context.Background()); err != nil {
			log.Printf("Error in https server shutdown:%e", err)
		}
	}

	close(a.sc) // close server channel to indicate shutdowns have finished
}
