package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bookmebot/fundwatch/lib/store"
	"github.com/bookmebot/fundwatch/watcher/rounds"
)

// Errors returned to client requests.
var (
	ErrBadRequest = errors.New("bad request")
	ErrNoKey      = errors.New("undefined round key - missing in uri")
)

// Response defines the data structure returned to the client making the http request.
type Response struct {
	Body  string `json:"body"`
	Error string `json:"error,omitempty"`
}

// homeHandler just replies a welcome message to the client.
func (a *Service) homeHandler(rw http.ResponseWriter, r *http.Request) {
	var res Response
	// log request
	log.Printf("httpreq from %v %s\n", r.RemoteAddr, r.RequestURI)
	// just reply a welcome message
	res.Body = "Hello, this is your funding round watcher!"
	// reply
	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	_ = json.NewEncoder(rw).Encode(res)
}

// getRoundsHandler replies the funding rounds currently watched, including the live payment counters.
func (a *Service) getRoundsHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var rs []rounds.Info

	defer func() {
		// reply to requester accordingly
		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(http.StatusBadRequest)
		} else {
			rw.WriteHeader(http.StatusOK)
			tmp, _ := json.Marshal(rs)
			res.Body = string(tmp)
		}
		// log request and rounds
		log.Printf("httpreq from %v %s rounds:%d err:%e\n", r.RemoteAddr, r.RequestURI, len(rs), err)
		// reply
		rw.Header().Set("Content-Type", "application/json;charset=utf8")
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	rs = a.w.Rounds().Snapshot()
}

// upsertRoundHandler creates or replaces a funding round. The round is written to the durable store before
// the in-memory table; a replaced round restarts its payment cycle.
func (a *Service) upsertRoundHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var rd store.Round

	defer func() {
		// reply to requester accordingly
		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(http.StatusBadRequest)
		} else {
			rw.WriteHeader(http.StatusAccepted)
			tmp, _ := json.Marshal(rd)
			res.Body = string(tmp)
		}
		// log request and round
		log.Printf("httpreq from %v %s round:%+v err:%e\n", r.RemoteAddr, r.RequestURI, rd, err)
		// reply
		rw.Header().Set("Content-Type", "application/json;charset=utf8")
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	// get request
	if err = json.NewDecoder(r.Body).Decode(&rd); err != nil {
		log.Printf("Error decoding round request %+v\n", r.Body)

		err = ErrBadRequest

		return
	}

	err = a.w.UpsertRound(rd)
}

// removeRoundHandler removes a funding round so its wallet is no longer watched.
func (a *Service) removeRoundHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var key string

	defer func() {
		// reply to requester accordingly
		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			if errors.Is(err, store.ErrRoundNotFound) {
				rw.WriteHeader(http.StatusNotFound)
			} else {
				rw.WriteHeader(http.StatusBadRequest)
			}
		} else {
			rw.WriteHeader(http.StatusOK)
			res.Body = key
		}
		// log request
		log.Printf("httpreq from %v %s key:%s err:%e\n", r.RemoteAddr, r.RequestURI, key, err)
		// reply
		rw.Header().Set("Content-Type", "application/json;charset=utf8")
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	v := mux.Vars(r)

	var ok bool
	if key, ok = v["roundKey"]; !ok || key == "" {
		err = ErrNoKey

		return
	}

	err = a.w.RemoveRound(key)
}
