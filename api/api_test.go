package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bookmebot/fundwatch/lib/store"
	"github.com/bookmebot/fundwatch/watcher"
	"github.com/bookmebot/fundwatch/watcher/rounds"
)

// memDB is an in-memory store.DB for the API tests.
type memDB struct {
	rounds map[string]store.Round
}

func (m *memDB) SaveRound(r store.Round) error {
	m.rounds[r.Key] = r
	return nil
}

func (m *memDB) RemoveRound(key string) error {
	if _, ok := m.rounds[key]; !ok {
		return store.ErrRoundNotFound
	}
	delete(m.rounds, key)
	return nil
}

func (m *memDB) GetRounds() ([]store.Round, error) {
	all := make([]store.Round, 0, len(m.rounds))
	for _, r := range m.rounds {
		all = append(all, r)
	}
	return all, nil
}

func TestAPI(t *testing.T) {
	db := &memDB{rounds: make(map[string]store.Round)}
	w := watcher.New("", db, nil, nil, rounds.NewStore(6), nil)

	// set up server for API
	a := New(w)
	go a.Init("", "3032", "", "", "")
	time.Sleep(200 * time.Millisecond) // let the server come up

	wallet := "0xD7D7474BD9099FA7B44C75E95FF635092D4F0d9c"

	// define tests
	cases := []struct {
		name, method, uri string      // case name, http method to use and uri
		obj               interface{} // object for POST, DELETE
		err               error       // error in the http request call
		status            int         // http status code
		errExp            string      // error expected
		rounds            int         // rounds expected in the table after the request
	}{
		{"homePage_1", http.MethodGet, "http://localhost:3032/", nil, nil, http.StatusOK, "", 0},
		{"getRounds_1", http.MethodGet, "http://localhost:3032/rounds", nil, nil, http.StatusOK, "", 0},
		{"upsert_1", http.MethodPost, "http://localhost:3032/rounds", store.Round{Key: "G1", Wallet: wallet, Members: 3, Amount: 1}, nil, http.StatusAccepted, "", 1},
		{"upsert_2", http.MethodPost, "http://localhost:3032/rounds", store.Round{Key: "G1", Wallet: wallet, Members: 5, Amount: 2}, nil, http.StatusAccepted, "", 1},
		{"upsert_3", http.MethodPost, "http://localhost:3032/rounds", store.Round{Key: "G2", Wallet: wallet, Members: 2, Amount: 0.5}, nil, http.StatusAccepted, "", 2},
		{"upsert_4", http.MethodPost, "http://localhost:3032/rounds", store.Round{Wallet: wallet, Members: 3, Amount: 1}, nil, http.StatusBadRequest, "round requires a key", 2},
		{"upsert_5", http.MethodPost, "http://localhost:3032/rounds", store.Round{Key: "G3", Members: 3, Amount: 1}, nil, http.StatusBadRequest, "round requires a collection wallet", 2},
		{"upsert_6", http.MethodPost, "http://localhost:3032/rounds", store.Round{Key: "G3", Wallet: wallet, Members: 0, Amount: 1}, nil, http.StatusBadRequest, "round requires a positive member count", 2},
		{"upsert_7", http.MethodPost, "http://localhost:3032/rounds", store.Round{Key: "G3", Wallet: wallet, Members: 3, Amount: 0.0000001}, nil, http.StatusBadRequest, "amount is not positive or has too many decimal places", 2},
		{"getRounds_2", http.MethodGet, "http://localhost:3032/rounds", nil, nil, http.StatusOK, "", 2},
		{"remove_1", http.MethodDelete, "http://localhost:3032/rounds/G2", nil, nil, http.StatusOK, "", 1},
		{"remove_2", http.MethodDelete, "http://localhost:3032/rounds/G2", nil, nil, http.StatusNotFound, "round was not found in store", 1},
		{"remove_3", http.MethodPost, "http://localhost:3032/rounds/G1", nil, nil, http.StatusMethodNotAllowed, "", 1},
	}

	// run tests
	for _, c := range cases {
		s, b, e, err := makeRequest(c.method, c.uri, c.obj)
		if err != c.err {
			t.Errorf("[%s] Error in request:%e expected:%e", c.name, err, c.err)
		} else if s != c.status {
			t.Errorf("[%s] Error in StatusCode:%d expected:%d", c.name, s, c.status)
		} else if e != c.errExp {
			t.Errorf("[%s] Error in response:%s expected:%s", c.name, e, c.errExp)
		} else if c.name[:len(c.name)-2] == "getRounds" && s == http.StatusOK {
			var got []rounds.Info
			if err = json.Unmarshal([]byte(b), &got); err != nil {
				t.Errorf("[%s] Error unmarshaling body:%s error:%s", c.name, b, err)
			}
			if len(got) != c.rounds {
				t.Errorf("[%s] Error in response:%v expected %d rounds", c.name, got, c.rounds)
			}
		}
		// the in-memory table and the durable store stay in sync
		if w.Rounds().Len() != c.rounds || len(db.rounds) != c.rounds {
			t.Errorf("[%s] Error in round table:%d store:%d expected:%d", c.name, w.Rounds().Len(), len(db.rounds), c.rounds)
		}
	}

	// a replaced round carries the new configuration
	if r, ok := w.Rounds().Get("G1"); !ok || r.Members != 5 || r.Amount != 2 {
		t.Errorf("Error in replaced round:%+v", r)
	}

	a.StopService()
}

// makeRequest places a http request on uri. Depending on method it will include obj in the request (ie. for
// POST). Returns the status code, the body and error fields of the received JSON response.
func makeRequest(method, uri string, obj interface{}) (s int, b, e string, err error) {
	var resp *http.Response

	switch method {
	case http.MethodGet:
		if resp, err = http.Get(uri); err != nil {
			return
		}
	case http.MethodPost:
		var pl []byte
		if pl, err = json.Marshal(obj); err != nil {
			return
		}
		if resp, err = http.Post(uri, "application/json;charset=utf8", bytes.NewBuffer(pl)); err != nil {
			return
		}
	case http.MethodDelete:
		client := &http.Client{}
		var req *http.Request
		if req, err = http.NewRequest(method, uri, nil); err != nil {
			return
		}
		if resp, err = client.Do(req); err != nil {
			return
		}
	default:
		err = errors.New("method not found")
		return
	}

	s = resp.StatusCode
	var v struct {
		B string `json:"body"`
		E string `json:"error"`
	}
	if resp.ContentLength > 0 {
		var p []byte = make([]byte, int(resp.ContentLength))
		var n int
		n, _ = resp.Body.Read(p)
		resp.Body.Close()
		err = json.Unmarshal(p[:n], &v)
	}
	return s, v.B, v.E, err
}
