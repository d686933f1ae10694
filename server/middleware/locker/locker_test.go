package locker

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi"

	"github.com/labpod/golabpod/server"
)

// tableHost is a minimal HTTPer for injecting the lock routes.
type tableHost struct {
	rt server.RouteTable
}

func (h tableHost) RT() server.RouteTable {
	return h.rt
}

func newLockedServer(t *testing.T) (*Locker, *httptest.Server) {
	t.Helper()
	l := New()
	rt := server.RouteTable{}
	rt[server.MethodPath{Method: http.MethodGet, Path: "/capture"}] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	Inject(tableHost{rt: rt}, l)
	r := chi.NewRouter()
	r.Use(l.Check)
	rt.Bind(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return l, srv
}

func TestCheckBlocksWhileLocked(t *testing.T) {
	l, srv := newLockedServer(t)
	resp, err := http.Get(srv.URL + "/capture")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unlocked: expected 200 got %d", resp.StatusCode)
	}
	l.Lock()
	resp, err = http.Get(srv.URL + "/capture")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusLocked {
		t.Fatalf("locked: expected 423 got %d", resp.StatusCode)
	}
	l.Unlock()
	resp, err = http.Get(srv.URL + "/capture")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("unlocked again: expected 200 got %d", resp.StatusCode)
	}
}

func TestCheckSkipsDoNotProtect(t *testing.T) {
	l, srv := newLockedServer(t)
	l.Lock()
	resp, err := http.Get(srv.URL + "/lock")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("the lock route must stay reachable while locked, got %d", resp.StatusCode)
	}
	b := server.BoolT{}
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		t.Fatal(err)
	}
	if !b.Bool {
		t.Error("expected the lock to report itself held")
	}
}

func TestLockOverHTTP(t *testing.T) {
	l, srv := newLockedServer(t)
	resp, err := http.Post(srv.URL+"/lock", "application/json", strings.NewReader(`{"bool": true}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("lock over HTTP: status %d", resp.StatusCode)
	}
	if !l.Locked() {
		t.Error("expected the locker to be held after POST /lock")
	}
	resp, err = http.Get(srv.URL + "/capture")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusLocked {
		t.Errorf("expected 423 after locking over HTTP, got %d", resp.StatusCode)
	}
	resp, err = http.Post(srv.URL+"/lock", "application/json", strings.NewReader(`{"bool": false}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if l.Locked() {
		t.Error("expected the locker to be released after POST /lock false")
	}
}

func TestLockerConcurrentToggle(t *testing.T) {
	l := New()
	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				l.Lock()
				l.Locked()
				l.Unlock()
			}
		}()
	}
	wg.Wait()
	if l.Locked() {
		t.Error("expected the locker to end released")
	}
}
