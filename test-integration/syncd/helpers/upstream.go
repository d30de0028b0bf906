package helpers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
)

// Upstream is a scripted data source. It answers with the configured status
// code and a JSON body holding the configured number of items.
type Upstream struct {
	*httptest.Server

	mu       sync.Mutex
	status   int
	items    int
	requests int
	auth     []string
}

// NewUpstream starts an upstream that serves items successfully
func NewUpstream(items int) *Upstream {
	u := &Upstream{status: http.StatusOK, items: items}
	u.Server = httptest.NewServer(http.HandlerFunc(u.serve))
	return u
}

func (u *Upstream) serve(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.requests++
	u.auth = append(u.auth, r.Header.Get("Authorization"))
	status, items := u.status, u.items
	u.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, `{"error":"scripted status %d"}`, status)
		return
	}

	_, _ = w.Write([]byte(`{"data":[`))
	for i := range items {
		if i > 0 {
			_, _ = w.Write([]byte(","))
		}
		_, _ = fmt.Fprintf(w, `{"id":%d}`, i+1)
	}
	_, _ = w.Write([]byte(`]}`))
}

// SetStatus changes the status code of the following responses
func (u *Upstream) SetStatus(code int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.status = code
}

// SetItems changes the number of items served
func (u *Upstream) SetItems(n int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.items = n
}

// Requests returns the number of requests received so far
func (u *Upstream) Requests() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.requests
}

// AuthHeaders returns the Authorization headers received so far
func (u *Upstream) AuthHeaders() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.auth...)
}
