// Package remote provides an in-process stand-in for the JSON services behind
// pkg/remote and a client wired to it.
package remote

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openfga/datagate/pkg/remote"
)

// Service serves Items as a collection resource:
//
//	GET /<resource>          {"items": [...]}
//	GET /<resource>/count    {"count": n}
//	GET /<resource>/<key>    single item or 404
//
// Query parameters named in Filters restrict the items; a parameter given several
// times matches any of its values. offset and limit window the result and order is
// looked up in Orderings. Every request is recorded.
type Service[R any] struct {
	Items     []R
	Filters   map[string]func(item R, value string) bool
	Key       func(R) string
	Orderings map[string]func(a, b R) int

	mu       sync.Mutex
	requests []url.Values
	paths    []string
}

func (s *Service[R]) record(r *http.Request) url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := r.URL.Query()
	s.requests = append(s.requests, q)
	s.paths = append(s.paths, r.URL.Path)
	return q
}

// Calls returns the number of requests served so far.
func (s *Service[R]) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Last returns the query parameters of the latest request.
func (s *Service[R]) Last() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	return s.requests[len(s.requests)-1]
}

// Paths returns the request paths in arrival order.
func (s *Service[R]) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.paths)
}

func (s *Service[R]) match(q url.Values) []R {
	out := make([]R, 0, len(s.Items))
	for _, item := range s.Items {
		if s.admits(q, item) {
			out = append(out, item)
		}
	}
	if compare, ok := s.Orderings[q.Get("order")]; ok {
		slices.SortStableFunc(out, compare)
	}
	if offset, _ := strconv.Atoi(q.Get("offset")); offset > 0 {
		out = out[min(offset, len(out)):]
	}
	if limit, _ := strconv.Atoi(q.Get("limit")); limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

func (s *Service[R]) admits(q url.Values, item R) bool {
	for param, filter := range s.Filters {
		values := q[param]
		if len(values) == 0 {
			continue
		}
		if !slices.ContainsFunc(values, func(v string) bool { return filter(item, v) }) {
			return false
		}
	}
	return true
}

func (s *Service[R]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := s.record(r)
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case len(parts) == 2 && parts[1] == "count":
		_ = json.NewEncoder(w).Encode(map[string]int{"count": len(s.match(q))})
	case len(parts) == 2:
		for _, item := range s.Items {
			if s.Key != nil && s.Key(item) == parts[1] {
				_ = json.NewEncoder(w).Encode(item)
				return
			}
		}
		http.NotFound(w, r)
	default:
		_ = json.NewEncoder(w).Encode(map[string][]R{"items": s.match(q)})
	}
}

// NewClient starts handler on a test server and returns a client without retries
// pointed at it. The server is closed when the test ends.
func NewClient(t testing.TB, service string, handler http.Handler) *remote.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := remote.NewClient(service, server.URL, remote.WithRetryMax(0))
	require.NoError(t, err)
	return client
}
