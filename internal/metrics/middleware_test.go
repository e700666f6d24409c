package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/chat/{tenant}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	ts := httptest.NewServer(r)
	defer ts.Close()

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404"))

	resp, err := http.Get(ts.URL + "/chat/slsp")
	if err != nil {
		t.Fatal(err)
	}
	if errInner := resp.Body.Close(); errInner != nil {
		t.Log(errInner)
	}

	resp, err = http.Get(ts.URL + "/missing")
	if err != nil {
		t.Fatal(err)
	}
	if errInner := resp.Body.Close(); errInner != nil {
		t.Log(errInner)
	}

	// The route label must be the chi pattern, not the concrete path.
	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404")); val != before+1 {
		t.Errorf("Expected httpRequestsTotal for GET 404 to grow by 1, got %f", val-before)
	}
	if val := testutil.CollectAndCount(httpRequestDurationSeconds); val <= 0 {
		t.Errorf("Expected httpRequestDurationSeconds to be observed, got %d", val)
	}
}
