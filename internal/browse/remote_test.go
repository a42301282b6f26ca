package browse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobscout/jobscout/internal/model"
	"github.com/jobscout/jobscout/internal/resilience"
)

func fastRetry() resilience.Policy {
	return resilience.Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRemoteDriverBaseSearch(t *testing.T) {
	var gotCriteria model.SearchCriteria
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotCriteria))
		json.NewEncoder(w).Encode(map[string]int{"discovered": 42}) //nolint:errcheck
	}))
	defer srv.Close()

	d := NewRemoteDriver(srv.URL, WithRetryPolicy(fastRetry()))
	n, err := d.PerformBaseSearch(context.Background(), model.SearchCriteria{Query: "go developer", Location: "Remote"})
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.Equal(t, "go developer", gotCriteria.Query)
}

func TestRemoteDriverExtractAt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/postings/0":
			json.NewEncoder(w).Encode(model.PostingCandidate{ //nolint:errcheck
				Title:        "Backend Engineer",
				Organization: "Acme",
				Location:     "Denver, CO",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	d := NewRemoteDriver(srv.URL, WithRetryPolicy(fastRetry()), WithSource("glassdoor"))

	c, err := d.ExtractAt(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "Backend Engineer", c.Title)
	assert.Equal(t, "glassdoor", c.Source, "driver source fills in when sidecar omits it")

	_, err = d.ExtractAt(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrEndOfResults))
}

func TestRemoteDriverRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]int{"discovered": 7}) //nolint:errcheck
	}))
	defer srv.Close()

	d := NewRemoteDriver(srv.URL, WithRetryPolicy(fastRetry()))
	n, err := d.ApplyRefinements(context.Background(), model.Refinements{Remote: true})
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRemoteDriverDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad refinement", http.StatusBadRequest)
	}))
	defer srv.Close()

	d := NewRemoteDriver(srv.URL, WithRetryPolicy(fastRetry()))
	_, err := d.ApplyRefinements(context.Background(), model.Refinements{DatePosted: "bogus"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, err.Error(), "status 400")
}

func TestRemoteDriverAvailableRefinements(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/refinements", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"refinements": []RefinementOption{
				{Name: "date_posted", Values: []string{"last_day", "last_week"}},
				{Name: "remote"},
			},
		})
	}))
	defer srv.Close()

	d := NewRemoteDriver(srv.URL, WithRetryPolicy(fastRetry()))
	opts, err := d.AvailableRefinements(context.Background())
	require.NoError(t, err)
	require.Len(t, opts, 2)
	assert.Equal(t, "date_posted", opts[0].Name)
}
