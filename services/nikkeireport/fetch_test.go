package nikkeireport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestFetcherRetriesTransientStatus(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(reportPage))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	var mu sync.Mutex
	var handled []string
	fetcher := testFetcher()
	err := fetcher.Fetch(ctx,
		[]WorkItem{{Code: "7203", Url: server.URL + "/a"}},
		func(ctx context.Context, item WorkItem, doc *goquery.Document) error {
			mu.Lock()
			defer mu.Unlock()
			handled = append(handled, item.Code)
			return nil
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, []string{"7203"}, handled)
	require.Equal(t, int64(3), hits.Load())
}

func TestFetcherSkipsExhaustedItem(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	handled := atomic.Int64{}
	fetcher := testFetcher()
	err := fetcher.Fetch(ctx,
		[]WorkItem{{Code: "7203", Url: server.URL + "/a"}},
		func(ctx context.Context, item WorkItem, doc *goquery.Document) error {
			handled.Add(1)
			return nil
		},
	)
	// a dead page is skipped, not fatal
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, int64(0), handled.Load())
}
