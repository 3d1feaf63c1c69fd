package nikkeireport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nikkeireport-backend/lib/testutil"
	"nikkeireport-backend/services/nikkeireport/db"
)

func testFetcher() *Fetcher {
	return NewFetcher(FetchOptions{
		Concurrency: 2,
		Delay:       time.Millisecond,
		Timeout:     time.Second * 5,
	})
}

// serves the full report page for every path except /missing-roe
func testSite(t *testing.T) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			http.NotFound(w, r)
		case "/missing-roe":
			w.Write([]byte(reportPageNoRoe))
		default:
			w.Write([]byte(reportPage))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRunEndToEnd(t *testing.T) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "nikkeireport",
		DbSchema: db.Schema,
	})
	defer cleanup()
	qry := db.New(res.DB)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	server := testSite(t)
	seedTarget(t, qry, "7203", "20240516", server.URL+"/a")
	seedTarget(t, qry, "6758", "20240516", server.URL+"/b")

	runner := NewRunner(res.DB, NewSqliteSink(res.DB, DefaultBatchSize), testFetcher())
	err := runner.Run(ctx, "20240516", ModeMissing)
	if err != nil {
		t.Fatal(err)
	}

	rows, err := qry.ListReports(ctx, "20240516")
	if err != nil {
		t.Fatal(err)
	}
	require.Len(t, rows, 2)
	for _, r := range rows {
		require.Equal(t, "20240516", r.TargetDate)
		require.Equal(t, "トヨタ自動車", r.Name)
		require.Equal(t, "2.8%", r.YieldRate)
		require.Equal(t, "8.1%", r.Roe)
		require.Equal(t, "6.3%", r.EarningYield)
		require.NotEqual(t, "N/A", r.Sector)
		require.NotEqual(t, "N/A", r.Price)
		require.NotEqual(t, "N/A", r.Per)
		require.NotEqual(t, "N/A", r.Pbr)
	}

	// a second missing-mode run finds nothing left to do and
	// leaves the store unchanged
	items, err := Resolve(ctx, qry, "20240516", ModeMissing)
	if err != nil {
		t.Fatal(err)
	}
	require.Len(t, items, 0)

	err = runner.Run(ctx, "20240516", ModeMissing)
	if err != nil {
		t.Fatal(err)
	}
	count, err := qry.CountReports(ctx, "20240516")
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, int64(2), count)
}

func TestRunDegradedField(t *testing.T) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "nikkeireport",
		DbSchema: db.Schema,
	})
	defer cleanup()
	qry := db.New(res.DB)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	server := testSite(t)
	seedTarget(t, qry, "7203", "20240516", server.URL+"/missing-roe")

	runner := NewRunner(res.DB, NewSqliteSink(res.DB, DefaultBatchSize), testFetcher())
	err := runner.Run(ctx, "20240516", ModeMissing)
	if err != nil {
		t.Fatal(err)
	}

	rows, err := qry.ListReports(ctx, "20240516")
	if err != nil {
		t.Fatal(err)
	}
	require.Len(t, rows, 1)
	require.Equal(t, "N/A", rows[0].Roe)
	require.Equal(t, "トヨタ自動車", rows[0].Name)
	require.Equal(t, "6.3%", rows[0].EarningYield)
}

func TestRunInvalidDateFetchesNothing(t *testing.T) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "nikkeireport",
		DbSchema: db.Schema,
	})
	defer cleanup()
	qry := db.New(res.DB)

	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(reportPage))
	}))
	defer server.Close()

	seedTarget(t, qry, "7203", "20240516", server.URL+"/a")

	runner := NewRunner(res.DB, NewSqliteSink(res.DB, DefaultBatchSize), testFetcher())
	err := runner.Run(context.Background(), "not-a-date", ModeMissing)
	require.Error(t, err)
	require.Equal(t, 0, requests)
}

func TestRunObeysRobots(t *testing.T) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "nikkeireport",
		DbSchema: db.Schema,
	})
	defer cleanup()
	qry := db.New(res.DB)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /blocked/\n"))
			return
		}
		w.Write([]byte(reportPage))
	}))
	defer server.Close()

	seedTarget(t, qry, "7203", "20240516", server.URL+"/blocked/a")
	seedTarget(t, qry, "6758", "20240516", server.URL+"/open/b")

	runner := NewRunner(res.DB, NewSqliteSink(res.DB, DefaultBatchSize), testFetcher())
	err := runner.Run(ctx, "20240516", ModeMissing)
	if err != nil {
		t.Fatal(err)
	}

	rows, err := qry.ListReports(ctx, "20240516")
	if err != nil {
		t.Fatal(err)
	}
	require.Len(t, rows, 1)
	require.Equal(t, "6758", rows[0].Code)
}
