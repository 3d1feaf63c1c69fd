package nikkeireport

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nikkeireport-backend/lib/testutil"
	"nikkeireport-backend/services/nikkeireport/db"
)

func testRecord(code string) Record {
	return Record{
		TargetDate:   "20240516",
		Code:         code,
		Sector:       "輸送用機器",
		Name:         "テスト株式会社",
		Price:        "1,000",
		Per:          "12.3倍",
		YieldRate:    "2.0%",
		Pbr:          "1.1倍",
		Roe:          "9.0%",
		EarningYield: "8.1%",
	}
}

func TestSqliteSinkFlushCadence(t *testing.T) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "nikkeireport",
		DbSchema: db.Schema,
	})
	defer cleanup()
	qry := db.New(res.DB)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	sink := NewSqliteSink(res.DB, 2)
	for i := 0; i < 5; i++ {
		err := sink.Add(ctx, testRecord(fmt.Sprintf("%04d", i)))
		if err != nil {
			t.Fatal(err)
		}

		count, err := qry.CountReports(ctx, "20240516")
		if err != nil {
			t.Fatal(err)
		}
		// auto-flush lands after the 2nd and 4th additions
		require.Equal(t, int64(i+1)/2*2, count)
	}

	err := sink.Close(ctx)
	if err != nil {
		t.Fatal(err)
	}
	count, err := qry.CountReports(ctx, "20240516")
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, int64(5), count)

	// closing again with an empty buffer is a no-op
	err = sink.Close(ctx)
	if err != nil {
		t.Fatal(err)
	}
}

func TestSqliteSinkInsertOrIgnore(t *testing.T) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "nikkeireport",
		DbSchema: db.Schema,
	})
	defer cleanup()
	qry := db.New(res.DB)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	sink := NewSqliteSink(res.DB, 1)
	err := sink.Add(ctx, testRecord("7203"))
	if err != nil {
		t.Fatal(err)
	}

	replay := testRecord("7203")
	replay.Price = "9,999"
	err = sink.Add(ctx, replay)
	if err != nil {
		t.Fatal(err)
	}
	require.NoError(t, sink.Close(ctx))

	rows, err := qry.ListReports(ctx, "20240516")
	if err != nil {
		t.Fatal(err)
	}
	require.Len(t, rows, 1)
	// the original row survives the replay untouched
	require.Equal(t, "1,000", rows[0].Price)
}

func TestSqliteSinkBatchSizeFallback(t *testing.T) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "nikkeireport",
		DbSchema: db.Schema,
	})
	defer cleanup()

	sink := NewSqliteSink(res.DB, 0)
	require.Equal(t, DefaultBatchSize, sink.batchSize)

	sink = NewSqliteSink(res.DB, -3)
	require.Equal(t, DefaultBatchSize, sink.batchSize)
}

func TestCsvSink(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer
	sink, err := NewCsvSink(&buf)
	if err != nil {
		t.Fatal(err)
	}

	require.NoError(t, sink.Add(ctx, testRecord("7203")))
	require.NoError(t, sink.Add(ctx, testRecord("6758")))
	require.NoError(t, sink.Close(ctx))

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	require.Len(t, rows, 3)
	require.Equal(t, CsvHeader, rows[0])
	require.Equal(t, "7203", rows[1][0])
	require.Equal(t, "2.0%", rows[1][5])
	require.Equal(t, "6758", rows[2][0])
}
