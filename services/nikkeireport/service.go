package nikkeireport

import (
	"context"
	"database/sql"
	"log/slog"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"nikkeireport-backend/services/nikkeireport/db"
)

// Runner owns one scrape run: resolve the work list, drive the fetcher,
// build a record per page and hand it to the sink, then close the sink
// exactly once whatever way the run ends.
type Runner struct {
	qry     *db.Queries
	fetcher *Fetcher
	sink    Sink
}

func NewRunner(database *sql.DB, sink Sink, fetcher *Fetcher) Runner {
	return Runner{
		qry:     db.New(database),
		fetcher: fetcher,
		sink:    sink,
	}
}

func (r Runner) Run(ctx context.Context, targetDate string, mode Mode) (err error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("target_date", targetDate),
		attribute.String("mode", string(mode)),
	)

	items, err := Resolve(ctx, r.qry, targetDate, mode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	var parsed atomic.Int64
	defer func() {
		reason := "finished"
		if ctx.Err() != nil {
			reason = "cancelled"
		} else if err != nil {
			reason = "error"
		}

		// the close must always run, a partial buffer would be lost otherwise.
		// note the shutdown flush deliberately ignores an already-dead ctx.
		closeErr := r.sink.Close(context.WithoutCancel(ctx))
		if closeErr != nil && err == nil {
			err = closeErr
		}
		slog.InfoContext(ctx, "run closed",
			"reason", reason,
			"total", len(items),
			"parsed", parsed.Load(),
		)
	}()

	if len(items) == 0 {
		slog.InfoContext(ctx, "nothing to fetch", "target_date", targetDate, "mode", mode)
		return nil
	}

	total := len(items)
	err = r.fetcher.Fetch(ctx, items, func(ctx context.Context, item WorkItem, doc *goquery.Document) error {
		rec := BuildRecord(doc, item.Code, targetDate)
		if addErr := r.sink.Add(ctx, rec); addErr != nil {
			return addErr
		}
		n := parsed.Add(1)
		if n%50 == 0 || n == int64(total) {
			slog.InfoContext(ctx, "parse progress", "parsed", n, "total", total)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
