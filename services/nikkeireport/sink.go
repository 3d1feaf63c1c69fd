package nikkeireport

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"nikkeireport-backend/services/nikkeireport/db"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Sink receives built records. Add may be called from concurrent fetch
// workers; implementations serialize internally. Close flushes whatever
// is still buffered and must be safe to call exactly once per run.
type Sink interface {
	Add(ctx context.Context, rec Record) error
	Close(ctx context.Context) error
}

const DefaultBatchSize = 50

const commitAttempts = 3

// SqliteSink buffers records and writes them in insert-or-ignore batches
// keyed on (code, target_date), so replays of already-stored rows are
// silent no-ops. The db handle is owned by the caller.
type SqliteSink struct {
	db        *sql.DB
	qry       *db.Queries
	batchSize int

	mu  sync.Mutex
	buf []Record
}

func NewSqliteSink(database *sql.DB, batchSize int) *SqliteSink {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &SqliteSink{
		db:        database,
		qry:       db.New(database),
		batchSize: batchSize,
	}
}

func (s *SqliteSink) Add(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = append(s.buf, rec)
	if len(s.buf) >= s.batchSize {
		return s.flushLocked(ctx)
	}
	return nil
}

// Flush commits whatever is buffered right now. A no-op when empty.
func (s *SqliteSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

func (s *SqliteSink) Close(ctx context.Context) error {
	return s.Flush(ctx)
}

// flushLocked retries a failed commit a bounded number of times, keeping
// the buffer intact until a commit lands so no parsed record is dropped.
func (s *SqliteSink) flushLocked(ctx context.Context) error {
	if len(s.buf) == 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "Flush")
	defer span.End()
	span.SetAttributes(attribute.Int("rows", len(s.buf)))

	var err error
	for attempt := 1; attempt <= commitAttempts; attempt++ {
		err = s.commit(ctx)
		if err == nil {
			slog.InfoContext(ctx, "committed batch", "rows", len(s.buf))
			s.buf = s.buf[:0]
			return nil
		}
		slog.WarnContext(ctx, "batch commit failed",
			"attempt", attempt,
			"rows", len(s.buf),
			"err", err,
		)
		if attempt < commitAttempts {
			select {
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			case <-ctx.Done():
				span.SetStatus(codes.Error, ctx.Err().Error())
				return ctx.Err()
			}
		}
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return fmt.Errorf("batch commit failed after %d attempts: %w", commitAttempts, err)
}

func (s *SqliteSink) commit(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	for _, rec := range s.buf {
		err := txqry.InsertReport(ctx, db.InsertReportParams{
			TargetDate:   rec.TargetDate,
			Code:         rec.Code,
			Sector:       rec.Sector,
			Name:         rec.Name,
			Price:        rec.Price,
			Per:          rec.Per,
			YieldRate:    rec.YieldRate,
			Pbr:          rec.Pbr,
			Roe:          rec.Roe,
			EarningYield: rec.EarningYield,
		})
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CsvHeader is the column order of the csv export surface.
var CsvHeader = []string{
	"security code",
	"sector",
	"company name",
	"price",
	"forecast P/E",
	"forecast dividend yield",
	"P/B (actual)",
	"ROE (forecast)",
	"earnings yield (forecast)",
}

// CsvSink writes one row per record as they arrive, header first.
type CsvSink struct {
	mu sync.Mutex
	w  *csv.Writer
	c  io.Closer
}

// NewCsvSink writes the header row immediately. out is closed by Close
// when it is an io.Closer.
func NewCsvSink(out io.Writer) (*CsvSink, error) {
	w := csv.NewWriter(out)
	if err := w.Write(CsvHeader); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	c, _ := out.(io.Closer)
	return &CsvSink{w: w, c: c}, nil
}

func (s *CsvSink) Add(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.w.Write([]string{
		rec.Code,
		rec.Sector,
		rec.Name,
		rec.Price,
		rec.Per,
		rec.YieldRate,
		rec.Pbr,
		rec.Roe,
		rec.EarningYield,
	})
	if err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *CsvSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return err
	}
	if s.c != nil {
		return s.c.Close()
	}
	return nil
}
