package nikkeireport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"nikkeireport-backend/services/nikkeireport/db"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/nikkeireport")

type Mode string

const (
	ModeMissing Mode = "missing"
	ModeAll     Mode = "all"
)

// ParseMode falls back to ModeMissing on anything it doesn't recognize.
func ParseMode(s string) Mode {
	if Mode(s) == ModeAll {
		return ModeAll
	}
	return ModeMissing
}

// WorkItem is a single (security code, source url) pair queued for fetch.
type WorkItem struct {
	Code string
	Url  string
}

// ValidateTargetDate rejects anything that doesn't parse as a real
// YYYYMMDD calendar date.
func ValidateTargetDate(targetDate string) error {
	if targetDate == "" {
		return fmt.Errorf("a target date in YYYYMMDD form is required")
	}
	if len(targetDate) != 8 {
		return fmt.Errorf("target date %q is not in YYYYMMDD form", targetDate)
	}
	_, err := time.Parse("20060102", targetDate)
	if err != nil {
		return fmt.Errorf("target date %q is not in YYYYMMDD form: %w", targetDate, err)
	}
	return nil
}

// Resolve produces the work list for a run. ModeAll returns every target
// recorded for the date; ModeMissing only those with no stored report yet.
// Targets with an empty url are dropped silently.
func Resolve(ctx context.Context, qry *db.Queries, targetDate string, mode Mode) ([]WorkItem, error) {
	ctx, span := tracer.Start(ctx, "Resolve")
	defer span.End()
	span.SetAttributes(
		attribute.String("target_date", targetDate),
		attribute.String("mode", string(mode)),
	)

	if err := ValidateTargetDate(targetDate); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var targets []db.Target
	var err error
	if mode == ModeAll {
		targets, err = qry.ListTargets(ctx, targetDate)
	} else {
		targets, err = qry.ListMissingTargets(ctx, targetDate)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var items []WorkItem
	for _, t := range targets {
		if t.Url == "" {
			continue
		}
		items = append(items, WorkItem{Code: t.Code, Url: t.Url})
	}

	slog.InfoContext(ctx, "resolved work list",
		"target_date", targetDate,
		"mode", mode,
		"total", len(items),
	)
	return items, nil
}
