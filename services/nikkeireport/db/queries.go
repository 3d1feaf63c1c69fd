package db

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Target struct {
	Code string
	Url  string
}

const listTargets = `
SELECT code, COALESCE(nikkeiurl, '')
  FROM consensus_url
 WHERE target_date = ?
`

func (q *Queries) ListTargets(ctx context.Context, targetDate string) ([]Target, error) {
	rows, err := q.db.QueryContext(ctx, listTargets, targetDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Target
	for rows.Next() {
		var t Target
		if err := rows.Scan(&t.Code, &t.Url); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

const listMissingTargets = `
SELECT c.code, COALESCE(c.nikkeiurl, '')
  FROM consensus_url c
  LEFT JOIN nikkei_reports n
    ON n.code = c.code AND n.target_date = c.target_date
 WHERE c.target_date = ? AND n.code IS NULL
`

// targets with no stored report for the date, an anti-join rather
// than a second-pass filter
func (q *Queries) ListMissingTargets(ctx context.Context, targetDate string) ([]Target, error) {
	rows, err := q.db.QueryContext(ctx, listMissingTargets, targetDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Target
	for rows.Next() {
		var t Target
		if err := rows.Scan(&t.Code, &t.Url); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

type InsertReportParams struct {
	TargetDate   string
	Code         string
	Sector       string
	Name         string
	Price        string
	Per          string
	YieldRate    string
	Pbr          string
	Roe          string
	EarningYield string
}

const insertReport = `
INSERT OR IGNORE INTO nikkei_reports (
    target_date, code, sector, name, price, per,
    yield_rate, pbr, roe, earning_yield
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertReport(ctx context.Context, arg InsertReportParams) error {
	_, err := q.db.ExecContext(ctx, insertReport,
		arg.TargetDate,
		arg.Code,
		arg.Sector,
		arg.Name,
		arg.Price,
		arg.Per,
		arg.YieldRate,
		arg.Pbr,
		arg.Roe,
		arg.EarningYield,
	)
	return err
}

type Report struct {
	TargetDate   string
	Code         string
	Sector       string
	Name         string
	Price        string
	Per          string
	YieldRate    string
	Pbr          string
	Roe          string
	EarningYield string
}

const listReports = `
SELECT target_date, code, sector, name, price, per,
       yield_rate, pbr, roe, earning_yield
  FROM nikkei_reports
 WHERE target_date = ?
 ORDER BY code
`

func (q *Queries) ListReports(ctx context.Context, targetDate string) ([]Report, error) {
	rows, err := q.db.QueryContext(ctx, listReports, targetDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Report
	for rows.Next() {
		var r Report
		err := rows.Scan(
			&r.TargetDate,
			&r.Code,
			&r.Sector,
			&r.Name,
			&r.Price,
			&r.Per,
			&r.YieldRate,
			&r.Pbr,
			&r.Roe,
			&r.EarningYield,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const countReports = `
SELECT COUNT(*) FROM nikkei_reports WHERE target_date = ?
`

func (q *Queries) CountReports(ctx context.Context, targetDate string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countReports, targetDate).Scan(&count)
	return count, err
}

type InsertTargetParams struct {
	Code       string
	TargetDate string
	Nikkeiurl  string
}

const insertTarget = `
INSERT OR IGNORE INTO consensus_url (code, target_date, nikkeiurl)
VALUES (?, ?, ?)
`

func (q *Queries) InsertTarget(ctx context.Context, arg InsertTargetParams) error {
	_, err := q.db.ExecContext(ctx, insertTarget, arg.Code, arg.TargetDate, arg.Nikkeiurl)
	return err
}
