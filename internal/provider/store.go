package provider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"hunter/pkg/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS daily_bars (
	code          TEXT    NOT NULL,
	date          TEXT    NOT NULL,
	open          REAL    NOT NULL,
	close         REAL    NOT NULL,
	high          REAL    NOT NULL,
	low           REAL    NOT NULL,
	volume        INTEGER NOT NULL,
	amount        REAL,
	amplitude     REAL,
	change_pct    REAL,
	price_change  REAL,
	turnover_rate REAL,
	PRIMARY KEY (code, date)
);

CREATE TABLE IF NOT EXISTS stock_base_info (
	code      TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	full_name TEXT,
	list_date TEXT,
	idn_code  TEXT,
	idn_name  TEXT
);

CREATE TABLE IF NOT EXISTS index_constituents (
	index_code TEXT NOT NULL,
	code       TEXT NOT NULL,
	PRIMARY KEY (index_code, code)
);
`

const barColumns = `date, open, close, high, low, volume, amount, amplitude, change_pct, price_change, turnover_rate`

// Store is the local SQLite bar and metadata database. It implements
// BarProvider, InfoLookup and IndexSource.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// OpenStore opens (creating if needed) the database at path
func OpenStore(path string, log zerolog.Logger) (*Store, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// one writer; readers share the pool
	db.SetMaxOpenConns(8)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Debug().Str("path", path).Msg("opened bar store")
	return &Store{db: db, log: log}, nil
}

// Close closes the database
func (s *Store) Close() error { return s.db.Close() }

// Name returns the provider name
func (s *Store) Name() string { return "sqlite" }

// LatestBars returns the n most recent bars
func (s *Store) LatestBars(ctx context.Context, code string, n int) (model.Series, error) {
	return s.BarsUntil(ctx, code, n, time.Time{})
}

// BarsUntil returns up to days bars dated on or before asOf
func (s *Store) BarsUntil(ctx context.Context, code string, days int, asOf time.Time) (model.Series, error) {
	if days <= 0 {
		return model.Series{Code: code}, nil
	}

	query := `SELECT ` + barColumns + ` FROM daily_bars WHERE code = ?`
	args := []any{code}
	if !asOf.IsZero() {
		query += ` AND date <= ?`
		args = append(args, asOf.Format(model.DateLayout))
	}
	query += ` ORDER BY date DESC LIMIT ?`
	args = append(args, days)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return model.Series{}, &Error{Provider: s.Name(), Err: fmt.Errorf("query bars %s: %w", code, err), Retryable: true}
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var (
			b                                          model.Bar
			date                                       string
			amount, amplitude, chg, priceChg, turnover sql.NullFloat64
		)
		if err := rows.Scan(&date, &b.Open, &b.Close, &b.High, &b.Low, &b.Volume,
			&amount, &amplitude, &chg, &priceChg, &turnover); err != nil {
			return model.Series{}, &Error{Provider: s.Name(), Err: fmt.Errorf("scan bar %s: %w", code, err)}
		}
		if b.Date, err = time.Parse(model.DateLayout, date); err != nil {
			return model.Series{}, &Error{Provider: s.Name(), Err: fmt.Errorf("bar date %q for %s: %w", date, code, err)}
		}
		b.Amount, b.Amplitude, b.ChangePct = amount.Float64, amplitude.Float64, chg.Float64
		b.PriceChange, b.TurnoverRate = priceChg.Float64, turnover.Float64
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return model.Series{}, &Error{Provider: s.Name(), Err: err, Retryable: true}
	}

	// newest first from the query
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return model.Series{Code: code, Bars: bars}, nil
}

// Codes lists every instrument with metadata, falling back to codes with bars
func (s *Store) Codes(ctx context.Context) ([]string, error) {
	codes, err := s.strings(ctx, `SELECT code FROM stock_base_info ORDER BY code`)
	if err != nil || len(codes) > 0 {
		return codes, err
	}
	return s.strings(ctx, `SELECT DISTINCT code FROM daily_bars ORDER BY code`)
}

// Constituents lists the members of an index
func (s *Store) Constituents(ctx context.Context, index string) ([]string, error) {
	return s.strings(ctx, `SELECT code FROM index_constituents WHERE index_code = ? ORDER BY code`, index)
}

func (s *Store) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &Error{Provider: s.Name(), Err: err, Retryable: true}
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, &Error{Provider: s.Name(), Err: err}
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// StockInfo returns the metadata for code, or nil if unknown
func (s *Store) StockInfo(ctx context.Context, code string) (*model.StockInfo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT code, name, full_name, list_date, idn_code, idn_name FROM stock_base_info WHERE code = ?`, code)

	var (
		info                               model.StockInfo
		fullName, listDate, idnCode, idnNm sql.NullString
	)
	err := row.Scan(&info.Code, &info.Name, &fullName, &listDate, &idnCode, &idnNm)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &Error{Provider: s.Name(), Err: fmt.Errorf("stock info %s: %w", code, err), Retryable: true}
	}
	info.FullName, info.IndustryCode, info.Industry = fullName.String, idnCode.String, idnNm.String
	if listDate.Valid && listDate.String != "" {
		if t, err := time.Parse(model.DateLayout, listDate.String); err == nil {
			info.ListDate = t
		}
	}
	return &info, nil
}

// LatestDate returns the date of the newest stored bar for code
func (s *Store) LatestDate(ctx context.Context, code string) (time.Time, bool, error) {
	var d sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(date) FROM daily_bars WHERE code = ?`, code).Scan(&d); err != nil {
		return time.Time{}, false, err
	}
	if !d.Valid {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(model.DateLayout, d.String)
	return t, err == nil, err
}

// UpsertBars inserts or replaces bars for one instrument in a single transaction
func (s *Store) UpsertBars(ctx context.Context, code string, bars []model.Bar) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO daily_bars (code, `+barColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, b := range bars {
			if _, err := stmt.ExecContext(ctx, code, b.Date.Format(model.DateLayout),
				b.Open, b.Close, b.High, b.Low, b.Volume,
				b.Amount, b.Amplitude, b.ChangePct, b.PriceChange, b.TurnoverRate); err != nil {
				return fmt.Errorf("upsert %s %s: %w", code, b.Date.Format(model.DateLayout), err)
			}
		}
		return nil
	})
}

// UpsertInfo inserts or replaces instrument metadata
func (s *Store) UpsertInfo(ctx context.Context, infos ...model.StockInfo) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		for _, info := range infos {
			var listDate any
			if !info.ListDate.IsZero() {
				listDate = info.ListDate.Format(model.DateLayout)
			}
			if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO stock_base_info
				(code, name, full_name, list_date, idn_code, idn_name) VALUES (?, ?, ?, ?, ?, ?)`,
				info.Code, info.Name, info.FullName, listDate, info.IndustryCode, info.Industry); err != nil {
				return fmt.Errorf("upsert info %s: %w", info.Code, err)
			}
		}
		return nil
	})
}

// UpsertConstituents replaces the member list of an index
func (s *Store) UpsertConstituents(ctx context.Context, index string, codes []string) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM index_constituents WHERE index_code = ?`, index); err != nil {
			return err
		}
		for _, c := range codes {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO index_constituents (index_code, code) VALUES (?, ?)`, index, c); err != nil {
				return fmt.Errorf("upsert constituent %s/%s: %w", index, c, err)
			}
		}
		return nil
	})
}

func (s *Store) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
