package handlers

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type SimpleRow struct {
	scan func(dest ...any) error
}

func NewSimpleRow(scanner func(dest ...any) error) SimpleRow {
	return SimpleRow{scan: scanner}
}

func (r SimpleRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type TestRowsBase struct{}

func (TestRowsBase) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (TestRowsBase) Conn() *pgx.Conn { return nil }

func (TestRowsBase) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (TestRowsBase) Values() ([]any, error) {
	return nil, fmt.Errorf("values not supported in test rows")
}

func (TestRowsBase) RawValues() [][]byte { return nil }

// scriptedSQL routes statements to canned rows keyed by the inline query
// constant, so handler tests exercise the real repository scan paths.
type scriptedSQL struct {
	rows    map[string]func() pgx.Row
	queries map[string]func() pgx.Rows
}

func (s *scriptedSQL) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (s *scriptedSQL) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	if fn, ok := s.rows[query]; ok {
		return fn()
	}
	return SimpleRow{}
}

func (s *scriptedSQL) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	if fn, ok := s.queries[query]; ok {
		return fn(), nil
	}
	return &stringRows{}, nil
}

// stringRows is a single-column pgx.Rows over string values.
type stringRows struct {
	TestRowsBase
	values []string
	pos    int
}

func (r *stringRows) Close()     {}
func (r *stringRows) Err() error { return nil }

func (r *stringRows) Next() bool {
	if r.pos >= len(r.values) {
		return false
	}
	r.pos++
	return true
}

func (r *stringRows) Scan(dest ...any) error {
	if len(dest) != 1 {
		return fmt.Errorf("expected 1 destination, got %d", len(dest))
	}
	ptr, ok := dest[0].(*string)
	if !ok {
		return fmt.Errorf("expected *string destination")
	}
	*ptr = r.values[r.pos-1]
	return nil
}
