package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRows struct {
	rows [][]any
	idx  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	return r.rows[r.idx-1], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("expected %d columns, got %d", len(row), len(dest))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *time.Time:
			*p = row[i].(time.Time)
		case *float64:
			*p = row[i].(float64)
		case *int64:
			*p = row[i].(int64)
		case *string:
			*p = row[i].(string)
		case *[]byte:
			*p = row[i].([]byte)
		case **float64:
			if row[i] == nil {
				*p = nil
			} else {
				v := row[i].(float64)
				*p = &v
			}
		default:
			return fmt.Errorf("unsupported scan target %T", d)
		}
	}
	return nil
}

type fakeQuerier struct {
	results map[string][][]any
	queries []string
	args    [][]any
	err     error
}

func (q *fakeQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.queries = append(q.queries, sql)
	q.args = append(q.args, args)
	if q.err != nil {
		return nil, q.err
	}
	for table, rows := range q.results {
		if strings.Contains(sql, "FROM "+table+" ") {
			return &fakeRows{rows: rows}, nil
		}
	}
	return &fakeRows{}, nil
}

func TestPostgresTimedValues(t *testing.T) {
	from := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	db := &fakeQuerier{results: map[string][][]any{
		"glucose": {
			{from, 110.0},
			{from.Add(5 * time.Minute), 115.0},
		},
	}}
	p := newPostgresProvider(db, time.Second, nil)

	values, err := p.GlucoseReadings(context.Background(), from, from.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(values) != 2 || values[1].Value != 115 {
		t.Fatalf("unexpected values: %v", values)
	}
	if len(db.args) != 1 || !db.args[0][0].(time.Time).Equal(from) {
		t.Fatalf("expected window start as first argument, got %v", db.args)
	}

	carbs, err := p.Carbs(context.Background(), from, from.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(carbs) != 0 {
		t.Fatalf("expected no carbs, got %v", carbs)
	}
}

func TestPostgresOverridesAndHistory(t *testing.T) {
	from := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	segments := []byte(`[{"timeAsSeconds":0,"value":1.0}]`)
	db := &fakeQuerier{results: map[string][][]any{
		"temp_basals": {
			{from.Add(-30 * time.Minute), int64(3600000), 50.0, nil},
			{from.Add(10 * time.Minute), int64(600000), nil, 0.3},
		},
		"profile_switches": {
			{from.Add(-24 * time.Hour), "base", int64(0), 100.0, segments},
			{from.Add(-time.Hour), "bad", int64(0), 100.0, []byte(`not json`)},
		},
	}}
	p := newPostgresProvider(db, 0, nil)

	overrides, err := p.TemporaryOverrides(context.Background(), from, from.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(overrides) != 2 || overrides[0].RateMultiplier != 1.5 || *overrides[1].AbsoluteRate != 0.3 {
		t.Fatalf("unexpected overrides: %+v", overrides)
	}

	h, err := p.ProfileHistory(context.Background(), from, from.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h == nil || h.CurrentlyActive.Name != "base" || h.CurrentlyActive.Multiplier() != 1 {
		t.Fatalf("unexpected history: %+v", h)
	}
}

func TestPostgresQueryError(t *testing.T) {
	p := newPostgresProvider(&fakeQuerier{err: errors.New("boom")}, 0, nil)
	if _, err := p.HeartRates(context.Background(), time.Unix(0, 0), time.Unix(60, 0)); err == nil || !strings.Contains(err.Error(), "heart_rate") {
		t.Fatalf("expected wrapped query error, got %v", err)
	}
}
