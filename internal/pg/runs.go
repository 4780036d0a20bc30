package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"specproof/internal/runs"
	"specproof/internal/verify"
)

// RunsDDL: история запусков.
var RunsDDL = map[string]string{
	"001_verification_runs": `create table if not exists verification_runs (
  "id" text primary key,
  "spec" text not null,
  "version" text not null,
  "created_at" timestamp with time zone not null,
  "result" jsonb not null
)`,
	"002_verification_runs_spec_idx": `create index if not exists verification_runs_spec_idx on verification_runs ("spec", "id" desc)`,
}

// RunStore — runs.Store поверх Postgres.
type RunStore struct {
	db *sql.DB
}

var _ runs.Store = (*RunStore)(nil)

func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) Migrate(ctx context.Context) error {
	return ApplyDDL(ctx, s.db, RunsDDL)
}

func (s *RunStore) Close() error {
	return s.db.Close()
}

func (s *RunStore) Save(ctx context.Context, run *runs.Run) error {
	if run == nil || run.ID == "" {
		return errors.New("run id is required")
	}
	body, err := json.Marshal(run.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`insert into verification_runs ("id", "spec", "version", "created_at", "result")
values ($1, $2, $3, $4, $5)
on conflict ("id") do update set "result" = excluded."result"`,
		run.ID, run.Spec, run.Version, run.CreatedAt, body)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

func (s *RunStore) Get(ctx context.Context, id string) (*runs.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`select "id", "spec", "version", "created_at", "result" from verification_runs where "id" = $1`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, runs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return r, nil
}

func (s *RunStore) ListBySpec(ctx context.Context, spec string, limit int) ([]runs.Run, error) {
	// limit null в postgres — без ограничения
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.db.QueryContext(ctx,
		`select "id", "spec", "version", "created_at", "result" from verification_runs
where "spec" = $1 order by "id" desc limit $2`, spec, lim)
	if err != nil {
		return nil, fmt.Errorf("list runs of %s: %w", spec, err)
	}
	defer rows.Close()

	out := make([]runs.Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*runs.Run, error) {
	var (
		r    runs.Run
		body []byte
	)
	if err := sc.Scan(&r.ID, &r.Spec, &r.Version, &r.CreatedAt, &body); err != nil {
		return nil, err
	}
	var res verify.Result
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode result of %s: %w", r.ID, err)
	}
	r.Result = res
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}
