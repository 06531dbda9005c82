package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/scenariolab/foresight/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it,
// which is how the Postgres store is unit tested.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS analyses (
	id              TEXT PRIMARY KEY,
	scenario_id     TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	progress        INTEGER NOT NULL DEFAULT 0,
	current_phase   INTEGER NOT NULL DEFAULT 0,
	results         JSONB,
	partial_results JSONB,
	markdown_report TEXT,
	error           TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS experts (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scenarios (
	id         TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_analyses_scenario_id ON analyses(scenario_id);
CREATE INDEX IF NOT EXISTS idx_analyses_status ON analyses(status);
CREATE INDEX IF NOT EXISTS idx_experts_name ON experts(name);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateAnalysis(ctx context.Context, scenarioID string) (*model.Analysis, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO analyses (id, scenario_id, status, progress, current_phase, created_at, updated_at)
		 VALUES ($1, $2, $3, 0, 0, $4, $5)`,
		id, scenarioID, string(model.AnalysisPending), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert analysis")
	}

	return &model.Analysis{
		ID:         id,
		ScenarioID: scenarioID,
		Status:     model.AnalysisPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

const selectAnalysis = `SELECT id, scenario_id, status, progress, current_phase, results, partial_results, markdown_report, error, created_at, updated_at FROM analyses`

func (s *PostgresStore) GetAnalysis(ctx context.Context, id string) (*model.Analysis, error) {
	row := s.pool.QueryRow(ctx, selectAnalysis+` WHERE id = $1`, id)
	a, err := scanAnalysisPG(row)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get analysis %s", id)
	}
	return a, nil
}

// UpdateAnalysis merges upd into the row inside one transaction, locking the
// row for the duration so concurrent writers (fan-out tasks, the stop
// handler) cannot overwrite each other's appends. A row that is already
// terminal is returned unchanged.
func (s *PostgresStore) UpdateAnalysis(ctx context.Context, id string, upd AnalysisUpdate) (*model.Analysis, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin update")
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, selectAnalysis+` WHERE id = $1 FOR UPDATE`, id)
	a, err := scanAnalysisPG(row)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get analysis %s", id)
	}

	if a.Status.Terminal() {
		return a, nil
	}

	applyUpdate(a, upd)
	a.UpdatedAt = time.Now().UTC()

	resultsJSON, partialsJSON, err := marshalAnalysisDocs(a)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE analyses SET status = $1, progress = $2, current_phase = $3, results = $4, partial_results = $5, markdown_report = $6, error = $7, updated_at = $8
		 WHERE id = $9`,
		string(a.Status), a.Progress, a.CurrentPhase, resultsJSON, partialsJSON, a.MarkdownReport, a.Error, a.UpdatedAt, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update analysis %s", id)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrapf(err, "postgres: commit update %s", id)
	}
	return a, nil
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]model.Analysis, error) {
	query := selectAnalysis + ` WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	if filter.ScenarioID != "" {
		args = append(args, filter.ScenarioID)
		if len(args) == 1 {
			query += ` AND scenario_id = $1`
		} else {
			query += ` AND scenario_id = $2`
		}
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)
	query += placeholderPair(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analyses")
	}
	defer rows.Close()

	var out []model.Analysis
	for rows.Next() {
		a, err := scanAnalysisPG(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan analysis")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list analyses rows")
}

func (s *PostgresStore) CreateExpert(ctx context.Context, expert *model.Expert) error {
	if expert.ID == "" {
		expert.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	expert.CreatedAt = now
	expert.UpdatedAt = now

	doc, err := json.Marshal(expert)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal expert")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO experts (id, name, doc, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		expert.ID, expert.Name, string(doc), now, now,
	)
	return eris.Wrap(err, "postgres: insert expert")
}

func (s *PostgresStore) ListExperts(ctx context.Context) ([]model.Expert, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM experts ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list experts")
	}
	defer rows.Close()

	var out []model.Expert
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan expert")
		}
		var e model.Expert
		if err := json.Unmarshal([]byte(doc), &e); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal expert")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list experts rows")
}

func (s *PostgresStore) CreateScenario(ctx context.Context, scenario *model.Scenario) error {
	if scenario.ID == "" {
		scenario.ID = uuid.New().String()
	}
	scenario.CreatedAt = time.Now().UTC()

	doc, err := json.Marshal(scenario)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal scenario")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO scenarios (id, doc, created_at) VALUES ($1, $2, $3)`,
		scenario.ID, string(doc), scenario.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert scenario")
}

func (s *PostgresStore) GetScenario(ctx context.Context, id string) (*model.Scenario, error) {
	var doc string
	err := s.pool.QueryRow(ctx, `SELECT doc FROM scenarios WHERE id = $1`, id).Scan(&doc)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get scenario %s", id)
	}
	var sc model.Scenario
	if err := json.Unmarshal([]byte(doc), &sc); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal scenario")
	}
	return &sc, nil
}

func (s *PostgresStore) ListScenarios(ctx context.Context) ([]model.Scenario, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM scenarios ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scenarios")
	}
	defer rows.Close()

	var out []model.Scenario
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan scenario")
		}
		var sc model.Scenario
		if err := json.Unmarshal([]byte(doc), &sc); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal scenario")
		}
		out = append(out, sc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list scenarios rows")
}

// scanAnalysisPG scans one analyses row from a pgx row.
func scanAnalysisPG(row pgx.Row) (*model.Analysis, error) {
	var a model.Analysis
	var status string
	var results, partials, report, errMsg *string

	err := row.Scan(&a.ID, &a.ScenarioID, &status, &a.Progress, &a.CurrentPhase,
		&results, &partials, &report, &errMsg, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	a.Status = model.AnalysisStatus(status)
	if report != nil {
		a.MarkdownReport = *report
	}
	if errMsg != nil {
		a.Error = *errMsg
	}
	if results != nil && *results != "" {
		if err := json.Unmarshal([]byte(*results), &a.Results); err != nil {
			return nil, eris.Wrap(err, "unmarshal results")
		}
	}
	if partials != nil && *partials != "" {
		if err := json.Unmarshal([]byte(*partials), &a.PartialResults); err != nil {
			return nil, eris.Wrap(err, "unmarshal partial results")
		}
	}
	return &a, nil
}

// placeholderPair renders the trailing LIMIT/OFFSET placeholders given the
// final argument count.
func placeholderPair(argc int) string {
	switch argc {
	case 2:
		return ` LIMIT $1 OFFSET $2`
	case 3:
		return ` LIMIT $2 OFFSET $3`
	default:
		return ` LIMIT $3 OFFSET $4`
	}
}
