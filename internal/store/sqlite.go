package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/scenariolab/foresight/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB

	// updateMu serializes UpdateAnalysis transactions so a read never has
	// to upgrade to a write lock against another in-process writer.
	updateMu sync.Mutex
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS analyses (
	id              TEXT PRIMARY KEY,
	scenario_id     TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	progress        INTEGER NOT NULL DEFAULT 0,
	current_phase   INTEGER NOT NULL DEFAULT 0,
	results         TEXT,
	partial_results TEXT,
	markdown_report TEXT,
	error           TEXT,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS experts (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	doc        TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS scenarios (
	id         TEXT PRIMARY KEY,
	doc        TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_analyses_scenario_id ON analyses(scenario_id);
CREATE INDEX IF NOT EXISTS idx_analyses_status ON analyses(status);
CREATE INDEX IF NOT EXISTS idx_experts_name ON experts(name);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateAnalysis(ctx context.Context, scenarioID string) (*model.Analysis, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analyses (id, scenario_id, status, progress, current_phase, created_at, updated_at)
		 VALUES (?, ?, ?, 0, 0, ?, ?)`,
		id, scenarioID, string(model.AnalysisPending), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert analysis")
	}

	return &model.Analysis{
		ID:         id,
		ScenarioID: scenarioID,
		Status:     model.AnalysisPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

const selectAnalysisSQLite = `SELECT id, scenario_id, status, progress, current_phase, results, partial_results, markdown_report, error, created_at, updated_at
	 FROM analyses`

func (s *SQLiteStore) GetAnalysis(ctx context.Context, id string) (*model.Analysis, error) {
	row := s.db.QueryRowContext(ctx, selectAnalysisSQLite+` WHERE id = ?`, id)
	a, err := scanAnalysis(row)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get analysis %s", id)
	}
	return a, nil
}

// UpdateAnalysis merges upd into the row inside one transaction, so
// concurrent writers (fan-out tasks, the stop handler) cannot overwrite each
// other's appends. A row that is already terminal is returned unchanged.
func (s *SQLiteStore) UpdateAnalysis(ctx context.Context, id string, upd AnalysisUpdate) (*model.Analysis, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin update")
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, selectAnalysisSQLite+` WHERE id = ?`, id)
	a, err := scanAnalysis(row)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get analysis %s", id)
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

	_, err = tx.ExecContext(ctx,
		`UPDATE analyses SET status = ?, progress = ?, current_phase = ?, results = ?, partial_results = ?, markdown_report = ?, error = ?, updated_at = ?
		 WHERE id = ?`,
		string(a.Status), a.Progress, a.CurrentPhase, resultsJSON, partialsJSON, a.MarkdownReport, a.Error, a.UpdatedAt, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update analysis %s", id)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: commit update %s", id)
	}
	return a, nil
}

func (s *SQLiteStore) ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]model.Analysis, error) {
	query := `SELECT id, scenario_id, status, progress, current_phase, results, partial_results, markdown_report, error, created_at, updated_at
		 FROM analyses WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.ScenarioID != "" {
		query += ` AND scenario_id = ?`
		args = append(args, filter.ScenarioID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list analyses")
	}
	defer rows.Close()

	var out []model.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan analysis")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list analyses rows")
}

func (s *SQLiteStore) CreateExpert(ctx context.Context, expert *model.Expert) error {
	if expert.ID == "" {
		expert.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	expert.CreatedAt = now
	expert.UpdatedAt = now

	doc, err := json.Marshal(expert)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal expert")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO experts (id, name, doc, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		expert.ID, expert.Name, string(doc), now, now,
	)
	return eris.Wrap(err, "sqlite: insert expert")
}

func (s *SQLiteStore) ListExperts(ctx context.Context) ([]model.Expert, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM experts ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list experts")
	}
	defer rows.Close()

	var out []model.Expert
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan expert")
		}
		var e model.Expert
		if err := json.Unmarshal([]byte(doc), &e); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal expert")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list experts rows")
}

func (s *SQLiteStore) CreateScenario(ctx context.Context, scenario *model.Scenario) error {
	if scenario.ID == "" {
		scenario.ID = uuid.New().String()
	}
	scenario.CreatedAt = time.Now().UTC()

	doc, err := json.Marshal(scenario)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal scenario")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scenarios (id, doc, created_at) VALUES (?, ?, ?)`,
		scenario.ID, string(doc), scenario.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert scenario")
}

func (s *SQLiteStore) GetScenario(ctx context.Context, id string) (*model.Scenario, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM scenarios WHERE id = ?`, id).Scan(&doc)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get scenario %s", id)
	}
	var sc model.Scenario
	if err := json.Unmarshal([]byte(doc), &sc); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal scenario")
	}
	return &sc, nil
}

func (s *SQLiteStore) ListScenarios(ctx context.Context) ([]model.Scenario, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM scenarios ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scenarios")
	}
	defer rows.Close()

	var out []model.Scenario
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan scenario")
		}
		var sc model.Scenario
		if err := json.Unmarshal([]byte(doc), &sc); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal scenario")
		}
		out = append(out, sc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list scenarios rows")
}

// scanner abstracts *sql.Row and *sql.Rows for scanAnalysis.
type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row scanner) (*model.Analysis, error) {
	var a model.Analysis
	var status string
	var results, partials, report, errMsg sql.NullString

	err := row.Scan(&a.ID, &a.ScenarioID, &status, &a.Progress, &a.CurrentPhase,
		&results, &partials, &report, &errMsg, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	a.Status = model.AnalysisStatus(status)
	a.MarkdownReport = report.String
	a.Error = errMsg.String
	if results.Valid && results.String != "" {
		if err := json.Unmarshal([]byte(results.String), &a.Results); err != nil {
			return nil, eris.Wrap(err, "unmarshal results")
		}
	}
	if partials.Valid && partials.String != "" {
		if err := json.Unmarshal([]byte(partials.String), &a.PartialResults); err != nil {
			return nil, eris.Wrap(err, "unmarshal partial results")
		}
	}
	return &a, nil
}

func marshalAnalysisDocs(a *model.Analysis) (results, partials string, err error) {
	resultsBytes, err := json.Marshal(a.Results)
	if err != nil {
		return "", "", eris.Wrap(err, "marshal results")
	}
	partialsBytes, err := json.Marshal(a.PartialResults)
	if err != nil {
		return "", "", eris.Wrap(err, "marshal partial results")
	}
	return string(resultsBytes), string(partialsBytes), nil
}
