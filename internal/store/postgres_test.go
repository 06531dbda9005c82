package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scenariolab/foresight/internal/model"
)

func newTestPostgres(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func analysisRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "scenario_id", "status", "progress", "current_phase",
		"results", "partial_results", "markdown_report", "error",
		"created_at", "updated_at",
	})
}

func TestPostgresMigrate(t *testing.T) {
	s, mock := newTestPostgres(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS analyses").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateAnalysis(t *testing.T) {
	s, mock := newTestPostgres(t)
	mock.ExpectExec("INSERT INTO analyses").
		WithArgs(pgxmock.AnyArg(), "sc-1", string(model.AnalysisPending), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	a, err := s.CreateAnalysis(context.Background(), "sc-1")
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, model.AnalysisPending, a.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetAnalysis(t *testing.T) {
	s, mock := newTestPostgres(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM analyses WHERE id").
		WithArgs("a1").
		WillReturnRows(analysisRows().AddRow(
			"a1", "sc-1", "running", 40, 2,
			nil, nil, nil, nil, now, now,
		))

	a, err := s.GetAnalysis(context.Background(), "a1")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, model.AnalysisRunning, a.Status)
	assert.Equal(t, 40, a.Progress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetAnalysisNotFound(t *testing.T) {
	s, mock := newTestPostgres(t)
	mock.ExpectQuery("SELECT (.+) FROM analyses WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	a, err := s.GetAnalysis(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateAnalysis(t *testing.T) {
	s, mock := newTestPostgres(t)
	now := time.Now().UTC()

	partialsJSON := `[{"type":"partial_expert_analysis","phase":1,"content":"old","completed_at":"2026-01-01T00:00:00Z"}]`
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM analyses WHERE id = \$1 FOR UPDATE`).
		WithArgs("a1").
		WillReturnRows(analysisRows().AddRow(
			"a1", "sc-1", "running", 40, 2,
			nil, &partialsJSON, nil, nil, now, now,
		))
	mock.ExpectExec("UPDATE analyses SET").
		WithArgs("running", 60, 2, pgxmock.AnyArg(), pgxmock.AnyArg(), "", "", pgxmock.AnyArg(), "a1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	progress := 60
	a, err := s.UpdateAnalysis(context.Background(), "a1", AnalysisUpdate{
		Progress: &progress,
		AppendPartials: []model.PartialResult{{
			Type: "partial_expert_analysis", Phase: 1, Content: "new",
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 60, a.Progress)
	assert.Len(t, a.PartialResults, 2, "append keeps the stored fragments")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateAnalysisRefusesTerminal(t *testing.T) {
	s, mock := newTestPostgres(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM analyses WHERE id = \$1 FOR UPDATE`).
		WithArgs("a1").
		WillReturnRows(analysisRows().AddRow(
			"a1", "sc-1", "stopped", 40, 2,
			nil, nil, nil, nil, now, now,
		))
	mock.ExpectRollback()

	running := model.AnalysisRunning
	progress := 60
	a, err := s.UpdateAnalysis(context.Background(), "a1", AnalysisUpdate{
		Status:   &running,
		Progress: &progress,
	})
	require.NoError(t, err)
	assert.Equal(t, model.AnalysisStopped, a.Status, "terminal status is never overwritten")
	assert.Equal(t, 40, a.Progress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateAnalysisNotFound(t *testing.T) {
	s, mock := newTestPostgres(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM analyses WHERE id = \$1 FOR UPDATE`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	running := model.AnalysisRunning
	a, err := s.UpdateAnalysis(context.Background(), "missing", AnalysisUpdate{Status: &running})
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateExpert(t *testing.T) {
	s, mock := newTestPostgres(t)
	mock.ExpectExec("INSERT INTO experts").
		WithArgs(pgxmock.AnyArg(), "Ada Lovelace", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	e := &model.Expert{Name: "Ada Lovelace", Role: "Analyst"}
	require.NoError(t, s.CreateExpert(context.Background(), e))
	assert.NotEmpty(t, e.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListExperts(t *testing.T) {
	s, mock := newTestPostgres(t)
	mock.ExpectQuery("SELECT doc FROM experts").
		WillReturnRows(pgxmock.NewRows([]string{"doc"}).
			AddRow(`{"name":"Ada Lovelace","role":"Analyst"}`).
			AddRow(`{"name":"Grace Hopper","role":"Strategist"}`))

	experts, err := s.ListExperts(context.Background())
	require.NoError(t, err)
	require.Len(t, experts, 2)
	assert.Equal(t, "Ada Lovelace", experts[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresScenarioRoundTrip(t *testing.T) {
	s, mock := newTestPostgres(t)

	mock.ExpectExec("INSERT INTO scenarios").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	sc := &model.Scenario{Theme: "Storage", TargetYears: []int{2030}}
	require.NoError(t, s.CreateScenario(context.Background(), sc))

	mock.ExpectQuery("SELECT doc FROM scenarios WHERE id").
		WithArgs(sc.ID).
		WillReturnRows(pgxmock.NewRows([]string{"doc"}).
			AddRow(`{"id":"` + sc.ID + `","theme":"Storage","target_years":[2030]}`))
	got, err := s.GetScenario(context.Background(), sc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Storage", got.Theme)

	mock.ExpectQuery("SELECT doc FROM scenarios WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	missing, err := s.GetScenario(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListAnalysesQueryShape(t *testing.T) {
	s, mock := newTestPostgres(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM analyses WHERE 1=1 AND status = \\$1").
		WithArgs("running", 100, 0).
		WillReturnRows(analysisRows().AddRow(
			"a1", "sc-1", "running", 40, 2,
			nil, nil, nil, nil, now, now,
		))

	out, err := s.ListAnalyses(context.Background(), AnalysisFilter{Status: model.AnalysisRunning})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a1", out[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
