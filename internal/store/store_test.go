package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/layoutprobe/internal/checks"
	"github.com/xkilldash9x/layoutprobe/internal/runner"
	"github.com/xkilldash9x/layoutprobe/internal/viewport"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

// ArgumentMatcherFunc is a helper to create inline mock matchers.
type ArgumentMatcherFunc func(interface{}) bool

func (f ArgumentMatcherFunc) Match(v interface{}) bool {
	return f(v)
}

var utcTime = ArgumentMatcherFunc(func(v interface{}) bool {
	t, ok := v.(time.Time)
	return ok && t.Location() == time.UTC
})

func jsonWithKey(key string, want any) ArgumentMatcherFunc {
	return func(v interface{}) bool {
		b, ok := v.([]byte)
		if !ok {
			return false
		}
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			return false
		}
		return m[key] == want
	}
}

func newMockStore(t *testing.T, logger *zap.Logger) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s, mockPool
}

func sampleRun() *runner.Run {
	ny := time.FixedZone("EST", -5*60*60)
	start := time.Date(2026, 3, 1, 7, 0, 0, 0, ny)
	return &runner.Run{
		ID:         "run-42",
		BaseURL:    "http://localhost:8080",
		StartedAt:  start,
		FinishedAt: start.Add(5 * time.Second),
		Results: []runner.Result{
			{Check: "reflow", Viewport: viewport.Reflow, Path: "/", URL: "http://localhost:8080/", Status: runner.StatusPass},
			{
				Check: "target-size", Viewport: viewport.Mobile, Path: "/", URL: "http://localhost:8080/", Status: runner.StatusFail,
				Violations: []checks.Violation{
					&checks.TargetViolation{Tag: "a", Text: "Home", Path: "nav > a", Width: 30, Height: 20},
					&checks.TargetViolation{Tag: "button", Text: "Go", Path: "#go", Width: 40, Height: 40},
				},
			},
			{Check: "overflow", Viewport: viewport.Tablet, Path: "/about", Status: runner.StatusError, Err: errors.New("boom")},
		},
	}
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestOpen_EmptyURL(t *testing.T) {
	_, err := Open(context.Background(), "", zap.NewNop())
	assert.EqualError(t, err, "database url is empty")
}

func TestEnsureSchema(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	mockPool.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS audit_runs")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSaveRun(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist the run and each violation", func(t *testing.T) {
		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(observedZapCore))
		run := sampleRun()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WithArgs("run-42", "http://localhost:8080", utcTime, utcTime, 1, 1, 1).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertViolation)).
			WithArgs("run-42", "target-size", "mobile", 375, 812, "/", "http://localhost:8080/",
				`a "Home" class="": 30x20px`, jsonWithKey("tag", "a")).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertViolation)).
			WithArgs("run-42", "target-size", "mobile", 375, 812, "/", "http://localhost:8080/",
				`button "Go" class="": 40x40px`, jsonWithKey("path", "#go")).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()

		require.NoError(t, s.SaveRun(ctx, run))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, observedLogs.All(), "Expected no errors logged on successful commit")
	})

	t.Run("should roll back when a violation insert fails", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		run := sampleRun()
		insertErr := errors.New("constraint violation")

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertViolation)).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(insertErr)
		mockPool.ExpectRollback()

		err := s.SaveRun(ctx, run)
		require.Error(t, err)
		assert.ErrorIs(t, err, insertErr)
		assert.Contains(t, err.Error(), "failed to insert violation 0 of target-size")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should report begin failures", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

		err := s.SaveRun(ctx, sampleRun())
		assert.ErrorContains(t, err, "failed to begin transaction: pool exhausted")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should log rollback failures other than a closed transaction", func(t *testing.T) {
		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(observedZapCore))

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("duplicate key"))
		mockPool.ExpectRollback().WillReturnError(errors.New("connection reset"))

		err := s.SaveRun(ctx, sampleRun())
		assert.ErrorContains(t, err, "failed to insert run run-42")
		require.Len(t, observedLogs.All(), 1)
		assert.Equal(t, "Failed to rollback transaction", observedLogs.All()[0].Message)
	})

	t.Run("should not log a closed transaction on rollback", func(t *testing.T) {
		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(observedZapCore))

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("duplicate key"))
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		assert.Error(t, s.SaveRun(ctx, sampleRun()))
		assert.Empty(t, observedLogs.All())
	})
}

func TestListRuns(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"id", "base_url", "started_at", "finished_at", "passed", "failed", "errored"}).
		AddRow("run-2", "http://b", started.Add(time.Hour), started.Add(time.Hour+time.Minute), 4, 0, 0).
		AddRow("run-1", "http://a", started, started.Add(time.Minute), 2, 1, 1)
	mockPool.ExpectQuery(flexibleSQLMatcher(sqlListRuns)).WithArgs(20).WillReturnRows(rows)

	runs, err := s.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, RunRecord{
		ID: "run-1", BaseURL: "http://a", StartedAt: started, FinishedAt: started.Add(time.Minute),
		Passed: 2, Failed: 1, Errored: 1,
	}, runs[1])
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestListRuns_QueryError(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	mockPool.ExpectQuery(flexibleSQLMatcher(sqlListRuns)).WithArgs(5).WillReturnError(errors.New("no table"))

	_, err := s.ListRuns(context.Background(), 5)
	assert.ErrorContains(t, err, "failed to query runs: no table")
}

func TestViolations(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	detail := []byte(`{"tag":"a"}`)

	rows := pgxmock.NewRows([]string{"check_name", "viewport", "width", "height", "path", "url", "summary", "detail"}).
		AddRow("target-size", "mobile", 375, 812, "/", "http://a/", `a "Home" class="": 30x20px`, detail)
	mockPool.ExpectQuery(flexibleSQLMatcher(sqlViolationsByRun)).WithArgs("run-1").WillReturnRows(rows)

	got, err := s.Violations(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ViolationRecord{
		RunID: "run-1", Check: "target-size", Viewport: "mobile", Width: 375, Height: 812,
		Path: "/", URL: "http://a/", Summary: `a "Home" class="": 30x20px`, Detail: detail,
	}, got[0])
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
