package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scenariolabs/verdict/pkg/qa"
	"github.com/scenariolabs/verdict/pkg/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRun(id string) *qa.TestRun {
	now := time.Now().UTC()
	return &qa.TestRun{
		RunID:     id,
		Target:    "https://shop.example.com",
		Scenario:  "checkout flow",
		Status:    qa.RunStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOpen_FileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "runs.db")
	s, err := Open(context.Background(), Config{Path: path})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.NoError(t, s.Ping(context.Background()))
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	require.Error(t, err)
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.CreateRun(ctx, newRun("run-aaa11111")))

	got, err := s.GetRun(ctx, "run-aaa11111")
	require.NoError(t, err)
	assert.Equal(t, qa.RunStatusPending, got.Status)
	assert.Equal(t, "https://shop.example.com", got.Target)

	require.NoError(t, s.UpdateRunStatus(ctx, "run-aaa11111", qa.RunStatusGeneratingPlan))
	got, err = s.GetRun(ctx, "run-aaa11111")
	require.NoError(t, err)
	assert.Equal(t, qa.RunStatusGeneratingPlan, got.Status)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestGetRun_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetRun(context.Background(), "run-missing")
	require.Error(t, err)
	assert.True(t, store.IsNotFound(err))

	var storeErr *store.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "GetRun", storeErr.Op)
}

func TestUpdateRunStatus_NotFound(t *testing.T) {
	s := openTestStore(t)

	err := s.UpdateRunStatus(context.Background(), "run-missing", qa.RunStatusFailed)
	assert.True(t, store.IsNotFound(err))
}

func TestListRuns_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Now().UTC()
	for i, id := range []string{"run-old", "run-mid", "run-new"} {
		run := newRun(id)
		run.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		run.UpdatedAt = run.CreatedAt
		require.NoError(t, s.CreateRun(ctx, run))
	}

	runs, err := s.ListRuns(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-new", runs[0].RunID)
	assert.Equal(t, "run-mid", runs[1].RunID)

	rest, err := s.ListRuns(ctx, 10, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "run-old", rest[0].RunID)
}

func TestPlanAndCases(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.CreateRun(ctx, newRun("run-plan")))

	plan := &qa.TestPlan{
		Target:   "https://shop.example.com",
		Scenario: "checkout flow",
		Cases: []qa.TestCase{
			{ID: "TC001", Description: "add to cart", Steps: []string{"open product", "click add"}, ExpectedResult: "cart badge shows 1"},
			{ID: "TC002", Description: "empty cart checkout", Steps: []string{"open cart", "click checkout"}, ExpectedResult: "checkout disabled"},
		},
	}
	require.NoError(t, s.CreatePlan(ctx, "run-plan", plan))

	cases, err := s.ListCases(ctx, "run-plan")
	require.NoError(t, err)
	require.Len(t, cases, 2)

	// Plan order preserved, results unset.
	assert.Equal(t, "TC001", cases[0].ID)
	assert.Equal(t, "TC002", cases[1].ID)
	assert.Equal(t, qa.CaseStatusPending, cases[0].Status)
	assert.Equal(t, []string{"open product", "click add"}, cases[0].Steps)
	assert.Nil(t, cases[0].ExecutedAt)

	executedAt := time.Now().UTC()
	require.NoError(t, s.UpdateCaseResult(ctx, "run-plan", "TC002",
		"checkout stayed disabled", qa.CaseStatusPass, "", executedAt))

	cases, err = s.ListCases(ctx, "run-plan")
	require.NoError(t, err)
	assert.Equal(t, qa.CaseStatusPending, cases[0].Status)
	assert.Equal(t, qa.CaseStatusPass, cases[1].Status)
	assert.Equal(t, "checkout stayed disabled", cases[1].ActualResult)
	require.NotNil(t, cases[1].ExecutedAt)
}

func TestUpdateCaseResult_UnknownCase(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.CreateRun(ctx, newRun("run-x")))

	err := s.UpdateCaseResult(ctx, "run-x", "TC999", "", qa.CaseStatusError, "n/a", time.Now())
	assert.True(t, store.IsNotFound(err))
}

func TestLogs_AppendOrder(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.CreateRun(ctx, newRun("run-logs")))

	for _, msg := range []string{"first", "second", "third"} {
		require.NoError(t, s.AppendLog(ctx, "run-logs", msg))
	}

	logs, err := s.ListLogs(ctx, "run-logs")
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "first", logs[0].Message)
	assert.Equal(t, "third", logs[2].Message)
	assert.False(t, logs[0].Timestamp.IsZero())
}

func TestReports(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.CreateRun(ctx, newRun("run-rep")))

	_, err := s.GetReport(ctx, "run-rep")
	assert.True(t, store.IsNotFound(err))

	report := qa.BuildReport(newRun("run-rep"), []qa.TestCase{
		{ID: "TC001", Status: qa.CaseStatusPass},
	}, qa.NewPhaseTiming())
	require.NoError(t, s.SaveReport(ctx, "run-rep", report))

	got, err := s.GetReport(ctx, "run-rep")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Summary.TotalTests)
	assert.Equal(t, "100.00%", got.Summary.PassRate)

	// Saving again replaces the stored copy.
	report.Summary.Scenario = "revised"
	require.NoError(t, s.SaveReport(ctx, "run-rep", report))
	got, err = s.GetReport(ctx, "run-rep")
	require.NoError(t, err)
	assert.Equal(t, "revised", got.Summary.Scenario)
}
