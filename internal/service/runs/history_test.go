package runs

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/beacon/internal/model"
	"github.com/ashita-ai/beacon/internal/storage"
)

func TestHistoryPairsStartedWithTerminal(t *testing.T) {
	f := newFakeStore()
	f.add("c1", "run-1", model.EventRunStarted, t0, nil)
	f.add("c1", "run-1", model.EventRunCompleted, t0.Add(10*time.Minute), map[string]any{
		"orgsCount": float64(12), "contactsCount": float64(30), "leadsCount": float64(0), "emailsSent": float64(0),
	})
	f.add("c1", "run-2", model.EventRunStarted, t0.Add(time.Hour), nil)
	f.add("c1", "run-2", "campaign.run.failed", t0.Add(2*time.Hour), map[string]any{
		"errorMessage": "engine crashed",
		"errors":       []any{"mailbox full", 7},
	})
	f.add("c1", "run-3", model.EventRunStarted, t0.Add(3*time.Hour), nil)

	h, err := newTestService(f).History(context.Background(), "c1", 0)
	require.NoError(t, err)
	require.Len(t, h.Runs, 3)
	assert.False(t, h.Degraded)

	assert.Equal(t, "run-3", h.Runs[0].ID)
	assert.Equal(t, "running", h.Runs[0].Status)
	assert.Nil(t, h.Runs[0].CompletedAt)

	assert.Equal(t, "failed", h.Runs[1].Status)
	assert.Equal(t, []string{"engine crashed", "mailbox full"}, h.Runs[1].Errors)

	assert.Equal(t, "completed", h.Runs[2].Status)
	require.NotNil(t, h.Runs[2].CompletedAt)
	assert.Equal(t, t0.Add(10*time.Minute), *h.Runs[2].CompletedAt)
	assert.Equal(t, map[string]int64{"orgsCount": 12, "contactsCount": 30, "leadsCount": 0, "emailsSent": 0}, h.Runs[2].Counts)

	require.Len(t, f.runIDCalls, 1, "completions are fetched in one batch")
	assert.ElementsMatch(t, []string{"run-1", "run-2", "run-3"}, f.runIDCalls[0])
}

func TestHistoryNewestTerminalWins(t *testing.T) {
	f := newFakeStore()
	f.add("c1", "run-1", model.EventRunStarted, t0, nil)
	f.add("c1", "run-1", model.EventRunFailed, t0.Add(time.Minute), nil)
	f.add("c1", "run-1", model.EventRunCompleted, t0.Add(2*time.Minute), nil)

	h, err := newTestService(f).History(context.Background(), "c1", 5)
	require.NoError(t, err)
	require.Len(t, h.Runs, 1)
	assert.Equal(t, "completed", h.Runs[0].Status)
}

func TestHistoryKeepsEveryStartedEvent(t *testing.T) {
	f := newFakeStore()
	f.add("c1", "run-a", model.EventRunStarted, t0, nil)
	f.add("c1", "run-a", model.EventRunStarted, t0.Add(time.Minute), nil)
	f.add("c1", "run-a", model.EventRunCompleted, t0.Add(5*time.Minute), nil)

	h, err := newTestService(f).History(context.Background(), "c1", 0)
	require.NoError(t, err)
	require.Len(t, h.Runs, 2)
	assert.Equal(t, t0.Add(time.Minute), h.Runs[0].StartedAt)
	assert.Equal(t, t0, h.Runs[1].StartedAt)
	for _, rec := range h.Runs {
		assert.Equal(t, "run-a", rec.ID)
		assert.Equal(t, "completed", rec.Status)
	}

	require.Len(t, f.runIDCalls, 1)
	assert.Equal(t, []string{"run-a"}, f.runIDCalls[0], "run ids are fetched once")
}

func TestHistoryLimit(t *testing.T) {
	f := newFakeStore()
	for i := 0; i < MaxHistoryLimit+10; i++ {
		f.add("c1", "run-"+strconv.Itoa(i), model.EventRunStarted, t0.Add(time.Duration(i)*time.Second), nil)
	}
	svc := newTestService(f)

	h, err := svc.History(context.Background(), "c1", 3)
	require.NoError(t, err)
	assert.Len(t, h.Runs, 3)

	h, err = svc.History(context.Background(), "c1", 0)
	require.NoError(t, err)
	assert.Len(t, h.Runs, DefaultHistoryLimit)

	h, err = svc.History(context.Background(), "c1", 10_000)
	require.NoError(t, err)
	assert.Len(t, h.Runs, MaxHistoryLimit)
}

func TestHistoryEmpty(t *testing.T) {
	f := newFakeStore()
	h, err := newTestService(f).History(context.Background(), "c1", 10)
	require.NoError(t, err)
	assert.NotNil(t, h.Runs)
	assert.Empty(t, h.Runs)
	assert.Empty(t, f.runIDCalls, "no batch query without started runs")
}

func TestHistoryDegradesOnStoreErrors(t *testing.T) {
	f := newFakeStore()
	f.eventErr = storage.ErrUnavailable
	h, err := newTestService(f).History(context.Background(), "c1", 10)
	require.NoError(t, err)
	assert.True(t, h.Degraded)
	assert.Empty(t, h.Runs)

	f = newFakeStore()
	f.add("c1", "run-1", model.EventRunStarted, t0, nil)
	f.listErr = storage.ErrUnavailable
	h, err = newTestService(f).History(context.Background(), "c1", 10)
	require.NoError(t, err)
	assert.True(t, h.Degraded)
	require.Len(t, h.Runs, 1)
	assert.Equal(t, "running", h.Runs[0].Status)
}
