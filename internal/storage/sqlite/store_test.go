package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/beacon/internal/model"
	"github.com/ashita-ai/beacon/internal/storage"
	"github.com/ashita-ai/beacon/migrations"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "beacon.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.RunMigrations(context.Background(), migrations.SQLite()))
	return s
}

func seedCampaign(t *testing.T, s *Store, id, status string) {
	t.Helper()
	_, err := s.sqlDB.Exec(`INSERT INTO campaigns (id, status) VALUES (?, ?)`, id, status)
	require.NoError(t, err)
}

func appendRunEvent(t *testing.T, s *Store, campaignID, runID string, typ model.EventType, extra map[string]any) model.Event {
	t.Helper()
	payload := map[string]any{model.PayloadCampaignID: campaignID}
	for k, v := range extra {
		payload[k] = v
	}
	evt, err := s.AppendEvent(context.Background(), model.NewEvent{
		EventType:  typ,
		EntityType: model.EntityTypeCampaignRun,
		EntityID:   runID,
		Payload:    payload,
	})
	require.NoError(t, err)
	return evt
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ", nil)
	require.Error(t, err)
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RunMigrations(context.Background(), migrations.SQLite()))
	assert.Equal(t, "sqlite", s.Driver())
	require.NoError(t, s.Ping(context.Background()))
}

func TestAppendEventRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := appendRunEvent(t, s, "c1", "run-1", model.EventRunStarted, map[string]any{"phase": "sourcing"})
	b := appendRunEvent(t, s, "c1", "run-1", model.EventRunRunning, nil)
	assert.Greater(t, b.Seq, a.Seq)

	evt, found, err := s.LatestEventByTypes(ctx, "c1", []model.EventType{model.EventRunStarted})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, a.ID, evt.ID)
	assert.Equal(t, "run-1", evt.RunID())
	assert.Equal(t, "sourcing", evt.StageName())
	assert.True(t, a.CreatedAt.Equal(evt.CreatedAt))
}

func TestAppendEventRejectsMissingColumns(t *testing.T) {
	s := openTestStore(t)
	_, err := s.AppendEvent(context.Background(), model.NewEvent{EventType: model.EventRunStarted, EntityType: model.EntityTypeCampaignRun})
	require.ErrorIs(t, err, storage.ErrInvalidEvent)
}

func TestLatestEventByTypesBreaksTiesBySeq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ts := toMillis(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	for i, typ := range []model.EventType{model.EventRunRunning, model.EventRunFailed, model.EventRunStarted} {
		_, err := s.sqlDB.Exec(
			`INSERT INTO campaign_events (id, event_type, entity_type, entity_id, payload, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			[]string{"00000000-0000-0000-0000-000000000001", "00000000-0000-0000-0000-000000000002", "00000000-0000-0000-0000-000000000003"}[i],
			string(typ), model.EntityTypeCampaignRun, "run-tie", `{"campaignId":"c1"}`, ts)
		require.NoError(t, err)
	}

	evt, found, err := s.LatestEventByTypes(ctx, "c1",
		model.EventTypeAliases(model.EventRunStarted, model.EventRunRunning, model.EventRunCompleted, model.EventRunFailed))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.EventRunStarted, evt.EventType, "last inserted wins on equal created_at")
}

func TestLatestEventByTypesScopesToCampaignAndEntity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	appendRunEvent(t, s, "other", "run-x", model.EventRunCompleted, nil)
	_, err := s.AppendEvent(ctx, model.NewEvent{
		EventType:  model.EventRunCompleted,
		EntityType: "campaign",
		EntityID:   "c1",
		Payload:    map[string]any{model.PayloadCampaignID: "c1"},
	})
	require.NoError(t, err)

	_, found, err := s.LatestEventByTypes(ctx, "c1", []model.EventType{model.EventRunCompleted})
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = s.LatestEventByTypes(ctx, "c1", nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListEventsByTypeIncludesLegacyAliases(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	appendRunEvent(t, s, "c1", "run-1", "campaign.run.started", nil)
	appendRunEvent(t, s, "c1", "run-2", model.EventRunStarted, nil)
	appendRunEvent(t, s, "c1", "run-2", model.EventRunRunning, nil)

	events, err := s.ListEventsByType(ctx, "c1", model.EventRunStarted, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "run-2", events[0].EntityID)
	assert.Equal(t, model.EventType("campaign.run.started"), events[1].EventType)

	events, err = s.ListEventsByType(ctx, "c1", model.EventRunStarted, 1)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestListEventsByRunIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	appendRunEvent(t, s, "c1", "run-1", model.EventRunCompleted, map[string]any{"leadsCount": 4})
	appendRunEvent(t, s, "c1", "run-2", model.EventRunFailed, map[string]any{"errorMessage": "quota"})
	appendRunEvent(t, s, "c1", "run-3", model.EventRunCompleted, nil)

	events, err := s.ListEventsByRunIDs(ctx, "c1", []string{"run-1", "run-2"},
		[]model.EventType{model.EventRunCompleted, model.EventRunFailed})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "run-2", events[0].EntityID)
	assert.Equal(t, "quota", events[0].PayloadString("errorMessage"))
	n, ok := events[1].PayloadInt("leadsCount")
	require.True(t, ok)
	assert.Equal(t, int64(4), n)

	events, err = s.ListEventsByRunIDs(ctx, "c1", nil, []model.EventType{model.EventRunCompleted})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestLatestRunForCampaign(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedCampaign(t, s, "c1", model.CampaignStatusApproved)

	_, found, err := s.LatestRunForCampaign(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, found)

	now := time.Now().UTC()
	_, err = s.sqlDB.Exec(`INSERT INTO campaign_runs (id, campaign_id, status, created_at) VALUES (?, ?, ?, ?)`,
		"run-old", "c1", "completed", toMillis(now.Add(-time.Hour)))
	require.NoError(t, err)
	_, err = s.sqlDB.Exec(`INSERT INTO campaign_runs (id, campaign_id, status, created_at, started_at, error_message, phase)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"run-new", "c1", "FAILED_WITH_QUIRK", toMillis(now), toMillis(now), "boom", "outreach")
	require.NoError(t, err)

	rec, found, err := s.LatestRunForCampaign(ctx, "c1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "run-new", rec.ID)
	assert.Equal(t, "FAILED_WITH_QUIRK", rec.Status)
	require.NotNil(t, rec.StartedAt)
	assert.Nil(t, rec.CompletedAt)
	require.NotNil(t, rec.ErrorMessage)
	assert.Equal(t, "boom", *rec.ErrorMessage)
	require.NotNil(t, rec.Phase)
	assert.Equal(t, "outreach", *rec.Phase)
	assert.Nil(t, rec.Stage)
}

func TestGetCampaign(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedCampaign(t, s, "c1", model.CampaignStatusDraft)

	c, err := s.GetCampaign(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.Campaign{ID: "c1", Status: "draft"}, c)

	_, err = s.GetCampaign(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEventLogRejectsMutation(t *testing.T) {
	s := openTestStore(t)
	evt := appendRunEvent(t, s, "c1", "run-1", model.EventRunStarted, nil)

	_, err := s.sqlDB.Exec(`UPDATE campaign_events SET event_type = 'run.failed' WHERE id = ?`, evt.ID.String())
	require.Error(t, err)
	_, err = s.sqlDB.Exec(`DELETE FROM campaign_events WHERE id = ?`, evt.ID.String())
	require.Error(t, err)
}

func TestMissingSchemaIsMalformedQuery(t *testing.T) {
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "empty.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, _, err = s.LatestRunForCampaign(context.Background(), "c1")
	require.ErrorIs(t, err, storage.ErrMalformedQuery)
	assert.False(t, storage.IsUnavailable(err))
}
