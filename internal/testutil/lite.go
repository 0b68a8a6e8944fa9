package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/beacon/internal/model"
	"github.com/ashita-ai/beacon/internal/storage/sqlite"
	"github.com/ashita-ai/beacon/migrations"
)

// LiteStore is a migrated SQLite store in a temp dir plus a raw handle for
// seeding the tables the store only reads.
type LiteStore struct {
	Store *sqlite.Store
	DB    *sql.DB
}

// NewLiteStore opens a fresh SQLite store under t.TempDir and migrates it.
func NewLiteStore(t *testing.T) *LiteStore {
	t.Helper()
	return OpenLiteStore(t, filepath.Join(t.TempDir(), "beacon.db"))
}

// OpenLiteStore opens (creating if needed) and migrates the SQLite database
// at path. Used when another component opens the same file.
func OpenLiteStore(t *testing.T, path string) *LiteStore {
	t.Helper()
	ctx := context.Background()
	sqlDB, err := sql.Open("sqlite", sqlite.DSN(path))
	require.NoError(t, err)
	store := sqlite.NewFromDB(sqlDB, nil)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.RunMigrations(ctx, migrations.SQLite()))
	return &LiteStore{Store: store, DB: sqlDB}
}

// SeedCampaign inserts a campaign governance row.
func (l *LiteStore) SeedCampaign(t *testing.T, id, status string) {
	t.Helper()
	_, err := l.DB.Exec(`INSERT INTO campaigns (id, status) VALUES (?, ?)`, id, status)
	require.NoError(t, err)
}

// SeedRunRecord inserts a row into the run projection.
func (l *LiteStore) SeedRunRecord(t *testing.T, id, campaignID, status, phase string, createdAt time.Time) {
	t.Helper()
	_, err := l.DB.Exec(
		`INSERT INTO campaign_runs (id, campaign_id, status, created_at, phase) VALUES (?, ?, ?, ?, ?)`,
		id, campaignID, status, createdAt.UTC().UnixMilli(), phase)
	require.NoError(t, err)
}

// AppendRunEvent appends an execution event correlated to campaignID.
func (l *LiteStore) AppendRunEvent(t *testing.T, campaignID, runID string, typ model.EventType, extra map[string]any) model.Event {
	t.Helper()
	payload := map[string]any{model.PayloadCampaignID: campaignID}
	for k, v := range extra {
		payload[k] = v
	}
	evt, err := l.Store.AppendEvent(context.Background(), model.NewEvent{
		EventType:  typ,
		EntityType: model.EntityTypeCampaignRun,
		EntityID:   runID,
		Payload:    payload,
	})
	require.NoError(t, err)
	return evt
}
