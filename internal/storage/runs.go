package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/beacon/internal/model"
)

// LatestRunForCampaign returns the most recently created run record for the
// campaign. found=false with a nil error means the projection has no rows,
// which is distinct from a query error.
func (db *DB) LatestRunForCampaign(ctx context.Context, campaignID string) (model.RunRecord, bool, error) {
	pool, err := db.acquirePool(ctx)
	if err != nil {
		return model.RunRecord{}, false, err
	}

	rows, err := pool.Query(ctx,
		`SELECT id, campaign_id, status, created_at, started_at, completed_at, updated_at,
		        error_message, termination_reason, phase, stage
		 FROM campaign_runs
		 WHERE campaign_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`, campaignID,
	)
	if err != nil {
		return model.RunRecord{}, false, Classify("latest run for campaign", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return model.RunRecord{}, false, Classify("latest run for campaign", err)
		}
		return model.RunRecord{}, false, nil
	}
	rec, err := scanRunRecord(rows)
	if err != nil {
		return model.RunRecord{}, false, Classify("latest run for campaign", err)
	}
	return rec, true, nil
}

func scanRunRecord(row pgx.Row) (model.RunRecord, error) {
	var r model.RunRecord
	err := row.Scan(
		&r.ID, &r.CampaignID, &r.Status, &r.CreatedAt, &r.StartedAt, &r.CompletedAt, &r.UpdatedAt,
		&r.ErrorMessage, &r.TerminationReason, &r.Phase, &r.Stage,
	)
	return r, err
}
