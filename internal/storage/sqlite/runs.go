package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ashita-ai/beacon/internal/model"
)

// LatestRunForCampaign returns the most recently created run record for the
// campaign. found=false with a nil error means the projection has no rows.
func (s *Store) LatestRunForCampaign(ctx context.Context, campaignID string) (model.RunRecord, bool, error) {
	var (
		r                                    model.RunRecord
		createdAt                            int64
		startedAt, completedAt, updatedAt    sql.NullInt64
		errorMessage, termination, phase, st sql.NullString
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, campaign_id, status, created_at, started_at, completed_at, updated_at,
		        error_message, termination_reason, phase, stage
		 FROM campaign_runs
		 WHERE campaign_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`, campaignID,
	).Scan(&r.ID, &r.CampaignID, &r.Status, &createdAt, &startedAt, &completedAt, &updatedAt,
		&errorMessage, &termination, &phase, &st)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, classify("latest run for campaign", err)
	}
	r.CreatedAt = fromMillis(createdAt)
	r.StartedAt = nullMillis(startedAt)
	r.CompletedAt = nullMillis(completedAt)
	r.UpdatedAt = nullMillis(updatedAt)
	r.ErrorMessage = nullString(errorMessage)
	r.TerminationReason = nullString(termination)
	r.Phase = nullString(phase)
	r.Stage = nullString(st)
	return r, true, nil
}

func nullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
