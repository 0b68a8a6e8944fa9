package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ashita-ai/beacon/internal/model"
	"github.com/ashita-ai/beacon/internal/storage"
)

// GetCampaign reads the governance status of a campaign. Returns
// storage.ErrNotFound only when no campaign row exists.
func (s *Store) GetCampaign(ctx context.Context, id string) (model.Campaign, error) {
	var c model.Campaign
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, status FROM campaigns WHERE id = ?`, id,
	).Scan(&c.ID, &c.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Campaign{}, fmt.Errorf("storage: campaign %s: %w", id, storage.ErrNotFound)
		}
		return model.Campaign{}, classify("get campaign", err)
	}
	return c, nil
}
