package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/beacon/internal/model"
)

// GetCampaign reads the governance status of a campaign. Returns ErrNotFound
// only when no campaign row exists.
func (db *DB) GetCampaign(ctx context.Context, id string) (model.Campaign, error) {
	pool, err := db.acquirePool(ctx)
	if err != nil {
		return model.Campaign{}, err
	}
	var c model.Campaign
	err = pool.QueryRow(ctx,
		`SELECT id, status FROM campaigns WHERE id = $1`, id,
	).Scan(&c.ID, &c.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Campaign{}, fmt.Errorf("storage: campaign %s: %w", id, ErrNotFound)
		}
		return model.Campaign{}, Classify("get campaign", err)
	}
	return c, nil
}
