package runs

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/beacon/internal/model"
	"github.com/ashita-ai/beacon/internal/storage"
)

// fakeStore is an in-memory event log, run projection and campaign table.
type fakeStore struct {
	campaigns map[string]model.Campaign
	records   map[string]model.RunRecord
	events    []model.Event

	campaignErr error
	recordErr   error
	eventErr    error
	listErr     error

	runIDCalls [][]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		campaigns: map[string]model.Campaign{},
		records:   map[string]model.RunRecord{},
	}
}

func (f *fakeStore) GetCampaign(_ context.Context, id string) (model.Campaign, error) {
	if f.campaignErr != nil {
		return model.Campaign{}, f.campaignErr
	}
	c, ok := f.campaigns[id]
	if !ok {
		return model.Campaign{}, storage.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) LatestRunForCampaign(_ context.Context, campaignID string) (model.RunRecord, bool, error) {
	if f.recordErr != nil {
		return model.RunRecord{}, false, f.recordErr
	}
	rec, ok := f.records[campaignID]
	return rec, ok, nil
}

func (f *fakeStore) add(campaignID, runID string, typ model.EventType, at time.Time, payload map[string]any) {
	p := map[string]any{model.PayloadCampaignID: campaignID}
	for k, v := range payload {
		p[k] = v
	}
	f.events = append(f.events, model.Event{
		Seq:        int64(len(f.events) + 1),
		ID:         uuid.New(),
		EventType:  typ,
		EntityType: model.EntityTypeCampaignRun,
		EntityID:   runID,
		Payload:    p,
		CreatedAt:  at,
	})
}

// newestFirst filters and orders events the way the stores do.
func (f *fakeStore) newestFirst(campaignID string, keep func(model.Event) bool) []model.Event {
	var out []model.Event
	for _, e := range f.events {
		if e.PayloadString(model.PayloadCampaignID) == campaignID && keep(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Seq > out[j].Seq
	})
	return out
}

func typeIn(types []model.EventType) func(model.Event) bool {
	return func(e model.Event) bool {
		for _, t := range types {
			if e.EventType == t {
				return true
			}
		}
		return false
	}
}

func (f *fakeStore) LatestEventByTypes(_ context.Context, campaignID string, types []model.EventType) (model.Event, bool, error) {
	if f.eventErr != nil {
		return model.Event{}, false, f.eventErr
	}
	events := f.newestFirst(campaignID, typeIn(types))
	if len(events) == 0 {
		return model.Event{}, false, nil
	}
	return events[0], true, nil
}

func (f *fakeStore) ListEventsByType(_ context.Context, campaignID string, eventType model.EventType, limit int) ([]model.Event, error) {
	if f.eventErr != nil {
		return nil, f.eventErr
	}
	events := f.newestFirst(campaignID, typeIn(model.EventTypeAliases(eventType)))
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (f *fakeStore) ListEventsByRunIDs(_ context.Context, campaignID string, runIDs []string, types []model.EventType) ([]model.Event, error) {
	f.runIDCalls = append(f.runIDCalls, runIDs)
	if f.listErr != nil {
		return nil, f.listErr
	}
	ids := make(map[string]bool, len(runIDs))
	for _, id := range runIDs {
		ids[id] = true
	}
	match := typeIn(types)
	return f.newestFirst(campaignID, func(e model.Event) bool {
		return ids[e.EntityID] && match(e)
	}), nil
}

func newTestService(f *fakeStore) *Service {
	return New(f, f, f, slog.New(slog.DiscardHandler))
}

func strPtr(s string) *string { return &s }
