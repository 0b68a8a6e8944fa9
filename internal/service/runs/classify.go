package runs

import (
	"strings"

	"github.com/ashita-ai/beacon/internal/model"
)

// ClassifyCampaign combines governance status with the latest run into one
// campaign state. Governance wins until the campaign is approved; after that
// the run decides, and an approved campaign without runs is ready.
func ClassifyCampaign(latest LatestRun) model.CampaignState {
	if latest.Kind == KindCampaignNotFound {
		return model.CampaignStateNotFound
	}
	switch strings.ToLower(strings.TrimSpace(latest.Campaign.Status)) {
	case model.CampaignStatusDraft:
		return model.CampaignStateDraft
	case model.CampaignStatusPendingApproval, model.CampaignStatusSubmitted:
		return model.CampaignStateAwaitingApproval
	case model.CampaignStatusRejected:
		return model.CampaignStateRejected
	case model.CampaignStatusArchived:
		return model.CampaignStateArchived
	case model.CampaignStatusApproved:
		if latest.Kind == KindFound {
			return model.CampaignStateForRun(latest.State())
		}
		if latest.Degraded {
			return model.CampaignStateUnknown
		}
		return model.CampaignStateReady
	default:
		if latest.Kind == KindFound {
			return model.CampaignStateForRun(latest.State())
		}
		return model.CampaignStateUnknown
	}
}
