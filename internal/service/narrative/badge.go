package narrative

import "github.com/ashita-ai/beacon/internal/model"

// Tone is a badge color family.
type Tone string

const (
	ToneNeutral Tone = "neutral"
	ToneInfo    Tone = "info"
	ToneSuccess Tone = "success"
	ToneWarning Tone = "warning"
	ToneDanger  Tone = "danger"
)

// Badge is the short status label shown next to a campaign.
type Badge struct {
	Label string `json:"label"`
	Tone  Tone   `json:"tone"`
}

var badges = map[model.CampaignState]Badge{
	model.CampaignStateNotFound:         {Label: "Not found", Tone: ToneNeutral},
	model.CampaignStateDraft:            {Label: "Draft", Tone: ToneNeutral},
	model.CampaignStateAwaitingApproval: {Label: "Awaiting approval", Tone: ToneWarning},
	model.CampaignStateRejected:         {Label: "Rejected", Tone: ToneDanger},
	model.CampaignStateArchived:         {Label: "Archived", Tone: ToneNeutral},
	model.CampaignStateReady:            {Label: "Ready", Tone: ToneInfo},
	model.CampaignStateQueued:           {Label: "Queued", Tone: ToneInfo},
	model.CampaignStateRunning:          {Label: "Running", Tone: ToneInfo},
	model.CampaignStateCompleted:        {Label: "Completed", Tone: ToneSuccess},
	model.CampaignStateFailed:           {Label: "Failed", Tone: ToneDanger},
	model.CampaignStatePartial:          {Label: "Partial", Tone: ToneWarning},
}

// DeriveBadge returns the badge for a campaign state, or "Unknown" for
// anything outside the vocabulary.
func DeriveBadge(state model.CampaignState) Badge {
	if b, ok := badges[state]; ok {
		return b
	}
	return Badge{Label: "Unknown", Tone: ToneNeutral}
}
