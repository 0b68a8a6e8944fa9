// Package funnel projects observed stage counts onto the canonical stage list.
// Nothing is inferred: a stage is completed only on an explicit positive count
// and running only on an exact phase match.
package funnel

import (
	"sort"

	"github.com/ashita-ai/beacon/internal/model"
	"github.com/ashita-ai/beacon/internal/stages"
)

// StageState is the tracker state of one stage.
type StageState string

const (
	StateCompleted   StageState = "completed"
	StateRunning     StageState = "running"
	StateWaiting     StageState = "waiting"
	StateNotObserved StageState = "not_observed"
)

// Confidence qualifies an observed count.
type Confidence string

const (
	ConfidenceObserved    Confidence = "observed"
	ConfidenceConditional Confidence = "conditional"
)

// AdditionalStageLabel labels funnel ids the stage configuration does not know.
const AdditionalStageLabel = "Additional stage"

// Count is one observed funnel count.
type Count struct {
	Value      int64
	Confidence Confidence
}

// Counts maps funnel stage ids to observed counts.
type Counts map[string]Count

// StageView is one projected stage.
type StageView struct {
	stages.Stage
	State      StageState
	Count      *Count
	Additional bool
}

// Project maps the run state, current phase and observed counts onto the
// configured stages, appending unknown funnel ids (sorted) as additional stages.
func Project(cfg stages.Config, run model.RunState, phase string, counts Counts) []StageView {
	idle := StateNotObserved
	if run.Active() {
		idle = StateWaiting
	}
	state := func(id string, c *Count) StageState {
		switch {
		case c != nil && c.Value > 0:
			return StateCompleted
		case phase != "" && phase == id:
			return StateRunning
		default:
			return idle
		}
	}

	views := make([]StageView, 0, len(cfg.Stages)+len(counts))
	known := make(map[string]bool, len(cfg.Stages))
	for _, s := range cfg.Stages {
		var c *Count
		if s.FunnelStageID != "" {
			known[s.FunnelStageID] = true
			if v, ok := counts[s.FunnelStageID]; ok {
				c = &v
			}
		}
		views = append(views, StageView{Stage: s, State: state(s.ID, c), Count: c})
	}

	var extra []string
	for id := range counts {
		if !known[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		c := counts[id]
		views = append(views, StageView{
			Stage:      stages.Stage{ID: id, Label: AdditionalStageLabel, FunnelStageID: id},
			State:      state(id, &c),
			Count:      &c,
			Additional: true,
		})
	}
	return views
}
