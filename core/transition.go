package core

import (
	"encoding/json"
	"fmt"
)

// Transition is a single agent/environment interaction step.
// Partial transitions are valid: every content field may be empty.
//
// TransitionID and TaskID are bookkeeping. They are kept in stored metadata
// but never rendered into the stored body.
type Transition struct {
	Task     string `json:"task,omitempty"`
	Critique string `json:"critique,omitempty"`
	RawMsg   string `json:"raw_msg,omitempty"`
	Obs      string `json:"obs,omitempty"`
	Reward   *bool  `json:"reward,omitempty"`

	TransitionID int    `json:"transition_id"`
	TaskID       string `json:"task_id"`
}

// Succeeded reports whether the transition carries a positive reward.
func (t Transition) Succeeded() bool {
	return t.Reward != nil && *t.Reward
}

// Metadata flattens the transition into a metadata mapping.
// The result has gone through a JSON round trip, so numbers are float64
// exactly as they are after reloading persisted state.
func (t Transition) Metadata() (map[string]any, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal transition: %w", err)
	}
	meta := make(map[string]any)
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal transition: %w", err)
	}
	return meta, nil
}

// Bool returns a pointer to b, for filling optional fields like Reward.
func Bool(b bool) *bool {
	return &b
}
