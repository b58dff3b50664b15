package models

import "encoding/json"

// ActivityStatus is the server-reported state of a submitted activity.
type ActivityStatus string

const (
	ActivityPending         ActivityStatus = "PENDING"
	ActivityCompleted       ActivityStatus = "COMPLETED"
	ActivityFailed          ActivityStatus = "FAILED"
	ActivityConsensusNeeded ActivityStatus = "CONSENSUS_NEEDED"
	ActivityRejected        ActivityStatus = "REJECTED"
)

// Terminal reports whether the status ends the submit/poll cycle.
func (s ActivityStatus) Terminal() bool {
	switch s {
	case ActivityCompleted, ActivityFailed, ActivityConsensusNeeded, ActivityRejected:
		return true
	}
	return false
}

// ActivityRequest is the outer envelope for every state-changing call.
// Parameters carries the method body minus organizationId and timestampMs,
// which are lifted into the envelope itself.
type ActivityRequest struct {
	Type           string          `json:"type"`
	OrganizationID string          `json:"organizationId"`
	TimestampMs    string          `json:"timestampMs"`
	Parameters     json.RawMessage `json:"parameters"`
}

type Activity struct {
	ID     string          `json:"id"`
	Status ActivityStatus  `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
}

type ActivityResponse struct {
	Activity Activity `json:"activity"`
}
