// Package events provides a small in-process publish/subscribe bus
// used to decouple the scheduler-driven pipeline stages from anything
// that wants to observe them (HTTP handlers, metrics, chat pushes).
package events

import "time"

// EventType identifies the kind of pipeline event being published.
type EventType string

const (
	IngestionStarted    EventType = "INGESTION_STARTED"
	IngestionCompleted  EventType = "INGESTION_COMPLETED"
	IngestionPartial    EventType = "INGESTION_PARTIAL"
	MacroRegimeChanged  EventType = "MACRO_REGIME_CHANGED"
	ProposalGenerated   EventType = "PROPOSAL_GENERATED"
	ProposalStatusChanged EventType = "PROPOSAL_STATUS_CHANGED"
	PositionOpened      EventType = "POSITION_OPENED"
	PositionClosed      EventType = "POSITION_CLOSED"
	StopAdjusted        EventType = "STOP_ADJUSTED"
	RiskRejected        EventType = "RISK_REJECTED"
	ErrorOccurred       EventType = "ERROR_OCCURRED"
)

// Event is one published occurrence. Data carries event-specific
// fields as a plain map so subscribers that only care about a subset
// of event types don't need a type-switch over every possible payload.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Module    string                 `json:"module"`
	Data      map[string]interface{} `json:"data"`
}
