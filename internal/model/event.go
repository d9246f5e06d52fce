package model

import (
	"fmt"
	"time"
)

// EventType identifies what happened.
type EventType string

const (
	EventOpportunityDiscovered EventType = "opportunity.discovered"
	EventScanStarted           EventType = "scan.started"
	EventScanCompleted         EventType = "scan.completed"
)

// Event is published to real-time subscribers. Opportunity is set for
// discovery events; JobID and Status for scan events.
type Event struct {
	Type        EventType    `json:"type"`
	Opportunity *Opportunity `json:"opportunity,omitempty"`
	JobID       string       `json:"job_id,omitempty"`
	Status      JobStatus    `json:"status,omitempty"`
	Found       int          `json:"found,omitempty"`
	At          time.Time    `json:"at"`
}

// WireMessage is the JSON frame sent to dashboard clients.
type WireMessage struct {
	Type   string       `json:"type"`
	Data   *Opportunity `json:"data,omitempty"`
	JobID  string       `json:"job_id,omitempty"`
	Status JobStatus    `json:"status,omitempty"`
	Found  int          `json:"found,omitempty"`
	At     time.Time    `json:"timestamp"`
}

// Wire names understood by the dashboard client.
const (
	WireNewOpportunity = "new_opportunity"
	WireScanStarted    = "scan_started"
	WireScanCompleted  = "scan_completed"
)

// DiscoveredEvent builds the event for a newly recorded opportunity.
func DiscoveredEvent(o Opportunity, at time.Time) Event {
	return Event{Type: EventOpportunityDiscovered, Opportunity: &o, At: at.UTC()}
}

// ScanEvent builds a scan.started or scan.completed event for job.
func ScanEvent(t EventType, job ScanJob, at time.Time) Event {
	return Event{Type: t, JobID: job.ID, Status: job.Status, Found: job.Found, At: at.UTC()}
}

// Wire converts e to the client frame.
func (e Event) Wire() (WireMessage, error) {
	msg := WireMessage{JobID: e.JobID, Status: e.Status, Found: e.Found, At: e.At}
	switch e.Type {
	case EventOpportunityDiscovered:
		if e.Opportunity == nil {
			return WireMessage{}, fmt.Errorf("%w: discovery event without opportunity", ErrInvalidArgument)
		}
		msg.Type = WireNewOpportunity
		msg.Data = e.Opportunity
	case EventScanStarted:
		msg.Type = WireScanStarted
	case EventScanCompleted:
		msg.Type = WireScanCompleted
	default:
		return WireMessage{}, fmt.Errorf("%w: unknown event type %q", ErrInvalidArgument, e.Type)
	}
	return msg, nil
}
