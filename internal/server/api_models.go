package server

import "time"

// ScanRequest optionally narrows a scan to one category.
type ScanRequest struct {
	Category string `json:"category" example:"Electronics"`
}

// ScanQueuedResponse acknowledges a queued scan job.
type ScanQueuedResponse struct {
	Status  string `json:"status" example:"queued"`
	JobID   string `json:"job_id" example:"01HQ3K5Z8Y0B6V9T2W4X7R1M3N"`
	Message string `json:"message" example:"Scan queued for Electronics"`
}

// ApproveRequest names the opportunity an operator approved.
type ApproveRequest struct {
	OpportunityID string `json:"opportunity_id" example:"3f1c2b6e-8a4d-4c1e-9b7a-2d5e6f708192"`
}

// ApproveResponse confirms a recorded purchase approval.
type ApproveResponse struct {
	Status        string    `json:"status" example:"approved"`
	OpportunityID string    `json:"opportunity_id" example:"3f1c2b6e-8a4d-4c1e-9b7a-2d5e6f708192"`
	Message       string    `json:"message" example:"Purchase approved"`
	Timestamp     time.Time `json:"timestamp"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status    string    `json:"status" example:"healthy"`
	Service   string    `json:"service" example:"flipradar"`
	Version   string    `json:"version" example:"1.0.0"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error" example:"not found"`
}
