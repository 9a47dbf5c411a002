package api

import "time"

// QueueItem is the wire representation of one pending artifact.
type QueueItem struct {
	ID        string    `json:"id"`
	Lat       *float64  `json:"lat,omitempty"`
	Lon       *float64  `json:"lon,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Totals mirrors the durable progress counters.
type Totals struct {
	Produced  int64 `json:"produced"`
	Delivered int64 `json:"delivered"`
}

// StatusResponse reports daemon runtime state.
type StatusResponse struct {
	Running      bool   `json:"running"`
	PID          int    `json:"pid"`
	Reachable    bool   `json:"reachable"`
	Draining     bool   `json:"draining"`
	QueueLength  int    `json:"queue_length"`
	Totals       Totals `json:"totals"`
	Endpoint     string `json:"endpoint"`
	QueueDBPath  string `json:"queue_db_path"`
	LockFilePath string `json:"lock_file_path"`
}

// QueueListResponse carries the pending queue in delivery order.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// EnqueueResponse acknowledges a durably accepted artifact.
type EnqueueResponse struct {
	ID     string `json:"id"`
	Queued int    `json:"queued"`
}

// DrainResponse acknowledges a manual drain trigger.
type DrainResponse struct {
	Started   bool `json:"started"`
	Reachable bool `json:"reachable"`
}

// ErrorResponse is the JSON error envelope for non-2xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}
