package domain

// DispatchMessage starts the fan-out for one job. Published once by the API
// service, consumed by the dispatcher. Delivery is at-least-once, so handling
// it twice must be harmless.
type DispatchMessage struct {
	JobID         string `json:"job_id"`
	SearchKeyword string `json:"search_keyword"`
	MaxItems      int    `json:"max_items"`
	City          string `json:"city,omitempty"`
}

// WorkItemMessage carries everything a worker needs to process one station,
// so workers never re-fetch the source item.
type WorkItemMessage struct {
	JobID         string   `json:"job_id"`
	StationID     string   `json:"station_id"`
	StationName   string   `json:"station_name"`
	Lat           float64  `json:"lat"`
	Lon           float64  `json:"lon"`
	Temperature   *float64 `json:"temperature,omitempty"`
	Region        string   `json:"region,omitempty"`
	SearchKeyword string   `json:"search_keyword"`
}

// Station is a candidate item from the measurement feed. Ephemeral; it exists
// only between the bulk fetch and selection.
type Station struct {
	ID          string
	Name        string
	Lat         float64
	Lon         float64
	Temperature *float64
	Region      string
}
