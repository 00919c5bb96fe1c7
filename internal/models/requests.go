package models

import "time"

// VectorRequest asks for a single feature vector at a query instant.
type VectorRequest struct {
	At time.Time
}

// VectorResult is a feature vector together with the last known glucose.
type VectorResult struct {
	RunID       string    `json:"runId"`
	At          time.Time `json:"at"`
	LastGlucose float64   `json:"lastGlucose"`
	Columns     []string  `json:"columns"`
	Values      []float64 `json:"values"`
	Anomalies   int       `json:"anomalies"`
}

// MatrixRequest asks for a training matrix starting at Start.
type MatrixRequest struct {
	Start time.Time
}
