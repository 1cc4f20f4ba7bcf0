package models

// ProgressUpdate is the envelope pushed to websocket clients.
type ProgressUpdate struct {
	Type  string         `json:"type"` // "job" or "batch"
	Job   *ConversionJob `json:"job,omitempty"`
	Batch *BatchStatus   `json:"batch,omitempty"`
}
