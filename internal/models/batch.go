package models

import "time"

// BatchMode selects what happens to each converted archive.
type BatchMode string

const (
	BatchDownload BatchMode = "download"
	BatchUpload   BatchMode = "upload"
)

// BatchRequest describes a multi-archive conversion.
type BatchRequest struct {
	ArchiveIDs []string           `json:"archiveIds"`
	Settings   ConversionSettings `json:"settings"`
	Workers    int                `json:"workers"`
	Mode       BatchMode          `json:"mode"`
	TargetPath string             `json:"targetPath"`
}

// BatchFailure records why one archive of a batch did not make it.
type BatchFailure struct {
	ArchiveID string `json:"archiveId"`
	JobID     string `json:"jobId,omitempty"`
	Phase     string `json:"phase"` // "convert" or "upload"
	Error     string `json:"error"`
}

// BatchStatus is the pollable state of a batch.
type BatchStatus struct {
	BatchID    string            `json:"batchId"`
	Mode       BatchMode         `json:"mode"`
	Total      int               `json:"total"`
	Converted  int               `json:"converted"`
	Uploaded   int               `json:"uploaded"`
	Failed     int               `json:"failed"`
	Jobs       map[string]string `json:"jobs"` // archive id -> job id
	Failures   []BatchFailure    `json:"failures"`
	Done       bool              `json:"done"`
	CreatedAt  time.Time         `json:"createdAt"`
	FinishedAt time.Time         `json:"finishedAt,omitempty"`
}
