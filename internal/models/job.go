package models

import "time"

// JobStatus is the lifecycle state of a conversion job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// IsTerminal returns true once the job can no longer change state.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Pipeline stage labels.
const (
	StageQueued          = "queued"
	StageMetadata        = "metadata"
	StageFetchingPages   = "fetching-pages"
	StageBuildingInput   = "building-input"
	StageArchiveDownload = "archive-download"
	StageCoverPrep       = "cover-prep"
	StageConvert         = "cbz2xtc"
	StageCompleted       = "completed"
	StageFailed          = "failed"
)

// PageStatus tracks one page of a job.
type PageStatus struct {
	Label string `json:"label"`
	Done  bool   `json:"done"`
}

// ConversionJob is the pollable snapshot of one conversion.
type ConversionJob struct {
	JobID                      string       `json:"jobId"`
	ArchiveID                  string       `json:"archiveId"`
	Status                     JobStatus    `json:"status"`
	Stage                      string       `json:"stage"`
	Message                    string       `json:"message"`
	Progress                   float64      `json:"progress"`
	TotalPages                 int          `json:"totalPages"`
	CompletedPages             int          `json:"completedPages"`
	Pages                      []PageStatus `json:"pages"`
	CurrentPagePath            string       `json:"currentPagePath"`
	CurrentConvertedFrameLabel string       `json:"currentConvertedFrameLabel"`
	ConvertedFrameVersion      int          `json:"convertedFrameVersion"`
	FrameUpdatedAt             time.Time    `json:"frameUpdatedAt"`
	Error                      string       `json:"error,omitempty"`
	DownloadName               string       `json:"downloadName,omitempty"`
	FileSize                   int64        `json:"fileSize,omitempty"`
	CreatedAt                  time.Time    `json:"createdAt"`
	UpdatedAt                  time.Time    `json:"updatedAt"`
}

// Clone returns a deep copy that can be handed to callers without sharing
// the pages slice.
func (j ConversionJob) Clone() ConversionJob {
	c := j
	if j.Pages != nil {
		c.Pages = make([]PageStatus, len(j.Pages))
		copy(c.Pages, j.Pages)
	}
	return c
}
