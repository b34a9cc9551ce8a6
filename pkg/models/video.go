package models

import "time"

// VideoStatus represents the lifecycle status of a video.
type VideoStatus string

const (
	StatusUploaded   VideoStatus = "UPLOADED"
	StatusQueued     VideoStatus = "QUEUED"
	StatusProcessing VideoStatus = "PROCESSING"
	StatusCompleted  VideoStatus = "COMPLETED"
	StatusFailed     VideoStatus = "FAILED"
)

// statusRank orders statuses for forward-only transitions.
// FAILED is terminal and never transitioned out of.
var statusRank = map[VideoStatus]int{
	StatusUploaded:   0,
	StatusQueued:     1,
	StatusProcessing: 2,
	StatusCompleted:  3,
	StatusFailed:     4,
}

// IsValid returns true if the status is a known VideoStatus.
func (s VideoStatus) IsValid() bool {
	_, ok := statusRank[s]
	return ok
}

// StatusesBelow returns every status that ranks strictly below s.
// A row may only transition to s from one of these.
func StatusesBelow(s VideoStatus) []VideoStatus {
	rank, ok := statusRank[s]
	if !ok {
		return nil
	}
	var below []VideoStatus
	for _, candidate := range []VideoStatus{StatusUploaded, StatusQueued, StatusProcessing, StatusCompleted} {
		if statusRank[candidate] < rank {
			below = append(below, candidate)
		}
	}
	return below
}

// VideoRecord is a row in the video ledger.
type VideoRecord struct {
	ID        int64       `json:"id"`
	UserID    string      `json:"userId"`
	VideoID   string      `json:"videoId"`
	Status    VideoStatus `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`

	// ProcessedURLs maps quality labels (e.g. "720p") to processed-bucket
	// object keys. Derived on read from a storage listing, never stored.
	ProcessedURLs map[string]string `json:"processedUrls,omitempty"`
}
