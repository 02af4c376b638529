package models

import "time"

// StreamStatus enumerates the lifecycle states of a broadcast.
type StreamStatus string

const (
	StreamScheduled StreamStatus = "SCHEDULED"
	StreamLive      StreamStatus = "LIVE"
	StreamOffline   StreamStatus = "OFFLINE"
)

// Valid reports whether the status is a known lifecycle state.
func (s StreamStatus) Valid() bool {
	switch s {
	case StreamScheduled, StreamLive, StreamOffline:
		return true
	}
	return false
}

type CreatorStatus string

const (
	CreatorActive    CreatorStatus = "ACTIVE"
	CreatorSuspended CreatorStatus = "SUSPENDED"
)

// Stream is the central broadcast entity. RecordingPath is a storage-relative
// directory key; it stays empty until reconciliation observes a manifest under
// that key in object storage and is never populated from a guess.
type Stream struct {
	ID              string       `json:"id"`
	CreatorID       string       `json:"creatorId"`
	Title           string       `json:"title"`
	Description     string       `json:"description,omitempty"`
	CategoryID      string       `json:"categoryId,omitempty"`
	StreamKey       string       `json:"-"`
	Status          StreamStatus `json:"status"`
	IsPublic        bool         `json:"isPublic"`
	IsMature        bool         `json:"isMature"`
	RecordingPath   string       `json:"recordingPath,omitempty"`
	PlaybackURL     string       `json:"playbackUrl,omitempty"`
	DurationSeconds int          `json:"durationSeconds"`
	StartedAt       time.Time    `json:"startedAt"`
	EndedAt         *time.Time   `json:"endedAt,omitempty"`
	ScheduledAt     *time.Time   `json:"scheduledAt,omitempty"`
	CurrentViewers  int          `json:"currentViewers"`
	PeakViewers     int          `json:"peakViewers"`
	TotalViews      int          `json:"totalViews"`
	TotalLikes      int          `json:"totalLikes"`
	Deleted         bool         `json:"deleted,omitempty"`
	DeletedAt       *time.Time   `json:"deletedAt,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// Recorded reports whether the stream has a reconciled recording.
func (s Stream) Recorded() bool {
	return s.Status == StreamOffline && s.RecordingPath != ""
}

type Creator struct {
	ID           string        `json:"id"`
	DisplayName  string        `json:"displayName"`
	ChannelName  string        `json:"channelName"`
	Status       CreatorStatus `json:"status"`
	TotalStreams int           `json:"totalStreams"`
	CreatedAt    time.Time     `json:"createdAt"`
}

type StreamCategory struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"createdAt"`
}
