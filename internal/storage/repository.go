package storage

import (
	"context"
	"time"

	"fernando-live/internal/models"
)

// StartStreamParams captures the attributes a creator supplies when going
// live. The stream key and identifiers are generated by the store.
type StartStreamParams struct {
	CreatorID   string
	Title       string
	Description string
	CategoryID  string
	IsPublic    bool
	IsMature    bool
	ScheduledAt *time.Time
}

// StopStreamParams identifies the broadcast to end and who is asking.
// AsAdmin bypasses the ownership check.
type StopStreamParams struct {
	StreamID    string
	RequesterID string
	AsAdmin     bool
}

// StreamUpdate carries optional metadata changes; nil fields are left alone.
type StreamUpdate struct {
	Title       *string
	Description *string
	CategoryID  *string
	IsPublic    *bool
	IsMature    *bool
	ScheduledAt *time.Time
}

// ListStreamsOptions filters and pages the public stream directories.
type ListStreamsOptions struct {
	Query      string
	CategoryID string
	Limit      int
	Offset     int
}

// CreateCreatorParams captures the attributes that can be set when
// registering a creator.
type CreateCreatorParams struct {
	DisplayName string
	ChannelName string
}

// Repository exposes the datastore operations required by API handlers and
// recording reconciliation.
type Repository interface {
	Ping(ctx context.Context) error

	CreateCreator(params CreateCreatorParams) (models.Creator, error)
	GetCreator(id string) (models.Creator, bool)
	ListCreators() []models.Creator
	SetCreatorStatus(id string, status models.CreatorStatus) (models.Creator, error)

	StartStream(params StartStreamParams) (models.Stream, error)
	StopStream(params StopStreamParams) (models.Stream, error)
	GetStream(id string) (models.Stream, bool)
	UpdateStream(id, requesterID string, asAdmin bool, update StreamUpdate) (models.Stream, error)
	SoftDeleteStream(id string) error
	ListLiveStreams(opts ListStreamsOptions) ([]models.Stream, int)
	ListCreatorStreams(creatorID string) []models.Stream
	ListRecordedStreams(opts ListStreamsOptions) ([]models.Stream, int)
	AdjustViewers(streamID string, delta int) (models.Stream, error)

	ListUnmatchedOffline(ctx context.Context) ([]models.Stream, error)
	SetStreamRecording(ctx context.Context, streamID, recordingPath, playbackURL string) (models.Stream, error)

	CreateCategory(name string) (models.StreamCategory, error)
	GetCategory(id string) (models.StreamCategory, bool)
	ListCategories() []models.StreamCategory
}

var _ Repository = (*Storage)(nil)

// NewJSONRepository opens the JSON-backed datastore and returns it as a
// Repository.
func NewJSONRepository(path string, opts ...Option) (Repository, error) {
	return NewStorage(path, opts...)
}
