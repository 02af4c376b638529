package storage

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"fernando-live/internal/models"
)

// searchFolder performs Unicode case folding so directory search treats
// "GRÜN" and "grün" alike.
var searchFolder = cases.Fold()

func foldEqual(a, b string) bool {
	return searchFolder.String(a) == searchFolder.String(b)
}

func foldContains(haystack, needle string) bool {
	return strings.Contains(searchFolder.String(haystack), searchFolder.String(needle))
}

// StartStream transitions a creator to live, creating the stream record. A
// creator can only run one live broadcast at a time.
func (s *Storage) StartStream(params StartStreamParams) (models.Stream, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return models.Stream{}, ErrTitleRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	creator, ok := s.data.Creators[params.CreatorID]
	if !ok {
		return models.Stream{}, ErrCreatorNotFound
	}
	if creator.Status != models.CreatorActive {
		return models.Stream{}, ErrCreatorInactive
	}
	for _, existing := range s.data.Streams {
		if existing.CreatorID == params.CreatorID && existing.Status == models.StreamLive && !existing.Deleted {
			return models.Stream{}, ErrAlreadyLive
		}
	}
	if params.CategoryID != "" {
		if _, ok := s.data.Categories[params.CategoryID]; !ok {
			return models.Stream{}, ErrCategoryNotFound
		}
	}

	key, err := generateStreamKey()
	if err != nil {
		return models.Stream{}, err
	}

	now := s.clock()
	stream := models.Stream{
		ID:          newID(),
		CreatorID:   params.CreatorID,
		Title:       title,
		Description: strings.TrimSpace(params.Description),
		CategoryID:  params.CategoryID,
		StreamKey:   key,
		Status:      models.StreamLive,
		IsPublic:    params.IsPublic,
		IsMature:    params.IsMature,
		StartedAt:   now,
		ScheduledAt: params.ScheduledAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	previousCreator := creator
	creator.TotalStreams++
	s.data.Creators[creator.ID] = creator
	s.data.Streams[stream.ID] = stream
	if err := s.persist(); err != nil {
		delete(s.data.Streams, stream.ID)
		s.data.Creators[creator.ID] = previousCreator
		return models.Stream{}, err
	}
	return stream, nil
}

// StopStream ends a live broadcast. Only the owning creator (or an admin)
// may end it; the duration is derived from the recorded start time.
func (s *Storage) StopStream(params StopStreamParams) (models.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.data.Streams[params.StreamID]
	if !ok || stream.Deleted {
		return models.Stream{}, ErrStreamNotFound
	}
	if !params.AsAdmin && stream.CreatorID != params.RequesterID {
		return models.Stream{}, ErrNotOwner
	}
	if stream.Status != models.StreamLive {
		return models.Stream{}, ErrNotLive
	}

	previous := stream
	now := s.clock()
	ended := now
	stream.Status = models.StreamOffline
	stream.EndedAt = &ended
	stream.DurationSeconds = int(now.Sub(stream.StartedAt).Seconds())
	if stream.DurationSeconds < 0 {
		stream.DurationSeconds = 0
	}
	stream.CurrentViewers = 0
	stream.UpdatedAt = now

	s.data.Streams[stream.ID] = stream
	if err := s.persist(); err != nil {
		s.data.Streams[stream.ID] = previous
		return models.Stream{}, err
	}
	return stream, nil
}

func (s *Storage) GetStream(id string) (models.Stream, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stream, ok := s.data.Streams[id]
	if !ok || stream.Deleted {
		return models.Stream{}, false
	}
	return stream, true
}

// UpdateStream patches broadcast metadata. Ownership rules match StopStream.
func (s *Storage) UpdateStream(id, requesterID string, asAdmin bool, update StreamUpdate) (models.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.data.Streams[id]
	if !ok || stream.Deleted {
		return models.Stream{}, ErrStreamNotFound
	}
	if !asAdmin && stream.CreatorID != requesterID {
		return models.Stream{}, ErrNotOwner
	}

	previous := stream
	if update.Title != nil {
		trimmed := strings.TrimSpace(*update.Title)
		if trimmed == "" {
			return models.Stream{}, ErrTitleRequired
		}
		stream.Title = trimmed
	}
	if update.Description != nil {
		stream.Description = strings.TrimSpace(*update.Description)
	}
	if update.CategoryID != nil {
		if *update.CategoryID != "" {
			if _, ok := s.data.Categories[*update.CategoryID]; !ok {
				return models.Stream{}, ErrCategoryNotFound
			}
		}
		stream.CategoryID = *update.CategoryID
	}
	if update.IsPublic != nil {
		stream.IsPublic = *update.IsPublic
	}
	if update.IsMature != nil {
		stream.IsMature = *update.IsMature
	}
	if update.ScheduledAt != nil {
		scheduled := update.ScheduledAt.UTC()
		stream.ScheduledAt = &scheduled
	}
	stream.UpdatedAt = s.clock()

	s.data.Streams[id] = stream
	if err := s.persist(); err != nil {
		s.data.Streams[id] = previous
		return models.Stream{}, err
	}
	return stream, nil
}

// SoftDeleteStream hides a stream from every listing and lookup without
// discarding the underlying record.
func (s *Storage) SoftDeleteStream(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.data.Streams[id]
	if !ok || stream.Deleted {
		return ErrStreamNotFound
	}

	previous := stream
	now := s.clock()
	stream.Deleted = true
	stream.DeletedAt = &now
	stream.UpdatedAt = now
	s.data.Streams[id] = stream
	if err := s.persist(); err != nil {
		s.data.Streams[id] = previous
		return err
	}
	return nil
}

// ListLiveStreams returns the public live directory, newest first, plus the
// total count before paging. The query folds case across title, description,
// and the creator's channel name.
func (s *Storage) ListLiveStreams(opts ListStreamsOptions) ([]models.Stream, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterStreamsLocked(opts, func(stream models.Stream) bool {
		return stream.Status == models.StreamLive && stream.IsPublic
	})
}

// ListRecordedStreams returns finished public broadcasts that have a
// reconciled recording, newest first.
func (s *Storage) ListRecordedStreams(opts ListStreamsOptions) ([]models.Stream, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterStreamsLocked(opts, func(stream models.Stream) bool {
		return stream.Recorded() && stream.IsPublic
	})
}

func (s *Storage) filterStreamsLocked(opts ListStreamsOptions, keep func(models.Stream) bool) ([]models.Stream, int) {
	query := strings.TrimSpace(opts.Query)
	var matched []models.Stream
	for _, stream := range s.data.Streams {
		if stream.Deleted || !keep(stream) {
			continue
		}
		if opts.CategoryID != "" && stream.CategoryID != opts.CategoryID {
			continue
		}
		if query != "" && !s.streamMatchesQueryLocked(stream, query) {
			continue
		}
		matched = append(matched, stream)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].StartedAt.Equal(matched[j].StartedAt) {
			return matched[i].StartedAt.After(matched[j].StartedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return nil, total
	}
	matched = matched[offset:]
	if opts.Limit > 0 && opts.Limit < len(matched) {
		matched = matched[:opts.Limit]
	}
	return matched, total
}

func (s *Storage) streamMatchesQueryLocked(stream models.Stream, query string) bool {
	if foldContains(stream.Title, query) || foldContains(stream.Description, query) {
		return true
	}
	if creator, ok := s.data.Creators[stream.CreatorID]; ok {
		return foldContains(creator.ChannelName, query) || foldContains(creator.DisplayName, query)
	}
	return false
}

// ListCreatorStreams returns every non-deleted stream owned by the creator,
// newest first, including private and unrecorded ones.
func (s *Storage) ListCreatorStreams(creatorID string) []models.Stream {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var streams []models.Stream
	for _, stream := range s.data.Streams {
		if stream.Deleted || stream.CreatorID != creatorID {
			continue
		}
		streams = append(streams, stream)
	}
	sort.Slice(streams, func(i, j int) bool {
		if !streams[i].StartedAt.Equal(streams[j].StartedAt) {
			return streams[i].StartedAt.After(streams[j].StartedAt)
		}
		return streams[i].ID < streams[j].ID
	})
	return streams
}

// AdjustViewers moves the live viewer gauge by delta, tracking the peak and
// counting joins toward total views. The gauge never goes negative.
func (s *Storage) AdjustViewers(streamID string, delta int) (models.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.data.Streams[streamID]
	if !ok || stream.Deleted {
		return models.Stream{}, ErrStreamNotFound
	}
	if stream.Status != models.StreamLive {
		return models.Stream{}, ErrNotLive
	}

	previous := stream
	stream.CurrentViewers += delta
	if stream.CurrentViewers < 0 {
		stream.CurrentViewers = 0
	}
	if stream.CurrentViewers > stream.PeakViewers {
		stream.PeakViewers = stream.CurrentViewers
	}
	if delta > 0 {
		stream.TotalViews += delta
	}
	stream.UpdatedAt = s.clock()

	s.data.Streams[streamID] = stream
	if err := s.persist(); err != nil {
		s.data.Streams[streamID] = previous
		return models.Stream{}, err
	}
	return stream, nil
}

// ListUnmatchedOffline returns finished broadcasts that still have no
// recording associated, the reconciler's work queue.
func (s *Storage) ListUnmatchedOffline(ctx context.Context) ([]models.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var streams []models.Stream
	for _, stream := range s.data.Streams {
		if stream.Deleted || stream.Status != models.StreamOffline || stream.RecordingPath != "" {
			continue
		}
		streams = append(streams, stream)
	}
	sort.Slice(streams, func(i, j int) bool { return streams[i].ID < streams[j].ID })
	return streams, nil
}

// SetStreamRecording persists a recording association. Re-asserting the same
// path is a no-op; replacing an existing association with a different path is
// rejected so a sweep can never silently rebind a recording.
func (s *Storage) SetStreamRecording(ctx context.Context, streamID, recordingPath, playbackURL string) (models.Stream, error) {
	if err := ctx.Err(); err != nil {
		return models.Stream{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.data.Streams[streamID]
	if !ok || stream.Deleted {
		return models.Stream{}, ErrStreamNotFound
	}
	if stream.RecordingPath == recordingPath && stream.PlaybackURL == playbackURL {
		return stream, nil
	}
	if stream.RecordingPath != "" && stream.RecordingPath != recordingPath {
		return stream, nil
	}

	previous := stream
	stream.RecordingPath = recordingPath
	stream.PlaybackURL = playbackURL
	stream.UpdatedAt = s.clock()
	s.data.Streams[streamID] = stream
	if err := s.persist(); err != nil {
		s.data.Streams[streamID] = previous
		return models.Stream{}, err
	}
	return stream, nil
}
