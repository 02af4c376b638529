package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"fernando-live/internal/models"
)

func newTestStorage(t *testing.T, opts ...Option) *Storage {
	t.Helper()
	store, err := NewStorage(filepath.Join(t.TempDir(), "store.json"), opts...)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	return store
}

func seedCreator(t *testing.T, store *Storage) models.Creator {
	t.Helper()
	creator, err := store.CreateCreator(CreateCreatorParams{DisplayName: "Ada", ChannelName: "ada-live"})
	if err != nil {
		t.Fatalf("CreateCreator: %v", err)
	}
	return creator
}

func goLive(t *testing.T, store *Storage, creatorID, title string) models.Stream {
	t.Helper()
	stream, err := store.StartStream(StartStreamParams{CreatorID: creatorID, Title: title, IsPublic: true})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	return stream
}

func TestStartStreamGoesLive(t *testing.T) {
	store := newTestStorage(t)
	creator := seedCreator(t, store)

	stream := goLive(t, store, creator.ID, "First broadcast")
	if stream.Status != models.StreamLive {
		t.Fatalf("status = %s, want LIVE", stream.Status)
	}
	if stream.StreamKey == "" {
		t.Fatal("expected a generated stream key")
	}
	if stream.StartedAt.IsZero() {
		t.Fatal("expected StartedAt to be set")
	}

	updated, ok := store.GetCreator(creator.ID)
	if !ok || updated.TotalStreams != 1 {
		t.Fatalf("TotalStreams = %d, want 1", updated.TotalStreams)
	}
}

func TestStartStreamRejectsSecondLiveBroadcast(t *testing.T) {
	store := newTestStorage(t)
	creator := seedCreator(t, store)
	goLive(t, store, creator.ID, "First broadcast")

	_, err := store.StartStream(StartStreamParams{CreatorID: creator.ID, Title: "Second broadcast"})
	if !errors.Is(err, ErrAlreadyLive) {
		t.Fatalf("err = %v, want ErrAlreadyLive", err)
	}
}

func TestStartStreamRejectsSuspendedCreator(t *testing.T) {
	store := newTestStorage(t)
	creator := seedCreator(t, store)
	if _, err := store.SetCreatorStatus(creator.ID, models.CreatorSuspended); err != nil {
		t.Fatalf("SetCreatorStatus: %v", err)
	}

	_, err := store.StartStream(StartStreamParams{CreatorID: creator.ID, Title: "Nope"})
	if !errors.Is(err, ErrCreatorInactive) {
		t.Fatalf("err = %v, want ErrCreatorInactive", err)
	}
}

func TestStartStreamRequiresTitle(t *testing.T) {
	store := newTestStorage(t)
	creator := seedCreator(t, store)

	if _, err := store.StartStream(StartStreamParams{CreatorID: creator.ID, Title: "   "}); !errors.Is(err, ErrTitleRequired) {
		t.Fatalf("err = %v, want ErrTitleRequired", err)
	}
}

func TestStopStreamComputesDuration(t *testing.T) {
	now := time.Date(2026, 1, 26, 14, 5, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := newTestStorage(t, WithClock(clock))
	creator := seedCreator(t, store)
	stream := goLive(t, store, creator.ID, "Timed broadcast")

	now = now.Add(95 * time.Minute)
	stopped, err := store.StopStream(StopStreamParams{StreamID: stream.ID, RequesterID: creator.ID})
	if err != nil {
		t.Fatalf("StopStream: %v", err)
	}
	if stopped.Status != models.StreamOffline {
		t.Fatalf("status = %s, want OFFLINE", stopped.Status)
	}
	if stopped.DurationSeconds != 95*60 {
		t.Fatalf("duration = %d, want %d", stopped.DurationSeconds, 95*60)
	}
	if stopped.EndedAt == nil || !stopped.EndedAt.Equal(now) {
		t.Fatalf("EndedAt = %v, want %v", stopped.EndedAt, now)
	}
}

func TestStopStreamOwnershipAndState(t *testing.T) {
	store := newTestStorage(t)
	creator := seedCreator(t, store)
	stream := goLive(t, store, creator.ID, "Broadcast")

	if _, err := store.StopStream(StopStreamParams{StreamID: stream.ID, RequesterID: "someone-else"}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
	if _, err := store.StopStream(StopStreamParams{StreamID: stream.ID, RequesterID: "someone-else", AsAdmin: true}); err != nil {
		t.Fatalf("admin stop: %v", err)
	}
	if _, err := store.StopStream(StopStreamParams{StreamID: stream.ID, RequesterID: creator.ID}); !errors.Is(err, ErrNotLive) {
		t.Fatalf("err = %v, want ErrNotLive", err)
	}
	if _, err := store.StopStream(StopStreamParams{StreamID: "missing", RequesterID: creator.ID}); !errors.Is(err, ErrStreamNotFound) {
		t.Fatalf("err = %v, want ErrStreamNotFound", err)
	}
}

func TestSoftDeleteHidesStream(t *testing.T) {
	store := newTestStorage(t)
	creator := seedCreator(t, store)
	stream := goLive(t, store, creator.ID, "Broadcast")

	if err := store.SoftDeleteStream(stream.ID); err != nil {
		t.Fatalf("SoftDeleteStream: %v", err)
	}
	if _, ok := store.GetStream(stream.ID); ok {
		t.Fatal("deleted stream still visible")
	}
	if streams, _ := store.ListLiveStreams(ListStreamsOptions{}); len(streams) != 0 {
		t.Fatalf("deleted stream still listed: %v", streams)
	}
	if err := store.SoftDeleteStream(stream.ID); !errors.Is(err, ErrStreamNotFound) {
		t.Fatalf("second delete err = %v, want ErrStreamNotFound", err)
	}
}

func TestListLiveStreamsFiltersAndPages(t *testing.T) {
	now := time.Date(2026, 1, 26, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := newTestStorage(t, WithClock(clock))

	gaming, err := store.CreateCategory("Gaming")
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}

	first := seedCreator(t, store)
	second, err := store.CreateCreator(CreateCreatorParams{DisplayName: "Grün", ChannelName: "GRÜN-TV"})
	if err != nil {
		t.Fatalf("CreateCreator: %v", err)
	}

	if _, err := store.StartStream(StartStreamParams{CreatorID: first.ID, Title: "Speedrun Sunday", CategoryID: gaming.ID, IsPublic: true}); err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	now = now.Add(time.Minute)
	if _, err := store.StartStream(StartStreamParams{CreatorID: second.ID, Title: "Kochshow", IsPublic: true}); err != nil {
		t.Fatalf("StartStream: %v", err)
	}

	all, total := store.ListLiveStreams(ListStreamsOptions{})
	if total != 2 || len(all) != 2 {
		t.Fatalf("total = %d len = %d, want 2", total, len(all))
	}
	if all[0].Title != "Kochshow" {
		t.Fatalf("newest first, got %q", all[0].Title)
	}

	byCategory, total := store.ListLiveStreams(ListStreamsOptions{CategoryID: gaming.ID})
	if total != 1 || byCategory[0].Title != "Speedrun Sunday" {
		t.Fatalf("category filter returned %v", byCategory)
	}

	// Query folds case, including non-ASCII channel names.
	byQuery, total := store.ListLiveStreams(ListStreamsOptions{Query: "grün-tv"})
	if total != 1 || byQuery[0].CreatorID != second.ID {
		t.Fatalf("query filter returned %v", byQuery)
	}

	paged, total := store.ListLiveStreams(ListStreamsOptions{Limit: 1, Offset: 1})
	if total != 2 || len(paged) != 1 || paged[0].Title != "Speedrun Sunday" {
		t.Fatalf("paging returned %v (total %d)", paged, total)
	}
}

func TestAdjustViewersTracksPeakAndTotals(t *testing.T) {
	store := newTestStorage(t)
	creator := seedCreator(t, store)
	stream := goLive(t, store, creator.ID, "Broadcast")

	for _, delta := range []int{3, 2, -4} {
		var err error
		stream, err = store.AdjustViewers(stream.ID, delta)
		if err != nil {
			t.Fatalf("AdjustViewers(%d): %v", delta, err)
		}
	}
	if stream.CurrentViewers != 1 || stream.PeakViewers != 5 || stream.TotalViews != 5 {
		t.Fatalf("counters = %d/%d/%d, want 1/5/5", stream.CurrentViewers, stream.PeakViewers, stream.TotalViews)
	}

	if stream, _ = store.AdjustViewers(stream.ID, -10); stream.CurrentViewers != 0 {
		t.Fatalf("gauge went negative: %d", stream.CurrentViewers)
	}
}

func TestSetStreamRecordingIsIdempotentAndSticky(t *testing.T) {
	store := newTestStorage(t)
	creator := seedCreator(t, store)
	stream := goLive(t, store, creator.ID, "Broadcast")
	if _, err := store.StopStream(StopStreamParams{StreamID: stream.ID, RequesterID: creator.ID}); err != nil {
		t.Fatalf("StopStream: %v", err)
	}

	ctx := context.Background()
	path := "ivs/v1/acct/chan/2026/1/26/10/0/sessionA"
	url := "https://bucket.example/" + path + "/media/hls/master.m3u8"

	first, err := store.SetStreamRecording(ctx, stream.ID, path, url)
	if err != nil || first.RecordingPath != path {
		t.Fatalf("SetStreamRecording: %v %+v", err, first)
	}

	again, err := store.SetStreamRecording(ctx, stream.ID, path, url)
	if err != nil || again.RecordingPath != path {
		t.Fatalf("repeat SetStreamRecording: %v", err)
	}

	// A different path must not displace the existing association.
	kept, err := store.SetStreamRecording(ctx, stream.ID, "ivs/v1/acct/chan/2026/1/26/11/0/sessionB", url)
	if err != nil || kept.RecordingPath != path {
		t.Fatalf("existing association displaced: %v %+v", err, kept)
	}

	unmatched, err := store.ListUnmatchedOffline(ctx)
	if err != nil {
		t.Fatalf("ListUnmatchedOffline: %v", err)
	}
	if len(unmatched) != 0 {
		t.Fatalf("matched stream still queued: %v", unmatched)
	}
}

func TestPersistFailureRollsBack(t *testing.T) {
	store := newTestStorage(t)
	creator := seedCreator(t, store)

	store.persistOverride = func(dataset) error { return errors.New("disk full") }
	if _, err := store.StartStream(StartStreamParams{CreatorID: creator.ID, Title: "Broadcast"}); err == nil {
		t.Fatal("expected persist failure to surface")
	}
	store.persistOverride = nil

	if streams, _ := store.ListLiveStreams(ListStreamsOptions{}); len(streams) != 0 {
		t.Fatalf("rolled-back stream still present: %v", streams)
	}
	if updated, _ := store.GetCreator(creator.ID); updated.TotalStreams != 0 {
		t.Fatalf("TotalStreams = %d after rollback, want 0", updated.TotalStreams)
	}
}

func TestStorageReloadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")

	store, err := NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	creator := seedCreator(t, store)
	stream := goLive(t, store, creator.ID, "Broadcast")

	reloaded, err := NewStorage(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := reloaded.GetStream(stream.ID)
	if !ok {
		t.Fatal("stream lost across reload")
	}
	if got.StreamKey != stream.StreamKey {
		t.Fatal("stream key not persisted")
	}
}
