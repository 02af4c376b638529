package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"fernando-live/internal/models"
)

// Requires a reachable Postgres; set FERNANDO_LIVE_TEST_POSTGRES_DSN to run.
func postgresTestRepo(t *testing.T) Repository {
	t.Helper()
	dsn := os.Getenv("FERNANDO_LIVE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FERNANDO_LIVE_TEST_POSTGRES_DSN not set")
	}
	repo, err := NewPostgresRepository(dsn, WithPostgresApplicationName("fernando-live-test"))
	if err != nil {
		t.Fatalf("NewPostgresRepository: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = repo.(*postgresRepository).Close(ctx)
	})
	return repo
}

func TestPostgresStreamLifecycle(t *testing.T) {
	repo := postgresTestRepo(t)

	if err := repo.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	channel := fmt.Sprintf("itest-%d", time.Now().UnixNano())
	creator, err := repo.CreateCreator(CreateCreatorParams{DisplayName: "Integration", ChannelName: channel})
	if err != nil {
		t.Fatalf("CreateCreator: %v", err)
	}

	stream, err := repo.StartStream(StartStreamParams{CreatorID: creator.ID, Title: "Integration run", IsPublic: true})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if stream.Status != models.StreamLive {
		t.Fatalf("status = %s, want LIVE", stream.Status)
	}

	if _, err := repo.StartStream(StartStreamParams{CreatorID: creator.ID, Title: "Second"}); !errors.Is(err, ErrAlreadyLive) {
		t.Fatalf("err = %v, want ErrAlreadyLive", err)
	}

	stopped, err := repo.StopStream(StopStreamParams{StreamID: stream.ID, RequesterID: creator.ID})
	if err != nil {
		t.Fatalf("StopStream: %v", err)
	}
	if stopped.Status != models.StreamOffline || stopped.EndedAt == nil {
		t.Fatalf("stopped stream = %+v", stopped)
	}

	ctx := context.Background()
	path := "ivs/v1/acct/chan/2026/1/26/10/0/" + stream.ID
	matched, err := repo.SetStreamRecording(ctx, stream.ID, path, "https://bucket.example/"+path+"/media/hls/master.m3u8")
	if err != nil || matched.RecordingPath != path {
		t.Fatalf("SetStreamRecording: %v %+v", err, matched)
	}
	kept, err := repo.SetStreamRecording(ctx, stream.ID, "ivs/v1/acct/chan/2026/1/26/11/0/other", "")
	if err != nil || kept.RecordingPath != path {
		t.Fatalf("existing association displaced: %v %+v", err, kept)
	}

	if err := repo.SoftDeleteStream(stream.ID); err != nil {
		t.Fatalf("SoftDeleteStream: %v", err)
	}
	if _, ok := repo.GetStream(stream.ID); ok {
		t.Fatal("deleted stream still visible")
	}
}
