package recording

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"fernando-live/internal/ivs"
	"fernando-live/internal/models"
	"fernando-live/internal/observability/logging"
	"fernando-live/internal/observability/metrics"
)

// Store is the slice of the datastore the reconciler needs: finished
// broadcasts still waiting for a recording, and a way to persist an
// association once one is found.
type Store interface {
	ListUnmatchedOffline(ctx context.Context) ([]models.Stream, error)
	SetStreamRecording(ctx context.Context, streamID, recordingPath, playbackURL string) (models.Stream, error)
}

// Reconciler associates finished broadcasts with the recordings the video
// service wrote to object storage. It is safe for concurrent use; concurrent
// backfills for the same stream collapse into a single bucket scan.
type Reconciler struct {
	store        Store
	lister       Lister
	locator      *Locator
	channel      ivs.ChannelIdentity
	playbackBase string
	group        singleflight.Group
	logger       *slog.Logger
	recorder     *metrics.Recorder
}

// NewReconciler wires a Reconciler. A nil lister or unconfigured channel
// produces a disabled reconciler whose operations are no-ops, so callers do
// not need to branch on whether recording is configured.
func NewReconciler(store Store, lister Lister, cfg ivs.Config, logger *slog.Logger, recorder *metrics.Recorder) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:        store,
		lister:       lister,
		locator:      NewLocator(lister, cfg.Channel, logger, recorder),
		channel:      cfg.Channel,
		playbackBase: strings.TrimRight(cfg.PlaybackBaseURL, "/"),
		logger:       logging.WithComponent(logger, "recording.reconciler"),
		recorder:     recorder,
	}
}

// Enabled reports whether the reconciler has enough configuration to reach
// the recording bucket.
func (r *Reconciler) Enabled() bool {
	return r != nil && r.lister != nil && r.channel.Configured()
}

// Backfill attempts to locate and persist the recording for a single finished
// broadcast. It returns the refreshed stream and whether anything changed.
// Streams that are still live, already matched, or missing a start time are
// returned unchanged; so is the input when the bucket holds no manifest yet.
func (r *Reconciler) Backfill(ctx context.Context, stream models.Stream) (models.Stream, bool) {
	if !r.Enabled() {
		return stream, false
	}
	if stream.Status != models.StreamOffline || stream.RecordingPath != "" || stream.StartedAt.IsZero() {
		return stream, false
	}

	result, err, _ := r.group.Do(stream.ID, func() (any, error) {
		path, found := r.locator.FindRecording(ctx, stream.StartedAt)
		if !found {
			return stream, nil
		}
		updated, err := r.store.SetStreamRecording(ctx, stream.ID, path, r.PlaybackURL(path))
		if err != nil {
			return stream, err
		}
		r.recorder.ObserveReconcile("stream_matched")
		return updated, nil
	})
	if err != nil {
		r.logger.Error("backfill persist failed", "stream_id", stream.ID, "error", err)
		return stream, false
	}
	updated := result.(models.Stream)
	return updated, updated.RecordingPath != "" && stream.RecordingPath == ""
}

// ReconcileAll sweeps every artifact under the channel prefix and matches the
// batch against all finished broadcasts without a recording. It returns the
// number of new associations persisted. A listing failure partway through
// keeps the pages already fetched, so a flaky sweep still makes progress; the
// error reports what was lost.
func (r *Reconciler) ReconcileAll(ctx context.Context) (int, error) {
	if !r.Enabled() {
		return 0, nil
	}

	artifacts, listErr := r.collectArtifacts(ctx)
	if listErr != nil && len(artifacts) == 0 {
		return 0, listErr
	}

	streams, err := r.store.ListUnmatchedOffline(ctx)
	if err != nil {
		return 0, err
	}

	matched := 0
	for streamID, artifact := range Match(streams, artifacts) {
		if _, err := r.store.SetStreamRecording(ctx, streamID, artifact.Path, r.PlaybackURL(artifact.Path)); err != nil {
			r.logger.Error("reconcile persist failed", "stream_id", streamID, "path", artifact.Path, "error", err)
			continue
		}
		r.recorder.ObserveReconcile("stream_matched")
		matched++
	}
	return matched, listErr
}

// collectArtifacts pages through the whole channel prefix, parsing every
// manifest key into an Artifact. Keys that do not fit the expected layout are
// skipped rather than matched on a guess.
func (r *Reconciler) collectArtifacts(ctx context.Context) ([]Artifact, error) {
	base := r.channel.BasePrefix()
	var artifacts []Artifact
	token := ""
	for {
		page, err := r.lister.ListPage(ctx, base, token)
		if err != nil {
			r.recorder.ObserveReconcile("storage_error")
			return artifacts, fmt.Errorf("list recordings under %s: %w", base, err)
		}
		for _, obj := range page.Objects {
			artifact, ok := parseArtifactKey(base, obj)
			if !ok {
				continue
			}
			r.recorder.ObserveReconcile("artifact_discovered")
			artifacts = append(artifacts, artifact)
		}
		if page.NextToken == "" {
			return artifacts, nil
		}
		token = page.NextToken
	}
}

// PlaybackURL derives the public playback URL for a recording path. Passing a
// path that already carries the manifest suffix, or a previously derived URL's
// path portion, yields the same result.
func (r *Reconciler) PlaybackURL(path string) string {
	if r == nil || r.playbackBase == "" || path == "" {
		return ""
	}
	path = strings.Trim(path, "/")
	path = strings.TrimSuffix(path, strings.Trim(ManifestSuffix, "/"))
	path = strings.Trim(path, "/")
	if path == "" {
		return ""
	}
	return r.playbackBase + "/" + path + ManifestSuffix
}
