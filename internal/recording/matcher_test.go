package recording

import (
	"testing"
	"time"

	"fernando-live/internal/models"
)

func offlineStream(id string, startedAt time.Time) models.Stream {
	return models.Stream{ID: id, Status: models.StreamOffline, StartedAt: startedAt}
}

func testArtifact(datePart, sessionID string, lastModified time.Time) Artifact {
	key := manifestKey(datePart, sessionID)
	artifact, ok := parseArtifactKey(testChannel.BasePrefix(), Object{Key: key, LastModified: lastModified})
	if !ok {
		panic("test artifact key did not parse: " + key)
	}
	return artifact
}

func TestMatchExactMinute(t *testing.T) {
	streams := []models.Stream{
		offlineStream("stream-a", at("2026-01-26T14:05:42Z")),
		offlineStream("stream-b", at("2026-01-26T18:30:00Z")),
	}
	artifacts := []Artifact{
		testArtifact("2026/1/26/14/5", "sessionA", at("2026-01-26T14:40:00Z")),
	}

	matches := Match(streams, artifacts)
	if len(matches) != 1 {
		t.Fatalf("matches = %v, want exactly one", matches)
	}
	if matches["stream-a"].SessionID != "sessionA" {
		t.Fatalf("stream-a matched %+v", matches["stream-a"])
	}
}

func TestMatchAmbiguousMinuteFallsBackToNearest(t *testing.T) {
	// Two broadcasts share a start minute, so the minute key proves nothing
	// and the artifact falls back to the closest start time.
	streams := []models.Stream{
		offlineStream("stream-a", at("2026-01-26T14:05:10Z")),
		offlineStream("stream-b", at("2026-01-26T14:05:50Z")),
	}
	artifacts := []Artifact{
		testArtifact("2026/1/26/14/5", "sessionA", at("2026-01-26T14:05:55Z")),
	}

	matches := Match(streams, artifacts)
	if len(matches) != 1 {
		t.Fatalf("matches = %v, want exactly one", matches)
	}
	if _, ok := matches["stream-b"]; !ok {
		t.Fatalf("expected nearest stream-b, got %v", matches)
	}
}

func TestMatchSameDayNearestFallback(t *testing.T) {
	streams := []models.Stream{
		offlineStream("stream-early", at("2026-01-26T10:00:00Z")),
		offlineStream("stream-late", at("2026-01-26T10:30:00Z")),
	}
	// Minute segment does not line up with either start, last modified 10:32.
	artifacts := []Artifact{
		testArtifact("2026/1/26/10/31", "sessionX", at("2026-01-26T10:32:00Z")),
	}

	matches := Match(streams, artifacts)
	if _, ok := matches["stream-late"]; !ok || len(matches) != 1 {
		t.Fatalf("matches = %v, want only stream-late", matches)
	}
}

func TestMatchFallbackTieBreaksOnLowestID(t *testing.T) {
	streams := []models.Stream{
		offlineStream("stream-b", at("2026-01-26T10:00:00Z")),
		offlineStream("stream-a", at("2026-01-26T11:00:00Z")),
	}
	artifacts := []Artifact{
		testArtifact("2026/1/26/10/29", "sessionX", at("2026-01-26T10:30:00Z")),
	}

	matches := Match(streams, artifacts)
	if _, ok := matches["stream-a"]; !ok || len(matches) != 1 {
		t.Fatalf("matches = %v, want stream-a on tie", matches)
	}
}

func TestMatchIsOneToOne(t *testing.T) {
	streams := []models.Stream{
		offlineStream("stream-a", at("2026-01-26T10:00:00Z")),
		offlineStream("stream-b", at("2026-01-26T12:00:00Z")),
	}
	artifacts := []Artifact{
		testArtifact("2026/1/26/10/0", "sessionA", at("2026-01-26T10:45:00Z")),
		testArtifact("2026/1/26/12/0", "sessionB", at("2026-01-26T12:45:00Z")),
	}

	matches := Match(streams, artifacts)
	if len(matches) != 2 {
		t.Fatalf("matches = %v, want both streams matched", matches)
	}
	if matches["stream-a"].SessionID == matches["stream-b"].SessionID {
		t.Fatalf("both streams claimed the same artifact: %v", matches)
	}
	if matches["stream-a"].SessionID != "sessionA" || matches["stream-b"].SessionID != "sessionB" {
		t.Fatalf("assignments crossed: %v", matches)
	}
}

func TestMatchOrphanArtifactStaysUnmatched(t *testing.T) {
	streams := []models.Stream{
		offlineStream("stream-a", at("2026-01-26T10:00:00Z")),
	}
	// Different calendar day; nothing may be fabricated from it.
	artifacts := []Artifact{
		testArtifact("2026/1/27/10/0", "sessionZ", at("2026-01-27T10:45:00Z")),
	}

	if matches := Match(streams, artifacts); len(matches) != 0 {
		t.Fatalf("matches = %v, want none", matches)
	}
}

func TestMatchDeterministicAcrossListingOrder(t *testing.T) {
	streams := []models.Stream{
		offlineStream("stream-a", at("2026-01-26T10:00:00Z")),
		offlineStream("stream-b", at("2026-01-26T10:20:00Z")),
	}
	artifacts := []Artifact{
		testArtifact("2026/1/26/10/5", "session1", at("2026-01-26T10:06:00Z")),
		testArtifact("2026/1/26/10/19", "session2", at("2026-01-26T10:21:00Z")),
	}
	reversed := []Artifact{artifacts[1], artifacts[0]}

	first := Match(streams, artifacts)
	second := Match(streams, reversed)
	if len(first) != len(second) {
		t.Fatalf("order changed match count: %v vs %v", first, second)
	}
	for id, artifact := range first {
		if second[id].Path != artifact.Path {
			t.Fatalf("order changed assignment for %s: %q vs %q", id, artifact.Path, second[id].Path)
		}
	}
}

func TestMatchIgnoresStreamsWithoutStartTime(t *testing.T) {
	streams := []models.Stream{
		{ID: "stream-a", Status: models.StreamOffline},
	}
	artifacts := []Artifact{
		testArtifact("2026/1/26/10/0", "sessionA", at("2026-01-26T10:45:00Z")),
	}
	if matches := Match(streams, artifacts); len(matches) != 0 {
		t.Fatalf("matches = %v, want none", matches)
	}
}
