package recording

import (
	"strconv"
	"strings"
)

// parseArtifactKey interprets an object key as a recording manifest under the
// channel base prefix. The expected shape, relative to base, is
// year/month/day/hour/minute/sessionId/media/hls/master.m3u8 where the date
// segments are decimal and may or may not be zero padded. Keys that deviate in
// any way are rejected rather than guessed at.
func parseArtifactKey(base string, obj Object) (Artifact, bool) {
	key := obj.Key
	if !strings.HasSuffix(key, ManifestSuffix) {
		return Artifact{}, false
	}
	rel, ok := strings.CutPrefix(key, base)
	if !ok {
		return Artifact{}, false
	}
	rel = strings.TrimSuffix(rel, ManifestSuffix)

	segments := strings.Split(rel, "/")
	if len(segments) != 6 {
		return Artifact{}, false
	}
	sessionID := segments[5]
	if sessionID == "" {
		return Artifact{}, false
	}

	year, ok := parseDateSegment(segments[0], 2000, 9999)
	if !ok {
		return Artifact{}, false
	}
	month, ok := parseDateSegment(segments[1], 1, 12)
	if !ok {
		return Artifact{}, false
	}
	day, ok := parseDateSegment(segments[2], 1, 31)
	if !ok {
		return Artifact{}, false
	}
	hour, ok := parseDateSegment(segments[3], 0, 23)
	if !ok {
		return Artifact{}, false
	}
	minute, ok := parseDateSegment(segments[4], 0, 59)
	if !ok {
		return Artifact{}, false
	}

	return Artifact{
		Path:         strings.TrimSuffix(key, ManifestSuffix),
		SessionID:    sessionID,
		Key:          PathKey{Year: year, Month: month, Day: day, Hour: hour, Minute: minute},
		LastModified: obj.LastModified.UTC(),
	}, true
}

func parseDateSegment(segment string, min, max int) (int, bool) {
	if segment == "" || len(segment) > 4 {
		return 0, false
	}
	value, err := strconv.Atoi(segment)
	if err != nil || value < min || value > max {
		return 0, false
	}
	return value, true
}
