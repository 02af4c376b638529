package recording

import (
	"sort"
	"time"

	"fernando-live/internal/models"
)

// Match assigns discovered artifacts to finished broadcasts. An artifact whose
// path encodes the exact minute a single stream went live is matched to that
// stream; otherwise it falls back to the unassigned stream that started on the
// same UTC calendar day closest in time to the artifact's last-modified
// instant, ties resolved by lowest stream ID. Assignments are one to one, and
// artifacts are considered in path order so the result is stable regardless of
// listing order. Artifacts that match no stream are left for a later pass.
func Match(streams []models.Stream, artifacts []Artifact) map[string]Artifact {
	matches := make(map[string]Artifact)
	if len(streams) == 0 || len(artifacts) == 0 {
		return matches
	}

	ordered := make([]Artifact, len(artifacts))
	copy(ordered, artifacts)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Path < ordered[j].Path })

	pool := make([]*candidate, 0, len(streams))
	byMinute := make(map[PathKey][]*candidate)
	byDay := make(map[DayKey][]*candidate)
	for i := range streams {
		stream := streams[i]
		if stream.StartedAt.IsZero() {
			continue
		}
		c := &candidate{stream: stream, startedAt: stream.StartedAt.UTC()}
		pool = append(pool, c)
		minute := KeyForTime(c.startedAt)
		byMinute[minute] = append(byMinute[minute], c)
		day := minute.DayOf()
		byDay[day] = append(byDay[day], c)
	}
	if len(pool) == 0 {
		return matches
	}

	for _, artifact := range ordered {
		c := pickCandidate(artifact, byMinute, byDay)
		if c == nil {
			continue
		}
		c.assigned = true
		matches[c.stream.ID] = artifact
	}
	return matches
}

type candidate struct {
	stream    models.Stream
	startedAt time.Time
	assigned  bool
}

func pickCandidate(artifact Artifact, byMinute map[PathKey][]*candidate, byDay map[DayKey][]*candidate) *candidate {
	// Exact minute match is only trusted when it is unambiguous.
	if exact := unassigned(byMinute[artifact.Key]); len(exact) == 1 {
		return exact[0]
	}

	day := DayForTime(artifact.LastModified)
	var best *candidate
	var bestDelta time.Duration
	for _, c := range unassigned(byDay[day]) {
		delta := artifact.LastModified.Sub(c.startedAt)
		if delta < 0 {
			delta = -delta
		}
		switch {
		case best == nil, delta < bestDelta:
			best, bestDelta = c, delta
		case delta == bestDelta && c.stream.ID < best.stream.ID:
			best = c
		}
	}
	return best
}

func unassigned(candidates []*candidate) []*candidate {
	var free []*candidate
	for _, c := range candidates {
		if !c.assigned {
			free = append(free, c)
		}
	}
	return free
}
