package recording

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fernando-live/internal/ivs"
	"fernando-live/internal/observability/logging"
	"fernando-live/internal/observability/metrics"
)

// Locator searches the recording bucket for the manifest belonging to a
// broadcast that started at a known instant. The video service writes date
// segments without zero padding, but both spellings are probed because the
// padding behaviour is not contractual.
type Locator struct {
	lister   Lister
	channel  ivs.ChannelIdentity
	logger   *slog.Logger
	recorder *metrics.Recorder
}

// NewLocator constructs a Locator over the provided bucket lister.
func NewLocator(lister Lister, channel ivs.ChannelIdentity, logger *slog.Logger, recorder *metrics.Recorder) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{
		lister:   lister,
		channel:  channel,
		logger:   logging.WithComponent(logger, "recording.locator"),
		recorder: recorder,
	}
}

// FindRecording returns the session directory path of the manifest recorded
// for a broadcast started at startedAt, or ok=false when none exists yet.
// Listing failures are logged and reported as a miss so callers can retry on a
// later pass; absence of a recording is an expected state, not an error.
func (l *Locator) FindRecording(ctx context.Context, startedAt time.Time) (string, bool) {
	if l == nil || l.lister == nil || !l.channel.Configured() {
		return "", false
	}

	for _, prefix := range candidatePrefixes(l.channel.BasePrefix(), startedAt) {
		path, found := l.scanPrefix(ctx, prefix)
		if found {
			l.recorder.ObserveReconcile("locate_hit")
			return path, true
		}
	}
	l.recorder.ObserveReconcile("locate_miss")
	return "", false
}

func (l *Locator) scanPrefix(ctx context.Context, prefix string) (string, bool) {
	token := ""
	for {
		page, err := l.lister.ListPage(ctx, prefix, token)
		if err != nil {
			l.recorder.ObserveReconcile("storage_error")
			l.logger.Warn("recording listing failed", "prefix", prefix, "error", err)
			return "", false
		}
		for _, obj := range page.Objects {
			if strings.HasSuffix(obj.Key, ManifestSuffix) {
				return strings.TrimSuffix(obj.Key, ManifestSuffix), true
			}
		}
		if page.NextToken == "" {
			return "", false
		}
		token = page.NextToken
	}
}

// candidatePrefixes yields the prefixes to probe for a start instant, most
// specific first: minute resolution in both padding spellings, then the whole
// calendar day as a fallback for clock skew between the broadcaster and the
// recorder. Duplicate spellings collapse when every segment is two digits.
func candidatePrefixes(base string, startedAt time.Time) []string {
	t := startedAt.UTC()
	year, month, day := t.Year(), int(t.Month()), t.Day()
	hour, minute := t.Hour(), t.Minute()

	candidates := []string{
		fmt.Sprintf("%s%d/%d/%d/%d/%d/", base, year, month, day, hour, minute),
		fmt.Sprintf("%s%d/%02d/%02d/%02d/%02d/", base, year, month, day, hour, minute),
		fmt.Sprintf("%s%d/%d/%d/", base, year, month, day),
		fmt.Sprintf("%s%d/%02d/%02d/", base, year, month, day),
	}

	seen := make(map[string]struct{}, len(candidates))
	unique := candidates[:0]
	for _, prefix := range candidates {
		if _, dup := seen[prefix]; dup {
			continue
		}
		seen[prefix] = struct{}{}
		unique = append(unique, prefix)
	}
	return unique
}
