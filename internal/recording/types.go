// Package recording reconciles recording artifacts written asynchronously to
// object storage by the managed video service with stream records in the
// datastore. The service writes a manifest under
// {base}/{year}/{month}/{day}/{hour}/{minute}/{sessionId}/media/hls/master.m3u8
// with no callback linking the file to a stream, and zero-pads the date
// segments inconsistently, so association is a best-effort search-and-match.
package recording

import (
	"context"
	"time"
)

// ManifestSuffix marks a completed, playable recording inside a session
// directory.
const ManifestSuffix = "/media/hls/master.m3u8"

// MaxPageSize caps a single listing call.
const MaxPageSize = 1000

// Object is one entry returned by a storage listing.
type Object struct {
	Key          string
	LastModified time.Time
	Size         int64
}

// Page is one page of a storage listing. A non-empty NextToken means more
// pages follow.
type Page struct {
	Objects   []Object
	NextToken string
}

// Lister enumerates objects under a prefix in the recording bucket, one page
// at a time. Implementations never write.
type Lister interface {
	ListPage(ctx context.Context, prefix, continuationToken string) (Page, error)
}

// Artifact is one discovered recording manifest, identified by the session
// directory that contains it. Path is storage-relative with the manifest
// suffix stripped.
type Artifact struct {
	Path         string
	SessionID    string
	Key          PathKey
	LastModified time.Time
}

// PathKey is the minute-resolution timestamp embedded in an artifact path.
type PathKey struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
}

// DayKey drops the hour/minute components.
type DayKey struct {
	Year  int
	Month int
	Day   int
}

// DayOf returns the calendar-day portion of the key.
func (k PathKey) DayOf() DayKey {
	return DayKey{Year: k.Year, Month: k.Month, Day: k.Day}
}

// KeyForTime builds the minute-resolution key for an instant in UTC.
func KeyForTime(t time.Time) PathKey {
	t = t.UTC()
	return PathKey{
		Year:   t.Year(),
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
	}
}

// DayForTime builds the calendar-day key for an instant in UTC.
func DayForTime(t time.Time) DayKey {
	t = t.UTC()
	return DayKey{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}
