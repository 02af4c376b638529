package recording

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"fernando-live/internal/ivs"
	"fernando-live/internal/observability/metrics"
)

var testChannel = ivs.ChannelIdentity{AccountID: "504956988903", ChannelID: "2DmwQzILLrtf"}

// fakeLister serves canned pages per prefix. Continuation tokens are page
// indexes; errAt forces a failure on the given page of a prefix.
type fakeLister struct {
	pages map[string][]Page
	errAt map[string]int
	calls int
}

func (f *fakeLister) ListPage(_ context.Context, prefix, token string) (Page, error) {
	f.calls++
	idx := 0
	if token != "" {
		parsed, err := strconv.Atoi(token)
		if err != nil {
			return Page{}, errors.New("bad continuation token")
		}
		idx = parsed
	}
	if at, ok := f.errAt[prefix]; ok && at == idx {
		return Page{}, errors.New("listing unavailable")
	}
	pages := f.pages[prefix]
	if idx >= len(pages) {
		return Page{}, nil
	}
	page := pages[idx]
	if idx+1 < len(pages) {
		page.NextToken = strconv.Itoa(idx + 1)
	}
	return page, nil
}

func manifestKey(datePart, sessionID string) string {
	return testChannel.BasePrefix() + datePart + "/" + sessionID + ManifestSuffix
}

func at(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestLocator(lister Lister) *Locator {
	return NewLocator(lister, testChannel, nil, metrics.New())
}

func TestFindRecordingUnpaddedMinutePrefix(t *testing.T) {
	base := testChannel.BasePrefix()
	key := manifestKey("2026/1/26/14/5", "st-abc123")
	lister := &fakeLister{pages: map[string][]Page{
		base + "2026/1/26/14/5/": {{Objects: []Object{{Key: key, LastModified: at("2026-01-26T14:35:00Z")}}}},
	}}

	path, found := newTestLocator(lister).FindRecording(context.Background(), at("2026-01-26T14:05:12Z"))
	if !found {
		t.Fatal("expected recording to be found")
	}
	want := base + "2026/1/26/14/5/st-abc123"
	if path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}
}

func TestFindRecordingPaddedPrefixFallback(t *testing.T) {
	base := testChannel.BasePrefix()
	key := manifestKey("2026/01/26/14/05", "st-abc123")
	lister := &fakeLister{pages: map[string][]Page{
		base + "2026/01/26/14/05/": {{Objects: []Object{{Key: key, LastModified: at("2026-01-26T14:35:00Z")}}}},
	}}

	path, found := newTestLocator(lister).FindRecording(context.Background(), at("2026-01-26T14:05:12Z"))
	if !found {
		t.Fatal("expected recording to be found under the padded prefix")
	}
	want := base + "2026/01/26/14/05/st-abc123"
	if path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}
}

func TestFindRecordingDayLevelFallback(t *testing.T) {
	// Manifest landed two minutes after the broadcast start, so the minute
	// prefixes are empty and the day scan has to find it.
	base := testChannel.BasePrefix()
	key := manifestKey("2026/1/26/14/7", "st-late")
	lister := &fakeLister{pages: map[string][]Page{
		base + "2026/1/26/": {{Objects: []Object{{Key: key, LastModified: at("2026-01-26T14:40:00Z")}}}},
	}}

	path, found := newTestLocator(lister).FindRecording(context.Background(), at("2026-01-26T14:05:12Z"))
	if !found {
		t.Fatal("expected recording via day-level fallback")
	}
	if want := base + "2026/1/26/14/7/st-late"; path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}
}

func TestFindRecordingAbsenceIsNotAnError(t *testing.T) {
	lister := &fakeLister{}
	if path, found := newTestLocator(lister).FindRecording(context.Background(), at("2026-01-26T14:05:12Z")); found || path != "" {
		t.Fatalf("expected miss, got %q", path)
	}
}

func TestFindRecordingListingFailureIsAMiss(t *testing.T) {
	base := testChannel.BasePrefix()
	lister := &fakeLister{errAt: map[string]int{
		base + "2026/1/26/14/5/":   0,
		base + "2026/01/26/14/05/": 0,
		base + "2026/1/26/":        0,
		base + "2026/01/26/":       0,
	}}
	if _, found := newTestLocator(lister).FindRecording(context.Background(), at("2026-01-26T14:05:12Z")); found {
		t.Fatal("listing failures must not surface as a hit")
	}
}

func TestFindRecordingPagesThroughPrefix(t *testing.T) {
	base := testChannel.BasePrefix()
	prefix := base + "2026/1/26/14/5/"
	filler := make([]Object, 3)
	for i := range filler {
		filler[i] = Object{Key: prefix + "st-abc123/media/thumbnails/thumb" + strconv.Itoa(i) + ".jpg"}
	}
	key := manifestKey("2026/1/26/14/5", "st-abc123")
	lister := &fakeLister{pages: map[string][]Page{
		prefix: {
			{Objects: filler},
			{Objects: []Object{{Key: key, LastModified: at("2026-01-26T14:35:00Z")}}},
		},
	}}

	path, found := newTestLocator(lister).FindRecording(context.Background(), at("2026-01-26T14:05:12Z"))
	if !found {
		t.Fatal("expected manifest on the second page")
	}
	if want := base + "2026/1/26/14/5/st-abc123"; path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}
}

func TestCandidatePrefixesDeduplicate(t *testing.T) {
	base := testChannel.BasePrefix()

	// Every segment is already two digits, so padded and unpadded collapse.
	got := candidatePrefixes(base, at("2026-11-26T14:25:00Z"))
	if len(got) != 2 {
		t.Fatalf("prefixes = %v, want 2 unique entries", got)
	}

	got = candidatePrefixes(base, at("2026-01-26T14:05:00Z"))
	want := []string{
		base + "2026/1/26/14/5/",
		base + "2026/01/26/14/05/",
		base + "2026/1/26/",
		base + "2026/01/26/",
	}
	if len(got) != len(want) {
		t.Fatalf("prefixes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("prefix[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
