package recording

import (
	"testing"
)

func TestParseArtifactKey(t *testing.T) {
	base := testChannel.BasePrefix()
	modified := at("2026-01-26T14:40:00Z")

	cases := []struct {
		name string
		key  string
		ok   bool
		want PathKey
	}{
		{
			name: "unpadded segments",
			key:  base + "2026/1/26/14/5/sessionA" + ManifestSuffix,
			ok:   true,
			want: PathKey{Year: 2026, Month: 1, Day: 26, Hour: 14, Minute: 5},
		},
		{
			name: "padded segments",
			key:  base + "2026/01/26/14/05/sessionA" + ManifestSuffix,
			ok:   true,
			want: PathKey{Year: 2026, Month: 1, Day: 26, Hour: 14, Minute: 5},
		},
		{
			name: "midnight minute zero",
			key:  base + "2026/12/31/0/0/sessionA" + ManifestSuffix,
			ok:   true,
			want: PathKey{Year: 2026, Month: 12, Day: 31, Hour: 0, Minute: 0},
		},
		{name: "not a manifest", key: base + "2026/1/26/14/5/sessionA/media/hls/chunk0.ts"},
		{name: "outside base prefix", key: "ivs/v1/other-account/chan/2026/1/26/14/5/sessionA" + ManifestSuffix},
		{name: "missing session segment", key: base + "2026/1/26/14/5" + ManifestSuffix},
		{name: "extra segment", key: base + "extra/2026/1/26/14/5/sessionA" + ManifestSuffix},
		{name: "month out of range", key: base + "2026/13/26/14/5/sessionA" + ManifestSuffix},
		{name: "hour out of range", key: base + "2026/1/26/24/5/sessionA" + ManifestSuffix},
		{name: "minute out of range", key: base + "2026/1/26/14/60/sessionA" + ManifestSuffix},
		{name: "non-numeric day", key: base + "2026/1/2x/14/5/sessionA" + ManifestSuffix},
		{name: "implausible year", key: base + "1999/1/26/14/5/sessionA" + ManifestSuffix},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			artifact, ok := parseArtifactKey(base, Object{Key: tc.key, LastModified: modified})
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if !tc.ok {
				return
			}
			if artifact.Key != tc.want {
				t.Fatalf("key = %+v, want %+v", artifact.Key, tc.want)
			}
			if artifact.SessionID != "sessionA" {
				t.Fatalf("session = %q", artifact.SessionID)
			}
			if wantPath := tc.key[:len(tc.key)-len(ManifestSuffix)]; artifact.Path != wantPath {
				t.Fatalf("path = %q, want %q", artifact.Path, wantPath)
			}
			if !artifact.LastModified.Equal(modified) {
				t.Fatalf("lastModified = %v", artifact.LastModified)
			}
		})
	}
}
