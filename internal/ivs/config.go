// Package ivs holds the static configuration for the managed live-video
// service. The service is never called directly: broadcasts are pushed to its
// ingest endpoint by creator software, and finished recordings appear
// asynchronously in object storage under the channel's base prefix.
package ivs

import (
	"fmt"
	"os"
	"strings"
)

// ChannelIdentity is the fixed account/channel pair identifying this
// deployment's broadcast destination. All recordings for the deployment live
// under BasePrefix in the recording bucket.
type ChannelIdentity struct {
	AccountID string
	ChannelID string
}

// BasePrefix returns the storage prefix the video service writes recordings
// under, e.g. "ivs/v1/504956988903/2DmwQzILLrtf/".
func (c ChannelIdentity) BasePrefix() string {
	return fmt.Sprintf("ivs/v1/%s/%s/", c.AccountID, c.ChannelID)
}

// Configured reports whether both halves of the identity are present.
func (c ChannelIdentity) Configured() bool {
	return c.AccountID != "" && c.ChannelID != ""
}

// Config stores the static connectivity information for the managed video
// service and the recording bucket it writes into.
type Config struct {
	IngestEndpoint  string
	PlaybackURL     string
	ChannelARN      string
	Channel         ChannelIdentity
	RecordingBucket string
	RecordingRegion string
	// PlaybackBaseURL is the public base used to derive recording playback
	// URLs, e.g. "https://bucket.s3.us-east-1.amazonaws.com".
	PlaybackBaseURL string
}

// LoadConfigFromEnv initialises a Config from environment variables.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		IngestEndpoint:  strings.TrimSpace(os.Getenv("FERNANDO_LIVE_IVS_INGEST_ENDPOINT")),
		PlaybackURL:     strings.TrimSpace(os.Getenv("FERNANDO_LIVE_IVS_PLAYBACK_URL")),
		ChannelARN:      strings.TrimSpace(os.Getenv("FERNANDO_LIVE_IVS_CHANNEL_ARN")),
		RecordingBucket: strings.TrimSpace(os.Getenv("FERNANDO_LIVE_RECORDING_BUCKET")),
		RecordingRegion: strings.TrimSpace(os.Getenv("FERNANDO_LIVE_RECORDING_REGION")),
		PlaybackBaseURL: strings.TrimSpace(os.Getenv("FERNANDO_LIVE_RECORDING_PLAYBACK_BASE")),
		Channel: ChannelIdentity{
			AccountID: strings.TrimSpace(os.Getenv("FERNANDO_LIVE_IVS_ACCOUNT_ID")),
			ChannelID: strings.TrimSpace(os.Getenv("FERNANDO_LIVE_IVS_CHANNEL_ID")),
		},
	}

	if cfg.Channel.AccountID == "" && cfg.ChannelARN != "" {
		account, channel, err := parseChannelARN(cfg.ChannelARN)
		if err != nil {
			return Config{}, err
		}
		cfg.Channel = ChannelIdentity{AccountID: account, ChannelID: channel}
	}

	if cfg.RecordingBucket != "" && cfg.PlaybackBaseURL == "" {
		region := cfg.RecordingRegion
		if region == "" {
			region = "us-east-1"
		}
		cfg.PlaybackBaseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.RecordingBucket, region)
	}

	return cfg, nil
}

// RecordingEnabled reports whether enough configuration is present to
// reconcile recordings from object storage.
func (c Config) RecordingEnabled() bool {
	return c.RecordingBucket != "" && c.Channel.Configured()
}

// parseChannelARN extracts the account and channel IDs from an ARN of the form
// arn:aws:ivs:{region}:{account}:channel/{channelId}.
func parseChannelARN(arn string) (string, string, error) {
	parts := strings.Split(arn, ":")
	if len(parts) != 6 || parts[0] != "arn" || parts[2] != "ivs" {
		return "", "", fmt.Errorf("malformed channel ARN %q", arn)
	}
	account := parts[4]
	resource := parts[5]
	channel, ok := strings.CutPrefix(resource, "channel/")
	if !ok || account == "" || channel == "" {
		return "", "", fmt.Errorf("malformed channel ARN %q", arn)
	}
	return account, channel, nil
}
