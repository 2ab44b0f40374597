package poller

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	pkgconfig "channelwatch/pkg/config"
)

// Target is one channel the poller keeps current.
type Target struct {
	// ChannelID is the telemetry channel to poll.
	ChannelID string `yaml:"id"`

	// APIKey is the read key for the channel.
	APIKey string `yaml:"api_key"`

	// Results is the number of feed entries to request per cycle.
	// Zero means the client's configured default.
	Results int `yaml:"results,omitempty"`
}

// targetsFile is the YAML document shape of a channels file:
//
//	channels:
//	  - id: "12397"
//	    api_key: JMZCM47SV93DPC0R
//	    results: 100
type targetsFile struct {
	Channels []Target `yaml:"channels"`
}

// LoadTargets reads poll targets from the YAML file at path.
func LoadTargets(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading channels file: %w", err)
	}

	var doc targetsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing channels file %s: %w", path, err)
	}
	if len(doc.Channels) == 0 {
		return nil, fmt.Errorf("channels file %s lists no channels", path)
	}

	for i, target := range doc.Channels {
		if target.ChannelID == "" {
			return nil, fmt.Errorf("channels file %s: entry %d has no id", path, i)
		}
		if target.APIKey == "" {
			return nil, fmt.Errorf("channels file %s: entry %d (%s) has no api_key", path, i, target.ChannelID)
		}
	}
	return doc.Channels, nil
}

// TargetsFromEnv builds a single-target list from CHANNEL_ID and
// CHANNEL_API_KEY, for deployments that poll one channel without a
// channels file. Returns nil when CHANNEL_ID is unset.
func TargetsFromEnv() []Target {
	channelID := pkgconfig.GetEnvString("CHANNEL_ID", "")
	if channelID == "" {
		return nil
	}
	return []Target{{
		ChannelID: channelID,
		APIKey:    pkgconfig.GetEnvString("CHANNEL_API_KEY", ""),
		Results:   pkgconfig.GetEnvInt("CHANNEL_RESULTS", 0),
	}}
}
