package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces the environment overrides, e.g.
// DEVLOGFEED_SERVER_PORT -> server.port.
const envPrefix = "DEVLOGFEED_"

// defaultYAML is the built-in configuration. Every value here can be
// overridden by the config file or environment.
var defaultYAML = []byte(`
server:
  hostname: localhost
  port: 3000
  publisher_did: ""
  feed_name: devlog-progress
database:
  path: feed.db
firehose:
  url: wss://jetstream1.us-east.bsky.network/subscribe
scoring:
  keyword_weight: 0.25
  hashtag_weight: 0.25
  semantic_weight: 0.25
  classification_weight: 0.25
  devlog_threshold: 0.5
  confidence_high_spread: 0.15
  confidence_low_spread: 0.4
  half_life_hours: 24
  velocity_boost: 0.1
  velocity_max: 5.0
  promo_penalty: 0.5
  promo_domains:
    - store.steampowered.com
    - steampowered.com
    - itch.io
    - twitch.tv
    - kickstarter.com
    - indiegogo.com
    - patreon.com
    - ko-fi.com
    - buymeacoffee.com
    - gamejolt.com
    - youtube.com
    - youtu.be
    - buff.ly
    - bit.ly
engagement:
  like_weight: 1.0
  repost_weight: 2.0
  reply_weight: 3.0
  age_floor_hours: 0.5
  buffer_window_seconds: 300
  buffer_max_events: 10000
  flush_interval_seconds: 10
spam:
  window_hours: 1
  repost_threshold: 10
feed:
  default_limit: 50
  max_limit: 100
retention:
  max_age_hours: 168
  max_rows: 5000
  cleanup_interval_minutes: 1
  rescore_interval_minutes: 10
`)

// Load builds the configuration from defaults, an optional YAML file, and
// environment overrides, then validates it. A missing file at configPath is
// an error; pass an empty path to skip the file layer.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	// DEVLOGFEED_SERVER_PORT -> server.port, DEVLOGFEED_SPAM_REPOST_THRESHOLD
	// -> spam.repost_threshold. The first underscore separates the section;
	// the rest stay as the field name.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		trimmed := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(trimmed, "_", 2)
		if len(parts) == 1 {
			return trimmed
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in defaults without validation, for offline
// tooling that needs scoring parameters but no service identity.
func Default() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(defaultYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
