package config

import (
	"fmt"
	"os"
	"time"

	"github.com/naoina/toml"
)

// fileOptions mirrors Options but with plain-integer millisecond fields,
// the shape naoina/toml is happiest decoding, matching the teacher's own
// config-file convention of a dedicated on-disk struct distinct from the
// runtime one.
type fileOptions struct {
	SubscriptionTimeoutMS        int64  `toml:"subscription_timeout_ms"`
	RecordReadAckTimeoutMS       int64  `toml:"record_read_ack_timeout_ms"`
	RecordReadTimeoutMS          int64  `toml:"record_read_timeout_ms"`
	RecordDeleteTimeoutMS        int64  `toml:"record_delete_timeout_ms"`
	RPCAckTimeoutMS              int64  `toml:"rpc_ack_timeout_ms"`
	RPCResponseTimeoutMS         int64  `toml:"rpc_response_timeout_ms"`
	MaxReconnectAttempts         int    `toml:"max_reconnect_attempts"`
	ReconnectIntervalIncrementMS int64  `toml:"reconnect_interval_increment_ms"`
	MaxReconnectIntervalMS       int64  `toml:"max_reconnect_interval_ms"`
	Path                         string  `toml:"path"`
	RecordMergeStrategy          string  `toml:"record_merge_strategy"`
	ProviderACL                  string  `toml:"provider_acl"`
	ReconnectRateLimit           float64 `toml:"reconnect_rate_limit"`
}

// LoadFile reads a TOML configuration file into an Options, starting from
// Default() so any field absent from the file keeps its spec.md §6
// default.
func LoadFile(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return parse(data)
}

func parse(data []byte) (Options, error) {
	opts := Default()

	var f fileOptions
	f.fromOptions(opts)
	if err := toml.Unmarshal(data, &f); err != nil {
		return Options{}, fmt.Errorf("config: parse toml: %w", err)
	}
	return f.toOptions(), nil
}

func (f *fileOptions) fromOptions(o Options) {
	f.SubscriptionTimeoutMS = o.SubscriptionTimeout.Milliseconds()
	f.RecordReadAckTimeoutMS = o.RecordReadAckTimeout.Milliseconds()
	f.RecordReadTimeoutMS = o.RecordReadTimeout.Milliseconds()
	f.RecordDeleteTimeoutMS = o.RecordDeleteTimeout.Milliseconds()
	f.RPCAckTimeoutMS = o.RPCAckTimeout.Milliseconds()
	f.RPCResponseTimeoutMS = o.RPCResponseTimeout.Milliseconds()
	f.MaxReconnectAttempts = o.MaxReconnectAttempts
	f.ReconnectIntervalIncrementMS = o.ReconnectIntervalIncrement.Milliseconds()
	f.MaxReconnectIntervalMS = o.MaxReconnectInterval.Milliseconds()
	f.Path = o.Path
	f.RecordMergeStrategy = string(o.RecordMergeStrategy)
	f.ProviderACL = o.ProviderACL
	f.ReconnectRateLimit = o.ReconnectRateLimit
}

func (f *fileOptions) toOptions() Options {
	return Options{
		SubscriptionTimeout:        time.Duration(f.SubscriptionTimeoutMS) * time.Millisecond,
		RecordReadAckTimeout:       time.Duration(f.RecordReadAckTimeoutMS) * time.Millisecond,
		RecordReadTimeout:          time.Duration(f.RecordReadTimeoutMS) * time.Millisecond,
		RecordDeleteTimeout:        time.Duration(f.RecordDeleteTimeoutMS) * time.Millisecond,
		RPCAckTimeout:              time.Duration(f.RPCAckTimeoutMS) * time.Millisecond,
		RPCResponseTimeout:         time.Duration(f.RPCResponseTimeoutMS) * time.Millisecond,
		MaxReconnectAttempts:       f.MaxReconnectAttempts,
		ReconnectIntervalIncrement: time.Duration(f.ReconnectIntervalIncrementMS) * time.Millisecond,
		MaxReconnectInterval:       time.Duration(f.MaxReconnectIntervalMS) * time.Millisecond,
		Path:                       f.Path,
		RecordMergeStrategy:        MergeStrategyName(f.RecordMergeStrategy),
		ProviderACL:                f.ProviderACL,
		ReconnectRateLimit:         f.ReconnectRateLimit,
	}
}
