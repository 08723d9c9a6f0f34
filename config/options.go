// Package config holds the client-wide configuration table from spec.md
// §6, its TOML-file form (matching the teacher's own config-file library,
// github.com/naoina/toml), and an optional hot-reload watcher for the
// subset of fields that do not describe an already-established
// connection.
package config

import "time"

// MergeStrategyName selects a built-in conflict-resolution policy for
// RecordEngine (spec.md §4.9). Either built-in may be overridden for a
// whole engine with record.Engine.SetMergeStrategy; there is no per-record
// override. This only controls the default.
type MergeStrategyName string

const (
	MergeRemoteWins MergeStrategyName = "REMOTE_WINS"
	MergeLocalWins  MergeStrategyName = "LOCAL_WINS"
)

// Options is the client-wide configuration table of spec.md §6.
type Options struct {
	// SubscriptionTimeout guards EVENT/RECORD subscribe, unsubscribe and
	// listen acks.
	SubscriptionTimeout time.Duration
	// RecordReadAckTimeout guards the SUBSCRIBE ack for a record.
	RecordReadAckTimeout time.Duration
	// RecordReadTimeout guards the READ response for a record.
	RecordReadTimeout time.Duration
	// RecordDeleteTimeout guards a record delete ack.
	RecordDeleteTimeout time.Duration
	// RPCAckTimeout guards an RPC request ack.
	RPCAckTimeout time.Duration
	// RPCResponseTimeout guards an RPC response.
	RPCResponseTimeout time.Duration
	// MaxReconnectAttempts bounds the reconnect budget.
	MaxReconnectAttempts int
	// ReconnectIntervalIncrement is the linear backoff step.
	ReconnectIntervalIncrement time.Duration
	// MaxReconnectInterval upper-bounds the backoff.
	MaxReconnectInterval time.Duration
	// Path is appended to a URL missing an explicit path.
	Path string
	// RecordMergeStrategy is the default conflict resolver.
	RecordMergeStrategy MergeStrategyName

	// ProviderACL, if non-empty, is a github.com/hashicorp/go-bexpr
	// boolean expression evaluated against {Name string} before a
	// rpc.Provide call is allowed to register (§4.7 [DOMAIN]). Empty
	// means every provide call is allowed, matching spec.md's
	// unconditional behavior.
	ProviderACL string

	// ReconnectRateLimit caps the rate of reconnect dial attempts,
	// independent of the backoff schedule, guarding against busy-looping
	// under clock skew or a misbehaving hub.
	ReconnectRateLimit float64 // dials per second; 0 disables the limiter
}

// Default returns the configuration table of spec.md §6.
func Default() Options {
	return Options{
		SubscriptionTimeout:        2000 * time.Millisecond,
		RecordReadAckTimeout:       1000 * time.Millisecond,
		RecordReadTimeout:          3000 * time.Millisecond,
		RecordDeleteTimeout:        3000 * time.Millisecond,
		RPCAckTimeout:              6000 * time.Millisecond,
		RPCResponseTimeout:         10000 * time.Millisecond,
		MaxReconnectAttempts:       5,
		ReconnectIntervalIncrement: 4000 * time.Millisecond,
		MaxReconnectInterval:       180000 * time.Millisecond,
		Path:                       "/deepstream",
		RecordMergeStrategy:        MergeRemoteWins,
		ReconnectRateLimit:         1,
	}
}
