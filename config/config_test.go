package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	o := Default()
	assert.Equal(t, 2000*time.Millisecond, o.SubscriptionTimeout)
	assert.Equal(t, 1000*time.Millisecond, o.RecordReadAckTimeout)
	assert.Equal(t, 3000*time.Millisecond, o.RecordReadTimeout)
	assert.Equal(t, 3000*time.Millisecond, o.RecordDeleteTimeout)
	assert.Equal(t, 6000*time.Millisecond, o.RPCAckTimeout)
	assert.Equal(t, 10000*time.Millisecond, o.RPCResponseTimeout)
	assert.Equal(t, 5, o.MaxReconnectAttempts)
	assert.Equal(t, 4000*time.Millisecond, o.ReconnectIntervalIncrement)
	assert.Equal(t, 180000*time.Millisecond, o.MaxReconnectInterval)
	assert.Equal(t, "/deepstream", o.Path)
	assert.Equal(t, MergeRemoteWins, o.RecordMergeStrategy)
}

func TestParseTOMLOverridesOnlyGivenFields(t *testing.T) {
	data := []byte(`
path = "/custom"
rpc_ack_timeout_ms = 9000
`)
	o, err := parse(data)
	require.NoError(t, err)

	assert.Equal(t, "/custom", o.Path)
	assert.Equal(t, 9000*time.Millisecond, o.RPCAckTimeout)
	// untouched fields keep their default
	assert.Equal(t, 2000*time.Millisecond, o.SubscriptionTimeout)
}

func TestAllowProvideEmptyACLAllowsAll(t *testing.T) {
	ok, err := AllowProvide("", "anything")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllowProvideExpression(t *testing.T) {
	ok, err := AllowProvide(`name == "addTwo"`, "addTwo")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = AllowProvide(`name == "addTwo"`, "subtractTwo")
	require.NoError(t, err)
	assert.False(t, ok)
}
