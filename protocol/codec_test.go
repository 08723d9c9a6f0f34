package protocol

import (
	"testing"

	"github.com/google/gofuzz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	frame := Encode(TopicRecord, ActionRead, "recordA", "0", `{"name":"sam"}`)

	msgs, errs := Decode(frame)
	require.Empty(t, errs)
	require.Len(t, msgs, 1)

	got := msgs[0]
	assert.Equal(t, TopicRecord, got.Topic)
	assert.Equal(t, ActionRead, got.Action)
	assert.Equal(t, []string{"recordA", "0", `{"name":"sam"}`}, got.Data)
}

func TestDecodeConcatenatedFrames(t *testing.T) {
	frame := Encode(TopicConnection, ActionChallenge) + Encode(TopicConnection, ActionAck)

	msgs, errs := Decode(frame)
	require.Empty(t, errs)
	require.Len(t, msgs, 2)
	assert.Equal(t, ActionChallenge, msgs[0].Action)
	assert.Equal(t, ActionAck, msgs[1].Action)
}

func TestDecodeIgnoresEmptyTrailingMessage(t *testing.T) {
	frame := Encode(TopicConnection, ActionPing)

	msgs, errs := Decode(frame)
	require.Empty(t, errs)
	require.Len(t, msgs, 1)
}

func TestDecodeMalformedDoesNotAbortRemainder(t *testing.T) {
	frame := "Z" + string(US) + "BOGUS" + string(RS) + Encode(TopicConnection, ActionPing)

	msgs, errs := Decode(frame)
	require.Len(t, errs, 1)
	require.Len(t, msgs, 1)
	assert.Equal(t, ActionPing, msgs[0].Action)
}

func TestFuzzRoundTrip(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(0, 5)
	topics := []Topic{TopicConnection, TopicAuth, TopicEvent, TopicRecord, TopicRPC, TopicPresence, TopicError}

	for i := 0; i < 200; i++ {
		var fields []string
		f.Fuzz(&fields)
		for j, field := range fields {
			// US/RS can never appear inside a field on the wire.
			fields[j] = sanitize(field)
		}

		topic := topics[i%len(topics)]
		action := Action("Z")
		frame := Encode(topic, action, fields...)

		msgs, errs := Decode(frame)
		require.Empty(t, errs)
		require.Len(t, msgs, 1)
		assert.Equal(t, topic, msgs[0].Topic)
		assert.Equal(t, action, msgs[0].Action)
		assert.Equal(t, fields, msgs[0].Data)
	}
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == rune(US) || r == rune(RS) {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
