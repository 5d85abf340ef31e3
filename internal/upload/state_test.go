package upload

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateText(t *testing.T) {
	for s := SelectCategory; s <= Cancelled; s++ {
		b, err := s.MarshalText()
		require.NoError(t, err)

		var back State
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, s, back)
	}

	var s State
	assert.Error(t, s.UnmarshalText([]byte("nowhere")))
	assert.Equal(t, "state(42)", State(42).String())
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, Done.Terminal())
	assert.True(t, Cancelled.Terminal())
	assert.False(t, Committed.Terminal())
	assert.False(t, AwaitFile.Terminal())
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeSingle, "single": ModeSingle, " Bulk ": ModeBulk, "BATCH": ModeBatch} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("stream")
	assert.Error(t, err)
}

func TestSessionJSON(t *testing.T) {
	cat := uuid.New()
	title := "Dune"
	s := NewSession(9, ModeBatch, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	s.State = AwaitAuthor
	s.CategoryID = &cat
	s.Current = &Record{FileReference: "f", FileKind: "pdf", Title: title}
	s.Queue = []Record{{FileReference: "q", FileKind: "audio", Title: "Queued"}}

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"state":"await_author"`)

	var back Session
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, *s, back)
}
