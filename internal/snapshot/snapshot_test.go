package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpsentry/mcpsentry/internal/model"
)

func TestSanitize(t *testing.T) {
	assert.Equal(t, "claude_desktop", Sanitize("claude desktop"))
	assert.Equal(t, "a_b-c_1", Sanitize("a/b-c:1"))
}

func TestLoadMissingReturnsNil(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	snap, err := s.Load("claude", "server-a")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	want := model.Snapshot{
		CapturedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Tools: map[string]model.ToolDigest{
			"read_file": {DescriptionDigest: Digest("reads a file"), SchemaDigest: Digest("{}")},
		},
	}
	require.NoError(t, s.Save("claude", "server-a", want))

	got, err := s.Load("claude", "server-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Tools, got.Tools)
	assert.True(t, want.CapturedAt.Equal(got.CapturedAt))
}

func TestDigestIdempotence(t *testing.T) {
	// Snapshot(Tools) -> Diff against Snapshot(Tools) is empty: a digest is
	// a pure function of content.
	assert.Equal(t, Digest("same text"), Digest("same text"))
	assert.NotEqual(t, Digest("same text"), Digest("different text"))
}
