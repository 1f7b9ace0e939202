package chunking

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"ContextIndex/internal/modules/index/domain/index"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOversizeSplitterOnlySplitsLongChunks(t *testing.T) {
	ctx := context.Background()
	s, err := NewOversizeSplitter(ctx, 20, 0)
	require.NoError(t, err)

	long := strings.Repeat("alpha beta gamma ", 6)
	out, err := s.Split(ctx, []index.Chunk{
		{Content: "short head"},
		{Content: long, Metadata: map[string]any{"page": 3}},
		{Content: "short tail"},
	})
	require.NoError(t, err)
	require.Greater(t, len(out), 3)

	assert.Equal(t, "short head", out[0].Content)
	assert.Nil(t, out[0].Metadata)
	assert.Equal(t, "short tail", out[len(out)-1].Content)

	for i, c := range out[1 : len(out)-1] {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 20)
		assert.Equal(t, 3, c.Metadata["page"])
		assert.Equal(t, i, c.Metadata[MetaPartIndex])
	}
}

func TestNewOversizeSplitterRejectsZero(t *testing.T) {
	_, err := NewOversizeSplitter(context.Background(), 0, 0)
	assert.Error(t, err)
}
