package index

import (
	"context"
	"errors"
	"testing"
	"time"

	"ContextIndex/pkg/xerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccessOp(t *testing.T) {
	op, err := ParseAccessOp("allow")
	require.NoError(t, err)
	assert.Equal(t, AccessGrant, op)

	op, err = ParseAccessOp(" Revoke ")
	require.NoError(t, err)
	assert.Equal(t, AccessRevoke, op)

	_, err = ParseAccessOp("drop")
	assert.ErrorIs(t, err, ErrInvalidAccessOp)
}

func TestScopeValidate(t *testing.T) {
	var none *Scope
	assert.NoError(t, none.Validate())
	assert.NoError(t, (&Scope{Type: ScopeProvider, Values: []string{"files"}}).Validate())
	assert.ErrorIs(t, (&Scope{Type: ScopeSource}).Validate(), ErrInvalidScope)
	assert.ErrorIs(t, (&Scope{Type: ScopeSource, Values: []string{" "}}).Validate(), ErrInvalidScope)
	assert.ErrorIs(t, (&Scope{Type: "folder", Values: []string{"a"}}).Validate(), ErrInvalidScope)
}

func TestModifiedComparisonIsSecondPrecision(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	assert.False(t, IsOlder(base, base.Add(500*time.Millisecond)))
	assert.True(t, IsOlder(base, base.Add(time.Second)))
	assert.Equal(t, base, NormalizeModified(base.Add(900*time.Millisecond).In(time.FixedZone("x", 3600))))
}

func TestErrorClasses(t *testing.T) {
	assert.True(t, IsRecoverable(ErrSourceNotFound))
	assert.True(t, IsRecoverable(xerr.Wrap(ErrEmbedding, errors.New("timeout"))))
	assert.True(t, IsRecoverable(ErrInvalidScope))
	assert.False(t, IsRecoverable(errors.New("driver: bad connection")))
	assert.False(t, IsRecoverable(nil))

	wrapped := StoreError("delete docs", context.DeadlineExceeded)
	assert.ErrorIs(t, wrapped, ErrStore)
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
	assert.False(t, IsRecoverable(wrapped))

	assert.Same(t, ErrSourceNotFound, StoreError("declare", ErrSourceNotFound))
	assert.NoError(t, StoreError("noop", nil))
}

func TestInDocumentValidate(t *testing.T) {
	ok := InDocument{SourceID: "a", UserIDs: []string{"u1"}, Chunks: []Chunk{{Content: "x"}}}
	assert.NoError(t, ok.Validate())

	cases := []InDocument{
		{SourceID: " ", UserIDs: []string{"u1"}, Chunks: []Chunk{{Content: "x"}}},
		{SourceID: "a", UserIDs: []string{" "}, Chunks: []Chunk{{Content: "x"}}},
		{SourceID: "a", UserIDs: []string{"u1"}},
	}
	for _, c := range cases {
		assert.ErrorIs(t, c.Validate(), ErrInvalidDocument)
	}
}
