package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsRecoverable(t *testing.T) {
	err := New(KindDatabase, SeverityMedium, "sqlengine", "exec", errors.New("locked"))
	assert.True(t, err.Recoverable)

	critical := New(KindDatabase, SeverityCritical, "sqlengine", "open", errors.New("corrupt"))
	assert.False(t, critical.Recoverable)
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := New(KindValidation, SeverityLow, "search", "Search", inner)
	require.ErrorIs(t, err, inner)
}

func TestUserMessageByKind(t *testing.T) {
	cases := map[Kind]string{
		KindPersistence: "Storage is unavailable or out of space. Clear browser storage or export data to free space.",
		KindValidation:  "The request was invalid.",
	}
	for kind, want := range cases {
		err := New(kind, SeverityMedium, "c", "op", nil)
		assert.Equal(t, want, err.UserMessage())
	}
}

func TestWithChaining(t *testing.T) {
	err := New(KindEmbedding, SeverityMedium, "embeddings", "generate", nil).
		WithAction("retry").
		WithRequestID("req-1").
		WithParams(map[string]any{"collection": "default"})

	assert.Equal(t, "retry", err.SuggestedAction)
	assert.Equal(t, "req-1", err.RequestID)
	assert.Equal(t, "default", err.Params["collection"])
}
