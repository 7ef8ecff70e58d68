package embeddings

import (
	"testing"
)

// TestEmbedderInterface verifies that Service and FastEmbedProvider satisfy
// Embedder. This will fail to compile if the interface is not satisfied.
func TestEmbedderInterface(t *testing.T) {
	var _ Embedder = (*Service)(nil)
	var _ Embedder = (*FastEmbedProvider)(nil)
	t.Log("Service and FastEmbedProvider correctly implement Embedder")
}
