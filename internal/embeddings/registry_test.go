package embeddings

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryGetCreatesAndCaches(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	cfg := ProviderConfig{Provider: "fastembed", Model: "bge-small-en-v1.5"}

	p1, err := r.Get(context.Background(), "default", cfg)
	if err != nil {
		t.Skipf("fastembed model unavailable in this environment: %v", err)
	}
	p2, err := r.Get(context.Background(), "default", cfg)
	require.NoError(t, err)
	assert.Same(t, p1, p2)
}

func TestRegistryConcurrentGetSharesInit(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	cfg := ProviderConfig{Provider: "fastembed", Model: "bge-small-en-v1.5"}

	var wg sync.WaitGroup
	results := make([]Provider, 8)
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = r.Get(context.Background(), "shared", cfg)
		}(i)
	}
	wg.Wait()

	if errs[0] != nil {
		t.Skipf("fastembed model unavailable in this environment: %v", errs[0])
	}
	for i := 1; i < 8; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
}

func TestRegistryDisposeRemovesHandle(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	cfg := ProviderConfig{Provider: "fastembed", Model: "bge-small-en-v1.5"}
	_, err := r.Get(context.Background(), "default", cfg)
	if err != nil {
		t.Skipf("fastembed model unavailable in this environment: %v", err)
	}

	require.NoError(t, r.Dispose("default"))
	assert.Empty(t, r.Statuses())
}
