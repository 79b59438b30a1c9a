package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilansh-07/FintelAI/internal/common"
)

func testConfig() *common.Config {
	return &common.Config{
		LLM:       common.LLMConfig{Backend: common.BackendGroq, MaxAttempts: 3},
		Normalize: common.NormalizeConfig{MaxPages: 5},
		Cache:     common.CacheConfig{MaxEntries: 8},
		Pipeline:  common.PipelineConfig{Concurrency: 2},
	}
}

func TestNewFailsFastWithoutCredential(t *testing.T) {
	_, err := New(context.Background(), testConfig(), nil)
	require.ErrorIs(t, err, common.ErrConfiguration)
	assert.Equal(t, common.ExitConfiguration, common.ExitCode(err))

	cfg := testConfig()
	cfg.LLM.Backend = common.BackendGemini
	_, err = New(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestNewWiresGroqWithDurableCache(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.GroqAPIKey = "gsk_test"
	cfg.Cache.DSN = filepath.Join(t.TempDir(), "cache.db")

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })

	assert.Equal(t, "groq", a.Backend.Name())
	assert.NotNil(t, a.Orchestrator)
	assert.NotNil(t, a.Cache)
	assert.Len(t, a.closers, 1)
}
