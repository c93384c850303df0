package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/MyCarrier-DevOps/reference-find/internal/domain"
	"github.com/MyCarrier-DevOps/reference-find/internal/infrastructure/config"
)

func TestToAppConfig(t *testing.T) {
	reference := domain.NewConfiguration()
	reference.SetTargetBranch("develop")

	cfg := &config.Config{
		Reference:    reference,
		Database:     "ci",
		Store:        config.StoreRedis,
		GraphFile:    "graph.yaml",
		RepoPath:     "/src",
		Depth:        100,
		ListenAddr:   ":9090",
		RedisURL:     "redis://cache:6379/1",
		ReferenceTTL: time.Hour,
		GraphTTL:     30 * time.Second,
		Retry: config.Retry{
			Attempts: 5,
			Delay:    time.Second,
			MaxDelay: 10 * time.Second,
		},
		LogLevel:   "debug",
		LogAppName: "reference-find",
	}

	got := toAppConfig(cfg)

	assert.Equal(t, reference, got.Reference)
	assert.Equal(t, "ci", got.Database)
	assert.Equal(t, config.StoreRedis, got.Store)
	assert.Equal(t, "graph.yaml", got.GraphFile)
	assert.Equal(t, "/src", got.RepoPath)
	assert.Equal(t, 100, got.Depth)
	assert.Equal(t, ":9090", got.ListenAddr)
	assert.Equal(t, "redis://cache:6379/1", got.RedisURL)
	assert.Equal(t, time.Hour, got.ReferenceTTL)
	assert.Equal(t, 30*time.Second, got.GraphTTL)
	assert.Equal(t, uint(5), got.RetryAttempts)
	assert.Equal(t, time.Second, got.RetryDelay)
	assert.Equal(t, 10*time.Second, got.RetryMaxDelay)
	assert.Equal(t, "debug", got.LogLevel)
	assert.Equal(t, "reference-find", got.LogAppName)
}
