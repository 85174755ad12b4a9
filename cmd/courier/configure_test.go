package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skobkin/courier/internal/config"
)

func changedSet(names ...string) func(string) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

func TestApplyConfigureOnlyChangedFlags(t *testing.T) {
	cfg := config.Default()
	cfg.Telegram.APIID = 1
	cfg.Telegram.APIHash = "old"
	cfg.Logging.Level = "info"

	next := applyConfigure(cfg, configureOptions{APIHash: "new", LogLevel: "debug"}, changedSet("api-hash"))

	assert.Equal(t, 1, next.Telegram.APIID)
	assert.Equal(t, "new", next.Telegram.APIHash)
	assert.Equal(t, "info", next.Logging.Level)
}

func TestApplyConfigureLoginModesExclusive(t *testing.T) {
	cfg := config.Default()
	cfg.Telegram.Phone = "+100"

	next := applyConfigure(cfg, configureOptions{BotToken: "123:abc"}, changedSet("bot-token"))
	assert.Equal(t, "123:abc", next.Telegram.BotToken)
	assert.Empty(t, next.Telegram.Phone)

	next = applyConfigure(next, configureOptions{Phone: "+200"}, changedSet("phone"))
	assert.Equal(t, "+200", next.Telegram.Phone)
	assert.Empty(t, next.Telegram.BotToken)
}

func TestApplyConfigureMetrics(t *testing.T) {
	cfg := config.Default()

	next := applyConfigure(cfg, configureOptions{MetricsAddr: "127.0.0.1:9000"}, changedSet("metrics"))
	assert.True(t, next.Metrics.Enabled)
	assert.Equal(t, "127.0.0.1:9000", next.Metrics.Addr)

	next = applyConfigure(next, configureOptions{}, changedSet("metrics"))
	assert.False(t, next.Metrics.Enabled)
	assert.Equal(t, "127.0.0.1:9000", next.Metrics.Addr)
}
