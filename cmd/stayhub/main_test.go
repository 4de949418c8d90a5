package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayhub/internal/app/policies"
	"stayhub/internal/infra/config"
	"stayhub/internal/infra/obs"
)

// A dev config with no Mongo URI and no gateway credentials must wire the
// fully in-memory flavor without reaching for the network.
func TestBuildApplicationInMemoryFlavor(t *testing.T) {
	cfg := config.Config{
		Env:                "dev",
		HTTPAddr:           ":0",
		IdempotencyTTL:     time.Hour,
		OutboxPollInterval: 500 * time.Millisecond,
		PayoutPollInterval: time.Minute,
		GraceMinutes:       45,
	}

	app, err := buildApplication(cfg, obs.NewLogger("test"))
	require.NoError(t, err)

	assert.Nil(t, app.mongoClient)
	assert.Nil(t, app.producer)
	assert.Nil(t, app.relay)
	assert.NotNil(t, app.commandBus)
	assert.NoError(t, app.ready())

	got := app.settings.Get(context.Background(), policies.SettingGracePeriodMinutes, "")
	assert.Equal(t, "45", got)
}
