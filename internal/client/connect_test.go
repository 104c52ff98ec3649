package client_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-delivery/internal/client"
	"ms-delivery/internal/config"
	"ms-delivery/internal/kafka"
	"ms-delivery/internal/logger"
	"ms-delivery/internal/models"
)

func TestConnect(t *testing.T) {
	log := logger.NewConsoleLogger()
	log.SetLevel(logger.ERROR)

	cfg := config.Load()
	cfg.Client.Token = ""
	_, err := client.Connect(cfg, log)
	assert.Error(t, err)

	require.NoError(t, client.DevLogin(cfg, "ana", "Ana", models.RoleCourier))
	c, err := client.Connect(cfg, log)
	require.NoError(t, err)
	assert.Nil(t, c.Feed)
	assert.NoError(t, client.RequireRole(c, models.RoleCourier))
	assert.Error(t, client.RequireRole(c, models.RoleAdmin))

	cfg.Client.ChangeFeed = "kafka"
	c, err = client.Connect(cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &kafka.Consumer{}, c.Feed)

	cfg.Client.ChangeFeed = "carrier-pigeon"
	_, err = client.Connect(cfg, log)
	assert.Error(t, err)
}
