package client

import (
	"errors"
	"fmt"
	"time"

	"ms-delivery/internal/auth"
	"ms-delivery/internal/config"
	"ms-delivery/internal/kafka"
	"ms-delivery/internal/logger"
	"ms-delivery/internal/models"
)

// Connect builds the remote backend the terminal apps use. With
// CHANGE_FEED=kafka change events come from the order change topic instead
// of the server's SSE stream.
func Connect(cfg *config.Config, log *logger.Logger) (*HTTP, error) {
	if cfg.Client.Token == "" {
		return nil, errors.New("DELIVERY_TOKEN not set")
	}
	c, err := NewHTTP(cfg.Client.APIURL, cfg.Client.Token, log)
	if err != nil {
		return nil, err
	}

	switch cfg.Client.ChangeFeed {
	case "", "sse":
	case "kafka":
		c.Feed = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ChangeTopic, log)
	default:
		return nil, fmt.Errorf("unknown CHANGE_FEED %q", cfg.Client.ChangeFeed)
	}
	log.Info("CLIENT", fmt.Sprintf("Signed in as %s (%s) against %s", c.Self().ID, c.Self().Role, c.BaseURL))
	return c, nil
}

// DevLogin mints a token for servers running without an OIDC issuer and
// stores it in cfg.
func DevLogin(cfg *config.Config, id, name string, role models.Role) error {
	tok, err := auth.DevToken(models.Actor{ID: id, Name: name, Role: role}, 12*time.Hour)
	if err != nil {
		return fmt.Errorf("mint dev token: %w", err)
	}
	cfg.Client.Token = tok
	return nil
}

// RequireRole fails when the signed-in actor cannot use an app.
func RequireRole(b Backend, role models.Role) error {
	if got := b.Self().Role; got != role {
		return fmt.Errorf("this app is for %s accounts, token is %s", role, got)
	}
	return nil
}
