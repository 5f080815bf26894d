package qualtrics

import (
	"github.com/THIS-Institute/thiscovery-surveys/internal/config"
	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"
)

// NewClients builds one client per configured account.
func NewClients(cfg config.QualtricsConfig, log logger.Logger, opts ...Option) map[string]*Client {
	clients := make(map[string]*Client, len(cfg.Accounts))
	for _, account := range cfg.Accounts {
		clients[account.Name] = New(account, cfg, log, opts...)
	}
	return clients
}

// Sources exposes the clients as link sources keyed by account.
func Sources(clients map[string]*Client) personallinks.LinkSources {
	sources := make(personallinks.LinkSources, len(clients))
	for name, c := range clients {
		sources[name] = c
	}
	return sources
}
