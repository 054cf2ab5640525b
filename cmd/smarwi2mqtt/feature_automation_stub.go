//go:build no_automation

package main

import (
	"log/slog"

	"github.com/jirutka/smarwi2mqtt/internal/registry"
	"github.com/jirutka/smarwi2mqtt/internal/web"
)

type autoStopper struct{}

func (a *autoStopper) Stop() {}

func initAutomation(_ *registry.Registry, _ *Config, _ *slog.Logger) (*autoStopper, []web.ServerOption) {
	return &autoStopper{}, nil
}
