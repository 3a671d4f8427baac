package cmd

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/ratewatch/ratewatch/internal/client"
	"github.com/ratewatch/ratewatch/internal/config"
)

// resolveServerURL picks --server / RATEWATCH_SERVER_URL, falling back to
// the configured listen address.
func resolveServerURL(ctx context.Context) (string, error) {
	if explicit := strings.TrimSpace(viper.GetString("server_url")); explicit != "" {
		return explicit, nil
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	host := cfg.Server.Host
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port)), nil
}

func newAPIClient(ctx context.Context) (*client.Client, error) {
	base, err := resolveServerURL(ctx)
	if err != nil {
		return nil, err
	}
	return client.New(base)
}
