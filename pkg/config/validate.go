package config

import (
	"errors"
	"fmt"
	"slices"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Backends) == 0 {
		errs = append(errs, fmt.Errorf("at least one backend must be configured"))
	}
	for id, bc := range c.Backends {
		if !slices.Contains(KnownBackends, id) {
			errs = append(errs, fmt.Errorf("backends.%s: unknown backend id (known: %v)", id, KnownBackends))
		}
		if bc.URL == "" {
			errs = append(errs, fmt.Errorf("backends.%s.url is required", id))
		}
	}

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	switch c.Storage.Type {
	case "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	if c.Usage.DailyLimit < 0 {
		errs = append(errs, fmt.Errorf("usage.daily_limit must be >= 0, got %d", c.Usage.DailyLimit))
	}

	for i, srv := range c.MCP.Servers {
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("mcp.servers[%d].name is required", i))
		}
		if srv.URL == "" {
			errs = append(errs, fmt.Errorf("mcp.servers[%d].url is required", i))
		}
		switch srv.Transport {
		case "", "sse", "streamable-http":
			// valid
		default:
			errs = append(errs, fmt.Errorf("mcp.servers[%d].transport must be \"sse\" or \"streamable-http\", got %q", i, srv.Transport))
		}
	}

	return errors.Join(errs...)
}
