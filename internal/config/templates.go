package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Boursicotor Order Engine Configuration

[trading]
# Trading mode: "live" or "paper"
mode = "paper"
# Default exchange: NSE, BSE
default_exchange = "NSE"
# Maximum quantity accepted per order
max_order_qty = 10000
# Submit strategy-generated orders without manual review
auto_submit = false

[reconcile]
# How often the reconciliation loop runs
interval = "1m"
# Retry attempts for transient gateway failures during reconciliation
max_attempts = 3

[gateway]
# Bounded timeout for submit/cancel/query calls
call_timeout = "10s"
# Starting cash for the simulated venue (paper mode only)
initial_balance = 1000000.0

[store]
# SQLite database path (defaults to the config directory)
# path = ""
`

const credentialsTemplate = `# Boursicotor Credentials
# Required only for live mode.

[kite]
api_key = ""
api_secret = ""
user_id = ""
`

// createTemplateConfig writes a template config.toml if none exists.
func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.WriteFile(path, []byte(configTemplate), 0600); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}

// createTemplateCredentials writes a template credentials.toml if none exists.
func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}
	return nil
}
