// Package instance names the running process in logs so replicas of the same
// worker can be told apart.
package instance

import (
	"os"

	"github.com/angelmondragon/stockledger/pkg/env"
)

const (
	envInstanceID = "STOCKLEDGER_INSTANCE_ID"
	defaultID     = "stockledger-0"
)

// ID returns STOCKLEDGER_INSTANCE_ID, falling back to the hostname.
func ID() string {
	if id := env.Get(envInstanceID, ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return defaultID
}
