package instance

import (
	"os"

	"github.com/petalpost/storefront-backend/pkg/env"
)

// ID names this process in logs and lock values: STOREFRONT_INSTANCE_ID,
// then the platform dyno name, then the hostname.
func ID() string {
	if id := env.First("STOREFRONT_INSTANCE_ID", "DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
