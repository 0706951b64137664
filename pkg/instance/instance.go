package instance

import (
	"os"
	"strings"

	"github.com/julianshen/twspoc/pkg/env"
)

const defaultID = "notifsync-0"

// GetID identifies this process in logs: NOTIFSYNC_INSTANCE_ID, then DYNO, then the
// hostname.
func GetID() string {
	if id := env.Get("NOTIFSYNC_INSTANCE_ID", ""); id != "" {
		return id
	}
	if id := env.Get("DYNO", ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && strings.TrimSpace(host) != "" {
		return host
	}
	return defaultID
}
