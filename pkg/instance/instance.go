package instance

import (
	"os"
	"strings"
)

const envWorkerID = "SETTLEMENT_WORKER_ID"

// GetID names this process in logs and lock ownership. It prefers the
// configured worker id, then the platform dyno name, then the hostname.
func GetID() string {
	for _, key := range []string{envWorkerID, "DYNO"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
