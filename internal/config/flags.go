package config

import (
	"flag"
	"os"
	"time"
)

const (
	defaultMonitorURL      = "http://localhost:8080"
	defaultMonitorInterval = 5 * time.Second
)

// parses CLI flags for the status monitor
func ParseMonitorFlags() MonitorFlags {
	return parseMonitorFlags(os.Args[1:])
}

func parseMonitorFlags(args []string) MonitorFlags {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	url := fs.String("url", envOr("GATEWAY_URL", defaultMonitorURL), "base URL of the gateway")
	interval := fs.Duration("interval", defaultMonitorInterval, "how often to poll /status")
	fs.Parse(args) //nolint:errcheck,gosec // G104: ExitOnError flag set handles errors

	if *interval < time.Second {
		*interval = time.Second
	}

	return MonitorFlags{URL: *url, Interval: *interval}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
