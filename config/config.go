// Package config loads the handful of environment variables this server
// needs to start, the same direct os.Getenv style the rest of this stack
// uses instead of a config-file library.
package config

import (
	"fmt"
	"net"
	"os"
)

// Config holds the process-wide settings resolved at startup.
type Config struct {
	// IP is the address the media engine binds its transports to.
	IP net.IP
	// AnnouncedIP is advertised to remote peers in ICE candidates when the
	// bind address isn't publicly reachable (e.g. behind NAT). Optional.
	AnnouncedIP net.IP
	// BindAddr is the address the HTTP/WebSocket listener binds to.
	BindAddr string
	// WSPath is the path clients upgrade on.
	WSPath string
	// DefaultVcID is used when a connecting client doesn't specify one.
	DefaultVcID string
}

// Load reads IP, ANNOUNCED_IP, BIND_ADDR, WS_PATH and DEFAULT_VC_ID from the
// environment. IP is required and must parse as an IP literal; the rest
// fall back to sensible defaults.
func Load() (Config, error) {
	rawIP := os.Getenv("IP")
	if rawIP == "" {
		return Config{}, fmt.Errorf("config: IP is required")
	}
	ip := net.ParseIP(rawIP)
	if ip == nil {
		return Config{}, fmt.Errorf("config: IP %q is not a valid IP literal", rawIP)
	}

	var announced net.IP
	if raw := os.Getenv("ANNOUNCED_IP"); raw != "" {
		announced = net.ParseIP(raw)
		if announced == nil {
			return Config{}, fmt.Errorf("config: ANNOUNCED_IP %q is not a valid IP literal", raw)
		}
	}

	bindAddr := os.Getenv("BIND_ADDR")
	if bindAddr == "" {
		bindAddr = "0.0.0.0:3001"
	}

	wsPath := os.Getenv("WS_PATH")
	if wsPath == "" {
		wsPath = "/ws"
	}

	defaultVc := os.Getenv("DEFAULT_VC_ID")
	if defaultVc == "" {
		defaultVc = "dreamh"
	}

	return Config{
		IP:          ip,
		AnnouncedIP: announced,
		BindAddr:    bindAddr,
		WSPath:      wsPath,
		DefaultVcID: defaultVc,
	}, nil
}
