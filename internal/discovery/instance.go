package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Instance is a volt server found on the network
type Instance struct {
	// Name is the mDNS instance name (e.g., "workbench")
	Name string

	// Hostname is the mDNS hostname (e.g., "workbench.local.")
	Hostname string

	// IP is the advertised address, IPv4 preferred
	IP string

	// HTTPPort is the HTTP front-end port, 0 when disabled
	HTTPPort int

	// WSPort is the WebSocket front-end port, 0 when disabled
	WSPort int

	// Version is the server version from the TXT record
	Version string

	// Metadata contains every TXT record entry
	Metadata map[string]string

	// DiscoveredAt is when the instance was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the instance
func (i *Instance) String() string {
	return fmt.Sprintf("volt %s (%s) at %s http=%d ws=%d", i.Name, i.Version, i.IP, i.HTTPPort, i.WSPort)
}

// HTTPURL returns the HTTP base URL, or "" when HTTP is not served.
func (i *Instance) HTTPURL() string {
	if i.HTTPPort == 0 {
		return ""
	}
	return "http://" + net.JoinHostPort(i.IP, strconv.Itoa(i.HTTPPort))
}

// WebSocketURL returns the WebSocket URL, or "" when WebSocket is not served.
func (i *Instance) WebSocketURL() string {
	if i.WSPort == 0 {
		return ""
	}
	return "ws://" + net.JoinHostPort(i.IP, strconv.Itoa(i.WSPort)) + "/"
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (i *Instance) GetMetadata(key string) string {
	if i.Metadata == nil {
		return ""
	}
	return i.Metadata[key]
}
