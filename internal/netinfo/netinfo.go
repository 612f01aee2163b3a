// Package netinfo looks up the local addresses shown in startup messages.
package netinfo

import (
	"net"
	"strconv"
)

// LocalIPAddress returns the first non-loopback IPv4 address of an up
// interface, or "" when there is none.
func LocalIPAddress() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		if ip := firstIPv4(addrs); ip != "" {
			return ip
		}
	}
	return ""
}

func firstIPv4(addrs []net.Addr) string {
	for _, addr := range addrs {
		var ip net.IP
		switch a := addr.(type) {
		case *net.IPNet:
			ip = a.IP
		case *net.IPAddr:
			ip = a.IP
		}
		if v4 := ip.To4(); v4 != nil && !v4.IsLoopback() && !v4.IsLinkLocalUnicast() {
			return v4.String()
		}
	}
	return ""
}

// ListenAddress formats the address a server is reachable at, falling back
// to localhost when no LAN address is known.
func ListenAddress(port int) string {
	host := LocalIPAddress()
	if host == "" {
		host = "localhost"
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
