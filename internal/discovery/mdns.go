package discovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/voltlabs/volt/internal/logging"
	"go.uber.org/zap"
)

const (
	// ServiceType is the mDNS service type volt servers advertise
	ServiceType = "_volt._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for discovery
	DefaultScanTimeout = 5 * time.Second

	txtHTTPPort = "http_port"
	txtWSPort   = "ws_port"
	txtVersion  = "version"
)

// Advertisement is a registered mDNS service.
type Advertisement struct {
	server *zeroconf.Server
	once   sync.Once
}

// Advertise registers instance on the local network. Ports that are 0 are
// omitted. An empty instance uses the host name.
func Advertise(instance string, httpPort, wsPort int, version string) (*Advertisement, error) {
	if httpPort == 0 && wsPort == 0 {
		return nil, errors.New("nothing to advertise: no port is served")
	}
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("cannot determine host name: %w", err)
		}
		instance = host
	}

	port := httpPort
	if port == 0 {
		port = wsPort
	}

	txt := txtRecords(httpPort, wsPort, version)
	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	logging.Info("Advertising over mDNS",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Strings("txt", txt),
	)
	return &Advertisement{server: server}, nil
}

// Shutdown withdraws the advertisement.
func (a *Advertisement) Shutdown() {
	a.once.Do(a.server.Shutdown)
}

func txtRecords(httpPort, wsPort int, version string) []string {
	var txt []string
	if httpPort != 0 {
		txt = append(txt, txtHTTPPort+"="+strconv.Itoa(httpPort))
	}
	if wsPort != 0 {
		txt = append(txt, txtWSPort+"="+strconv.Itoa(wsPort))
	}
	if version != "" {
		txt = append(txt, txtVersion+"="+version)
	}
	return txt
}

// Scanner handles mDNS discovery of volt servers
type Scanner struct {
	// Timeout is the maximum time to wait for responses
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan browses for volt servers until the timeout or ctx ends.
func (s *Scanner) Scan(ctx context.Context) ([]*Instance, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var mu sync.Mutex
	found := make([]*Instance, 0)
	seen := make(map[string]bool)

	err := s.browse(ctx, func(inst *Instance) bool {
		mu.Lock()
		defer mu.Unlock()
		if !seen[inst.Name] {
			seen[inst.Name] = true
			found = append(found, inst)
		}
		return false
	})
	if err != nil {
		return nil, err
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	return append([]*Instance(nil), found...), nil
}

// WaitFor browses until the instance called name answers.
func (s *Scanner) WaitFor(ctx context.Context, name string) (*Instance, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	result := make(chan *Instance, 1)
	err := s.browse(ctx, func(inst *Instance) bool {
		if inst.Name != name {
			return false
		}
		select {
		case result <- inst:
		default:
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	select {
	case inst := <-result:
		return inst, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("instance %s not found within timeout", name)
	}
}

// browse feeds parsed instances to fn until ctx ends or fn returns true.
func (s *Scanner) browse(ctx context.Context, fn func(*Instance) bool) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if inst := parseServiceEntry(entry); inst != nil && fn(inst) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	return nil
}

// parseServiceEntry converts a zeroconf service entry to an Instance.
// Returns nil if the entry has no name or address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Instance {
	if entry.Instance == "" {
		return nil
	}

	// Prefer IPv4
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	inst := &Instance{
		Name:         entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Version:      metadata[txtVersion],
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}

	inst.HTTPPort = txtPort(metadata, txtHTTPPort)
	inst.WSPort = txtPort(metadata, txtWSPort)
	if inst.HTTPPort == 0 && inst.WSPort == 0 {
		inst.HTTPPort = entry.Port
	}
	return inst
}

func txtPort(metadata map[string]string, key string) int {
	port, err := strconv.Atoi(metadata[key])
	if err != nil || port < 0 || port > 65535 {
		return 0
	}
	return port
}
