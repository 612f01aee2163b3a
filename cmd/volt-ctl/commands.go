package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voltlabs/volt/internal/discovery"
	"github.com/voltlabs/volt/internal/logging"
)

var scanTimeout int

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find volt servers on the local network",
	Long: `Browse for volt servers using mDNS/DNS-SD.

Servers started with 'volt-server serve --advertise' announce their HTTP
and WebSocket ports in TXT records.`,
	Example: `  # Scan for 5 seconds (default)
  volt-ctl discover

  # Longer scan for busy networks
  volt-ctl discover --timeout 15`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().IntVar(&scanTimeout, "timeout", 5, "Scan timeout in seconds")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	if err := logging.Initialize(logLevel); err != nil {
		return err
	}
	defer logging.Sync()

	fmt.Printf("Scanning for volt servers (timeout: %ds)...\n\n", scanTimeout)

	scanner := discovery.NewScanner()
	scanner.Timeout = time.Duration(scanTimeout) * time.Second
	instances, err := scanner.Scan(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(instances) == 0 {
		fmt.Println("No servers found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Start the server with --advertise")
		fmt.Println("  - Check that multicast traffic is allowed on this network")
		fmt.Println("  - Try increasing --timeout")
		return nil
	}

	fmt.Printf("Found %d server(s):\n\n", len(instances))
	for i, inst := range instances {
		fmt.Printf("%d. %s\n", i+1, inst.Name)
		fmt.Printf("   Host:      %s (%s)\n", inst.Hostname, inst.IP)
		if url := inst.HTTPURL(); url != "" {
			fmt.Printf("   HTTP:      %s\n", url)
		}
		if url := inst.WebSocketURL(); url != "" {
			fmt.Printf("   WebSocket: %s\n", url)
		}
		if inst.Version != "" {
			fmt.Printf("   Version:   %s\n", inst.Version)
		}
		fmt.Println()
	}
	fmt.Println("Use 'volt-ctl watch <ws-url>' to follow broadcasts")
	return nil
}

var watchCmd = &cobra.Command{
	Use:   "watch <ws-url>",
	Short: "Print messages broadcast by a server",
	Long: `Connect to a volt WebSocket front-end and print every message it
broadcasts until interrupted or the server disconnects. Binary messages
are printed as their size.`,
	Example: `  volt-ctl watch ws://192.168.1.20:8081/`,
	Args:    cobra.ExactArgs(1),
	RunE:    runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := logging.Initialize(logLevel); err != nil {
		return err
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return watch(ctx, args[0], os.Stdout)
}

// watch prints broadcasts from url to out until ctx ends or the server
// closes the connection.
func watch(ctx context.Context, url string, out io.Writer) error {
	dialer := gorilla.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer conn.Close()
	logging.Debug("Connected", zap.String("url", url))

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || isClosed(err) {
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}
		switch kind {
		case gorilla.TextMessage:
			fmt.Fprintf(out, "%s %s\n", time.Now().Format(time.TimeOnly), data)
		case gorilla.BinaryMessage:
			fmt.Fprintf(out, "%s <binary %d bytes>\n", time.Now().Format(time.TimeOnly), len(data))
		}
	}
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway,
			gorilla.CloseNoStatusReceived, gorilla.CloseAbnormalClosure)
}
