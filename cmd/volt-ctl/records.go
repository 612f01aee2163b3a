package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/voltlabs/volt/internal/diagnostics"
)

var topN int

var recordsCmd = &cobra.Command{
	Use:   "records <jsonl-file>",
	Short: "Summarize a call record capture",
	Long: `Summarize a JSON-lines capture written by 'volt-server serve
--record-dir'. Records captured both pending and completed are counted
once.`,
	Example: `  volt-ctl records ./captures/calls-20260301-120000.jsonl`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		s, err := diagnostics.Analyze(f)
		if err != nil {
			return err
		}
		printSummary(os.Stdout, args[0], s)
		return nil
	},
}

func init() {
	recordsCmd.Flags().IntVar(&topN, "top", 10, "Number of URLs to list")
	rootCmd.AddCommand(recordsCmd)
}

func printSummary(w io.Writer, name string, s *diagnostics.Summary) {
	fmt.Fprintf(w, "=== Volt Call Records ===\n")
	fmt.Fprintf(w, "File:    %s\n", name)
	fmt.Fprintf(w, "Records: %d (%d pending)\n", s.Records, s.Pending)
	if s.Records == 0 {
		return
	}
	fmt.Fprintf(w, "Span:    %s .. %s\n", s.First.Format(time.RFC3339), s.Last.Format(time.RFC3339))
	fmt.Fprintf(w, "Latency: avg %s, max %s\n\n", s.AvgLatency, s.MaxLatency)

	fmt.Fprintln(w, "By connection:")
	for _, kind := range []diagnostics.ConnectionType{diagnostics.ConnectionHTTP, diagnostics.ConnectionWebSocket} {
		if n := s.ByKind[kind]; n > 0 {
			fmt.Fprintf(w, "  %-10s %d\n", kind, n)
		}
	}

	fmt.Fprintln(w, "\nBy status:")
	for _, code := range s.Statuses() {
		fmt.Fprintf(w, "  %-10d %d\n", code, s.ByStatus[code])
	}

	fmt.Fprintln(w, "\nTop URLs:")
	for _, u := range s.TopURLs(topN) {
		fmt.Fprintf(w, "  %6d  %s\n", u.Count, u.URL)
	}

	if len(s.Malformed) > 0 {
		fmt.Fprintf(w, "\nSkipped %d malformed line(s), first at line %d\n", len(s.Malformed), s.Malformed[0])
	}
}
