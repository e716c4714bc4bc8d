package commands

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/trustgate/trustgate/internal/config"
	"github.com/trustgate/trustgate/internal/ledger"
)

func newLedgerCmd() *cobra.Command {
	var requestID, endpoint, status, since string
	var limit int

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Query the call ledger",
		Example: `  trustgate ledger
  trustgate ledger --status failure
  trustgate ledger --request-id 7f3c...
  trustgate ledger --endpoint get_risk_findings --since 1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.Ledger.Backend != "sqlite" {
				return fmt.Errorf("ledger queries need the sqlite backend (current: %s)", cfg.Ledger.Backend)
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

			sink, err := ledger.NewSQLiteSink(cfg.Ledger.Path, logger)
			if err != nil {
				return fmt.Errorf("opening ledger db: %w", err)
			}
			defer sink.Close() //nolint:errcheck // best-effort cleanup

			var sinceTime string
			if since != "" {
				dur, err := time.ParseDuration(since)
				if err != nil {
					return fmt.Errorf("invalid duration %q: %w", since, err)
				}
				sinceTime = time.Now().Add(-dur).UTC().Format(time.RFC3339)
			}

			records, err := sink.Query(ledger.QueryOpts{
				RequestID: requestID,
				Endpoint:  endpoint,
				Status:    status,
				Since:     sinceTime,
				Limit:     limit,
			})
			if err != nil {
				return err
			}

			if len(records) == 0 {
				fmt.Println("No ledger records found.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "TIME\tCALL\tREQUEST\tENDPOINT\tSTATUS\tLATENCY\n") //nolint:errcheck // CLI output
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%dms\n", //nolint:errcheck // CLI output
					r.Timestamp, short(r.CallID), short(r.RequestID), r.Endpoint, r.Status, r.LatencyMs)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&requestID, "request-id", "", "filter by request ID")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "filter by upstream endpoint")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (success, failure, degraded)")
	cmd.Flags().StringVar(&since, "since", "", "show records since duration (e.g. 1h, 30m)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max records to return")
	return cmd
}

// short truncates IDs for table display.
func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
