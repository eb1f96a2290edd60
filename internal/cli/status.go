package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/custody/internal/core/worker"
	redisclient "github.com/vietddude/custody/internal/infra/redis"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show record counts, outbox position and relay progress",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusQueries = []struct {
	label string
	query string
}{
	{"wallets", "SELECT COUNT(*) FROM wallets"},
	{"pending transactions", "SELECT COUNT(*) FROM pending_transactions WHERE NOT executed"},
	{"executed transactions", "SELECT COUNT(*) FROM pending_transactions WHERE executed"},
	{"active guardians", "SELECT COUNT(*) FROM guardians WHERE is_active"},
	{"active recoveries", "SELECT COUNT(*) FROM recovery_requests WHERE is_active"},
	{"outbox head", "SELECT COALESCE(MAX(seq), 0) FROM transfers"},
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	db := openDB(ctx, cfg)
	defer func() {
		_ = db.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "METRIC\tVALUE")

	for _, q := range statusQueries {
		var n int64
		if err := db.GetContext(ctx, &n, q.query); err != nil {
			slog.Error("Failed to query status", "metric", q.label, "error", err)
			os.Exit(1)
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\n", q.label, n)
	}

	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Error("Failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = client.Close()
		}()
		cursor, err := redisclient.NewProgressStore(client).GetProgress(ctx, worker.RelayCursorName)
		if err != nil {
			slog.Error("Failed to read relay progress", "error", err)
			os.Exit(1)
		}
		_, _ = fmt.Fprintf(w, "relay cursor\t%d\n", cursor)
	}
	_ = w.Flush()
}
