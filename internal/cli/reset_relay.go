package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/custody/internal/core/worker"
	redisclient "github.com/vietddude/custody/internal/infra/redis"
)

var resetRelayCmd = &cobra.Command{
	Use:   "reset-relay [seq]",
	Short: "Move the settlement relay cursor so transfers after seq are redelivered",
	Args:  cobra.ExactArgs(1),
	Run:   runResetRelay,
}

func init() {
	rootCmd.AddCommand(resetRelayCmd)
}

func runResetRelay(cmd *cobra.Command, args []string) {
	seq, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Invalid sequence: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig()
	if cfg.Redis.URL == "" {
		slog.Error("redis.url is not configured, relay progress is in memory")
		os.Exit(1)
	}

	client, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = client.Close()
	}()

	ctx := context.Background()
	progress := redisclient.NewProgressStore(client)
	if seq == 0 {
		err = progress.ClearProgress(ctx, worker.RelayCursorName)
	} else {
		err = progress.SetProgress(ctx, worker.RelayCursorName, seq)
	}
	if err != nil {
		slog.Error("Failed to reset relay cursor", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Relay cursor set to %d\n", seq)
}
