package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/infra/storage"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print stored custody records",
}

func init() {
	inspectCmd.AddCommand(
		&cobra.Command{
			Use:   "wallet [owner]",
			Short: "Print a wallet account",
			Args:  cobra.ExactArgs(1),
			Run: inspect(func(ctx context.Context, tx storage.Tx, arg string) (any, error) {
				return tx.Wallets().Get(ctx, domain.Principal(arg))
			}),
		},
		&cobra.Command{
			Use:   "tx [id]",
			Short: "Print a pending transaction",
			Args:  cobra.ExactArgs(1),
			Run: inspect(func(ctx context.Context, tx storage.Tx, arg string) (any, error) {
				id, err := strconv.ParseUint(arg, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("invalid transaction id: %w", err)
				}
				return tx.Transactions().Get(ctx, domain.TxID(id))
			}),
		},
		&cobra.Command{
			Use:   "guardians [owner]",
			Short: "Print an owner's guardian config",
			Args:  cobra.ExactArgs(1),
			Run: inspect(func(ctx context.Context, tx storage.Tx, arg string) (any, error) {
				return tx.Guardians().GetConfig(ctx, domain.Principal(arg))
			}),
		},
		&cobra.Command{
			Use:   "recovery [owner]",
			Short: "Print an owner's latest recovery request",
			Args:  cobra.ExactArgs(1),
			Run: inspect(func(ctx context.Context, tx storage.Tx, arg string) (any, error) {
				return tx.Recoveries().Get(ctx, domain.Principal(arg))
			}),
		},
	)
	rootCmd.AddCommand(inspectCmd)
}

type lookupFunc func(ctx context.Context, tx storage.Tx, arg string) (any, error)

func inspect(lookup lookupFunc) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		ctx := context.Background()
		db := openDB(ctx, cfg)
		defer func() {
			_ = db.Close()
		}()

		var record any
		err := db.View(ctx, func(ctx context.Context, tx storage.Tx) error {
			var err error
			record, err = lookup(ctx, tx, args[0])
			return err
		})
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Printf("%s not found\n", args[0])
			os.Exit(1)
		}
		if err != nil {
			slog.Error("Lookup failed", "error", err)
			os.Exit(1)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(record)
	}
}
