package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"occupancy/internal/config"
	"occupancy/internal/repository/sqlite"
)

var (
	// db is shared by subcommands and opened in PersistentPreRunE.
	db     *sqlite.DB
	dbPath string
)

var rootCmd = &cobra.Command{
	Use:           "employees",
	Short:         "Manage the staff directory used to exclude employees from customer counts",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if dbPath == "" {
			dbPath = config.Load().DatabasePath
		}

		var err error
		db, err = sqlite.New(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default: DB_PATH or data/occupancy.db)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func reloadHint() {
	fmt.Println("ℹ️  Running servers pick this up after POST /api/employees/reload")
}
