package cmd

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"raven-chat/internal/config"
	"raven-chat/internal/db"
	"raven-chat/internal/logging"
	"raven-chat/internal/messagelog"
	"raven-chat/internal/repository"
	"raven-chat/internal/rooms"
)

var rootCmd = &cobra.Command{
	Use:   "ravenctl",
	Short: "Operate a raven chat deployment",
	Long: `ravenctl talks to the raven database directly. It reads the same
DATABASE_URL and AUTH_KEY settings as the server (environment or .env).

Available commands:
  token      Mint a client token
  rooms      Create, list and delete rooms
  history    Print the message history of a room`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	cobra.OnInitialize(func() {
		level := "warn"
		if verbose {
			level = "debug"
		}
		slog.SetDefault(logging.New("text", level))
	})
}

type backend struct {
	cfg     *config.Config
	pool    *pgxpool.Pool
	rooms   *rooms.Service
	history *messagelog.Log
}

func connect(ctx context.Context) (*backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := db.Connect(dialCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(dialCtx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	history := messagelog.New(repository.NewMessagesRepo(pool), messagelog.Options{
		MaxAttempts:  cfg.AppendMaxAttempts,
		DefaultLimit: cfg.HistoryLimit,
	})
	return &backend{
		cfg:     cfg,
		pool:    pool,
		history: history,
		rooms: rooms.NewService(
			repository.NewRoomsRepo(pool),
			repository.NewConnectionsRepo(pool),
			history,
			cfg.RoomNamespace,
		),
	}, nil
}

func (b *backend) Close() {
	b.pool.Close()
}
