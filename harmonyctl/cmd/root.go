package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/natserract/harmony/pkg/calllog"
	"github.com/natserract/harmony/pkg/config"
	"github.com/natserract/harmony/pkg/harmony"
	"github.com/natserract/harmony/pkg/schema/postgres"
	"github.com/natserract/harmony/pkg/schema/redis"
	"github.com/natserract/harmony/pkg/schema/sqlite"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// global flags
var (
	dbKind     string
	sqlitePath string
	redisAddr  string
	actorID    string
	debug      bool
)

var logger *zap.Logger

var rootCmd = &cobra.Command{
	Use:   "harmonyctl",
	Short: "Manage Epsilon Harmony profile records and the API call log",
	Long: `harmonyctl talks to the Epsilon Harmony profiles API with the stored
connection settings. Every outbound call, token requests included, is written
to the call log.

Credentials are read from the settings store, falling back to HARMONY_*
environment variables (a .env file is loaded when present).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if debug {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if actorID != "" {
			cmd.SetContext(calllog.WithActor(cmd.Context(), actorID))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbKind, "db", "sqlite", "Storage backend for settings and call log (postgres, sqlite, memory)")
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "sqlite-path", "harmony.db", "SQLite database file")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis-addr", "", "Keep the access token in Redis at this address (shared between workers)")
	rootCmd.PersistentFlags().StringVar(&actorID, "actor", os.Getenv("USER"), "Actor id recorded on call log entries")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable development logging")
}

// stores is the opened storage for one command run.
type stores struct {
	settings config.Store
	calls    *calllog.Logger
	closers  []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context) (*stores, error) {
	s := &stores{}
	var logStore calllog.Store

	switch dbKind {
	case "postgres":
		db, err := postgres.New(ctx, postgres.NewConfig(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.closers = append(s.closers, db.Close)
		if err := db.InitSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
		logStore = postgres.NewLogStore(db, logger)
		s.settings = postgres.NewSettingsStore(db, logger)

	case "sqlite":
		db, err := sqlite.Open(ctx, sqlitePath, logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { db.Close() })
		logStore = db.Logs()
		s.settings = db.Settings()

	case "memory":
		logStore = calllog.NewMemoryStore()
		s.settings = config.NewMemoryStore(nil)

	default:
		return nil, fmt.Errorf("unknown --db %q (want postgres, sqlite or memory)", dbKind)
	}

	if redisAddr != "" {
		tokens, err := redis.NewSettingsStore(ctx, &redis.Config{Address: redisAddr}, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() { tokens.Close() })
		s.settings = &config.LayeredStore{Base: s.settings, Tokens: tokens}
	}

	s.calls = calllog.NewLogger(logStore, logger)
	return s, nil
}

// newClient builds a client from stored settings, filling gaps from the environment.
func (s *stores) newClient(ctx context.Context, opts ...harmony.Option) (*harmony.Harmony, error) {
	stored, err := s.settings.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	cfg, err := config.Load(config.Merge(config.FromEnv(), stored))
	if err != nil {
		return nil, fmt.Errorf("failed to load config (run harmonyctl configure): %w", err)
	}
	return harmony.NewHarmonyWithLogger(cfg, s.calls, s.settings, logger, opts...), nil
}

// withStores opens the stores for the duration of fn.
func withStores(cmd *cobra.Command, fn func(*stores) error) error {
	s, err := openStores(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}
