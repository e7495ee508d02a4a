// Package cli implements syncctl, the command line client that records
// local mutations and syncs them with the server.
package cli

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"racuni/internal/client/localdb"
	"racuni/internal/client/orchestrator"
	"racuni/internal/client/remote"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
	Verbose    bool

	// Flag overrides, merged over the config file.
	Overrides Config

	// HTTPClient replaces the default instrumented client (for testing).
	HTTPClient *http.Client

	config *Config
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for syncctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "syncctl",
		Short: "Offline-first sync client for receipts and warranties",
		Long: `syncctl keeps a local SQLite copy of your receipts, devices, reminders,
household bills, documents, subscriptions and settings. Changes are queued
locally and pushed to the sync server when it is reachable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if !opts.Verbose {
				log.SetOutput(io.Discard)
			}
			return opts.load()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", os.Getenv("RACUNI_CONFIG"), "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log sync activity to stderr")
	cmd.PersistentFlags().StringVar(&opts.Overrides.Server.URL, "server", "", "sync server base URL")
	cmd.PersistentFlags().StringVar(&opts.Overrides.Server.Token, "token", "", "bearer token (default $RACUNI_TOKEN)")
	cmd.PersistentFlags().StringVar(&opts.Overrides.Database, "db", "", "path to the local SQLite database")
	cmd.PersistentFlags().IntVar(&opts.Overrides.Sync.Workers, "workers", 0, "concurrent entity pushes")

	cmd.AddCommand(newRecordCommand(opts))
	cmd.AddCommand(newPushCommand(opts))
	cmd.AddCommand(newPullCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newQueueCommand(opts))
	cmd.AddCommand(newDeadCommand(opts))
	cmd.AddCommand(newRetryCommand(opts))
	cmd.AddCommand(newDiscardCommand(opts))
	cmd.AddCommand(newShowCommand(opts))

	return cmd
}

func (o *RootOptions) load() error {
	cfg := DefaultConfig()
	if o.ConfigPath != "" {
		loaded, err := LoadFromFile(o.ConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if cfg.Server.Token == "" {
		cfg.Server.Token = os.Getenv("RACUNI_TOKEN")
	}
	cfg.Merge(&o.Overrides)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	o.config = cfg
	return nil
}

// session is the local database plus the orchestrator wired to the server.
type session struct {
	db   *localdb.DB
	orch *orchestrator.Orchestrator
}

func (o *RootOptions) open() (*session, error) {
	db, err := localdb.Open(o.config.Database)
	if err != nil {
		return nil, err
	}
	client := remote.NewClient(o.config.Server.URL, remote.StaticToken(o.config.Server.Token), o.HTTPClient)
	return &session{
		db:   db,
		orch: orchestrator.New(db, client, o.config.Orchestrator()),
	}, nil
}

func (s *session) Close() {
	if err := s.db.Close(); err != nil {
		log.Printf("Error closing local database: %v", err)
	}
}
