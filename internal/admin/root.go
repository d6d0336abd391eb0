// Package admin implements claimctl, the operator CLI: schema migrations,
// account and key provisioning, credit grants and bearer token minting.
package admin

import (
	"context"
	"database/sql"
	"os"

	"github.com/dmitrijs2005/claimgate/internal/logging"
	"github.com/dmitrijs2005/claimgate/internal/server/config"
	"github.com/dmitrijs2005/claimgate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/claimgate/internal/server/shared/db"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	DSN        string
	JWTSecret  string
	Verbose    bool

	config *config.Config
}

// openStore is a seam for tests.
var openStore = func(ctx context.Context, dsn string) (*sql.DB, error) {
	return db.Open(ctx, dsn, db.DefaultPoolSettings())
}

var newManager = repomanager.NewPostgresRepositoryManager

// NewRootCommand creates the root command for claimctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "claimctl",
		Short: "claimgate administration",
		Long:  "Operator tool for the claimgate gateway: migrations, accounts, API keys, credits and tokens.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "server config file (JSON or YAML)")
	cmd.PersistentFlags().StringVarP(&opts.DSN, "dsn", "d", "", "database DSN (overrides the config file)")
	cmd.PersistentFlags().StringVarP(&opts.JWTSecret, "secret", "s", "", "JWT secret (overrides the config file)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log to stderr")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewAccountsCommand(opts))
	cmd.AddCommand(NewKeysCommand(opts))
	cmd.AddCommand(NewCreditsCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

// load resolves the server configuration the same way the server does and
// applies the command-line overrides.
func (o *RootOptions) load() error {
	var args []string
	if o.ConfigPath != "" {
		args = []string{"-c", o.ConfigPath}
	}
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}
	if o.DSN != "" {
		cfg.DatabaseDSN = o.DSN
	}
	if o.JWTSecret != "" {
		cfg.JWTSecret = o.JWTSecret
	}
	o.config = cfg
	return nil
}

func (o *RootOptions) logger() logging.Logger {
	if !o.Verbose {
		return logging.Nop{}
	}
	return logging.NewJSONLogger(os.Stderr, "debug")
}

// withStore opens the database for the duration of fn.
func (o *RootOptions) withStore(ctx context.Context, fn func(conn *sql.DB, m repomanager.RepositoryManager) error) error {
	conn, err := openStore(ctx, o.config.DatabaseDSN)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn, newManager())
}
