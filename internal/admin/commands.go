package admin

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/claimgate/internal/server/auth"
	"github.com/dmitrijs2005/claimgate/internal/server/billing"
	"github.com/dmitrijs2005/claimgate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/claimgate/internal/server/services"
	"github.com/spf13/cobra"
)

// NewMigrateCommand applies pending schema migrations.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withStore(cmd.Context(), func(conn *sql.DB, m repomanager.RepositoryManager) error {
				if err := m.RunMigrations(cmd.Context(), conn); err != nil {
					return fmt.Errorf("migrations error: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}

func NewAccountsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage accounts",
	}

	var credits int64
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an account with an opening balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if credits < 0 {
				return fmt.Errorf("--credits must not be negative")
			}
			return opts.withStore(cmd.Context(), func(conn *sql.DB, m repomanager.RepositoryManager) error {
				a, err := m.Accounts(conn).Create(cmd.Context(), credits)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", a.ID)
				return nil
			})
		},
	}
	create.Flags().Int64Var(&credits, "credits", 0, "opening balance")

	cmd.AddCommand(create)
	return cmd
}

func NewKeysCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys",
	}

	var account, name string
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue an API key; the key is printed once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withStore(cmd.Context(), func(conn *sql.DB, m repomanager.RepositoryManager) error {
				ks := services.NewKeyService(conn, m, nil, opts.config.BcryptCost, opts.logger())
				k, err := ks.Issue(cmd.Context(), account, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "id:  %s\nkey: %s\n", k.ID, k.Key)
				return nil
			})
		},
	}
	issue.Flags().StringVar(&account, "account", "", "owning account id")
	issue.Flags().StringVar(&name, "name", "", "key label")
	_ = issue.MarkFlagRequired("account")

	cmd.AddCommand(issue)
	return cmd
}

func NewCreditsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and grant credits",
	}

	var account, action string
	var amount int64
	grant := &cobra.Command{
		Use:   "grant",
		Short: "Credit an account, e.g. after a purchase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if amount <= 0 {
				return fmt.Errorf("--amount must be positive")
			}
			return opts.withStore(cmd.Context(), func(conn *sql.DB, m repomanager.RepositoryManager) error {
				b, err := billing.NewLedger(conn, m, opts.logger()).Refund(cmd.Context(), account, amount, action)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "balance: %d\n", b)
				return nil
			})
		},
	}
	grant.Flags().StringVar(&account, "account", "", "account id")
	grant.Flags().Int64Var(&amount, "amount", 0, "credits to add")
	grant.Flags().StringVar(&action, "action", "purchase", "ledger action label")
	_ = grant.MarkFlagRequired("account")
	_ = grant.MarkFlagRequired("amount")

	var balanceAccount string
	balance := &cobra.Command{
		Use:   "balance",
		Short: "Show an account balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withStore(cmd.Context(), func(conn *sql.DB, m repomanager.RepositoryManager) error {
				b, err := billing.NewLedger(conn, m, opts.logger()).Balance(cmd.Context(), balanceAccount)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "balance: %d\n", b)
				return nil
			})
		},
	}
	balance.Flags().StringVar(&balanceAccount, "account", "", "account id")
	_ = balance.MarkFlagRequired("account")

	cmd.AddCommand(grant, balance)
	return cmd
}

// NewTokenCommand mints a bearer token signed with the server's JWT secret.
func NewTokenCommand(opts *RootOptions) *cobra.Command {
	var account string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive")
			}
			tok, err := auth.GenerateToken(account, []byte(opts.config.JWTSecret), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account id")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}
