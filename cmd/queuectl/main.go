// Command queuectl runs operator tasks against the request queue database:
// manual grant and membership sweeps, and admin account management.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vidqueue/backend/internal/auth"
	"github.com/vidqueue/backend/internal/config"
	"github.com/vidqueue/backend/internal/credits"
	"github.com/vidqueue/backend/internal/entitlement"
	"github.com/vidqueue/backend/internal/membership"
	"github.com/vidqueue/backend/internal/models"
	"github.com/vidqueue/backend/internal/repository"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: queuectl <command> [flags]

commands:
  grant-monthly        issue due monthly credit grants (-account, -dry-run)
  refresh-memberships  re-check patron status against Patreon (-account)
  make-admin           grant admin rights to an account (-email, -password)
  revoke-admin         remove admin rights from an account (-email)`)
	os.Exit(2)
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("load config: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal("create database pool: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		fatal("connect to PostgreSQL: %v", err)
	}

	accountRepo := repository.NewAccountRepo(pool)
	ledgerRepo := repository.NewLedgerRepo(pool)

	switch os.Args[1] {
	case "grant-monthly":
		grantMonthly(ctx, cfg, accountRepo, ledgerRepo, os.Args[2:], logger)
	case "refresh-memberships":
		refreshMemberships(ctx, cfg, accountRepo, os.Args[2:], logger)
	case "make-admin":
		makeAdmin(ctx, accountRepo, os.Args[2:])
	case "revoke-admin":
		revokeAdmin(ctx, accountRepo, os.Args[2:])
	default:
		usage()
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "queuectl: "+format+"\n", args...)
	os.Exit(1)
}

func grantMonthly(ctx context.Context, cfg *config.Config, accounts *repository.AccountRepo, ledger *repository.LedgerRepo, args []string, logger *slog.Logger) {
	fs := flag.NewFlagSet("grant-monthly", flag.ExitOnError)
	accountID := fs.String("account", "", "grant a single account by id")
	dryRun := fs.Bool("dry-run", false, "report due grants without writing entries")
	fs.Parse(args)

	resolver := entitlement.NewResolver(cfg.TierTable(), cfg.DefaultAllowance)
	creditSvc := credits.NewService(ledger)
	grantSvc := credits.NewGrantService(creditSvc, resolver)

	targets, err := sweepTargets(ctx, accounts, *accountID, accounts.ListActivePatrons)
	if err != nil {
		fatal("%v", err)
	}

	granted, failed := 0, 0
	for _, acct := range targets {
		if *dryRun {
			allowance := resolver.AllowanceFor(acct)
			if !acct.IsActivePatron() || allowance <= 0 {
				continue
			}
			has, err := ledger.HasMonthlyGrantInMonth(ctx, acct.ID, time.Now().UTC())
			if err != nil {
				failed++
				logger.Warn("grant check failed", "account_id", acct.ID, "error", err)
				continue
			}
			if !has {
				fmt.Printf("would grant %d credits to %s (%s)\n", allowance, acct.Name, acct.ID)
				granted++
			}
			continue
		}
		entry, err := grantSvc.GrantIfDue(ctx, acct)
		if err != nil {
			failed++
			logger.Warn("grant failed", "account_id", acct.ID, "error", err)
			continue
		}
		if entry != nil {
			fmt.Printf("granted %d credits to %s (%s)\n", entry.Amount, acct.Name, acct.ID)
			granted++
		}
	}
	fmt.Printf("grant-monthly: %d accounts, %d granted, %d failed\n", len(targets), granted, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func refreshMemberships(ctx context.Context, cfg *config.Config, accounts *repository.AccountRepo, args []string, logger *slog.Logger) {
	fs := flag.NewFlagSet("refresh-memberships", flag.ExitOnError)
	accountID := fs.String("account", "", "refresh a single account by id")
	fs.Parse(args)

	client := membership.NewClient(
		cfg.PatreonClientID,
		cfg.PatreonClientSecret,
		cfg.BaseURL+"/api/v1/auth/patreon/callback",
		cfg.PatreonCampaignID,
	)
	svc := membership.NewService(client, accounts, cfg.PatreonWebhookSecret, logger)

	targets, err := sweepTargets(ctx, accounts, *accountID, accounts.ListLinked)
	if err != nil {
		fatal("%v", err)
	}

	failed := 0
	for _, acct := range targets {
		if err := svc.RefreshAccount(ctx, acct); err != nil {
			failed++
			logger.Warn("refresh failed", "account_id", acct.ID, "error", err)
			continue
		}
		status := "none"
		if acct.PatronStatus != nil {
			status = *acct.PatronStatus
		}
		fmt.Printf("refreshed %s (%s): status=%s tier=%d\n", acct.Name, acct.ID, status, acct.PatronTierCents)
	}
	fmt.Printf("refresh-memberships: %d accounts, %d failed\n", len(targets), failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func sweepTargets(ctx context.Context, accounts *repository.AccountRepo, accountID string, listAll func(context.Context) ([]*models.Account, error)) ([]*models.Account, error) {
	if accountID == "" {
		return listAll(ctx)
	}
	id, err := uuid.Parse(accountID)
	if err != nil {
		return nil, fmt.Errorf("invalid account id %q: %w", accountID, err)
	}
	acct, err := accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", id, err)
	}
	return []*models.Account{acct}, nil
}

func makeAdmin(ctx context.Context, accounts *repository.AccountRepo, args []string) {
	fs := flag.NewFlagSet("make-admin", flag.ExitOnError)
	email := fs.String("email", "", "account email (required)")
	password := fs.String("password", "", "set a login password for the admin")
	fs.Parse(args)
	if *email == "" {
		fatal("make-admin: -email is required")
	}

	acct, err := accounts.GetByEmail(ctx, *email)
	if err != nil {
		fatal("load account %s: %v", *email, err)
	}
	if err := accounts.SetAdmin(ctx, acct.ID, true); err != nil {
		fatal("set admin: %v", err)
	}
	if *password != "" {
		hash, err := auth.HashPassword(*password)
		if err != nil {
			fatal("hash password: %v", err)
		}
		if err := accounts.SetPassword(ctx, acct.ID, &hash); err != nil {
			fatal("set password: %v", err)
		}
	}
	fmt.Printf("%s (%s) is now an admin\n", acct.Name, acct.ID)
}

func revokeAdmin(ctx context.Context, accounts *repository.AccountRepo, args []string) {
	fs := flag.NewFlagSet("revoke-admin", flag.ExitOnError)
	email := fs.String("email", "", "account email (required)")
	fs.Parse(args)
	if *email == "" {
		fatal("revoke-admin: -email is required")
	}

	acct, err := accounts.GetByEmail(ctx, *email)
	if err != nil {
		fatal("load account %s: %v", *email, err)
	}
	if err := accounts.SetAdmin(ctx, acct.ID, false); err != nil {
		fatal("revoke admin: %v", err)
	}
	fmt.Printf("%s (%s) is no longer an admin\n", acct.Name, acct.ID)
}
