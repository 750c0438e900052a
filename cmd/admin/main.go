// AngelaMos | 2026
// main.go

package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/flightscheduly/backend/internal/config"
	"github.com/flightscheduly/backend/internal/core"
	"github.com/flightscheduly/backend/internal/user"
)

const usage = `usage: admin [-config path] <command> -email <address>

commands:
  promote   create an Administrator, or promote an existing account
  unlock    clear failed-login lockout for an account
`

var readPassword = term.ReadPassword

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*configPath, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configPath, command string, args []string) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("-email is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // process exits right after

	if _, err := db.Migrate(ctx); err != nil {
		return err
	}

	users := user.NewService(
		user.NewRepository(db.DB),
		user.NewPasswordPolicy(cfg.Password),
		cfg.Lockout,
	)

	switch command {
	case "promote":
		return promote(ctx, users, *email, os.Stdin, os.Stdout)
	case "unlock":
		return unlock(ctx, users, *email, os.Stdout)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func promote(
	ctx context.Context,
	users *user.Service,
	email string,
	stdin *os.File,
	out io.Writer,
) error {
	fmt.Fprint(out, "Password (used only if the account is created): ")
	password, err := readPassword(int(stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	fmt.Fprint(out, "Confirm password: ")
	confirm, err := readPassword(int(stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	if !bytes.Equal(password, confirm) {
		return errors.New("passwords do not match")
	}

	admin, created, err := users.EnsureAdministrator(ctx, email, string(password))
	if err != nil {
		return err
	}

	if created {
		fmt.Fprintf(out, "created administrator %s (%s)\n", admin.Email, admin.ID)
	} else {
		fmt.Fprintf(out, "promoted %s (%s) to administrator\n", admin.Email, admin.ID)
	}
	return nil
}

func unlock(ctx context.Context, users *user.Service, email string, out io.Writer) error {
	account, err := users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("no account with email %s", email)
		}
		return err
	}

	if err := users.Unlock(ctx, account.ID); err != nil {
		return err
	}

	fmt.Fprintf(out, "unlocked %s\n", account.Email)
	return nil
}
