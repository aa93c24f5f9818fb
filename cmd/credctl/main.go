// Command credctl performs operator credential maintenance directly against
// the database: password and recovery key resets, linking the OTP email and
// backfilling recovery keys on old accounts.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hongminglow/shopdesk-auth/internal/config"
	"github.com/hongminglow/shopdesk-auth/internal/credential"
	"github.com/hongminglow/shopdesk-auth/internal/logger"
	"github.com/hongminglow/shopdesk-auth/internal/service"
	postgres "github.com/hongminglow/shopdesk-auth/internal/storage/postgres"
)

const usage = `usage: credctl <command> [flags]

commands:
  reset-password          -user U -password P
  set-recovery-key        -user U -key K
  set-email               -user U -email E
  backfill-recovery-keys
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadStorage()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := postgres.NewUserStore(ctx, cfg.DatabaseURL)
	if err != nil {
		zl.Fatal("init database", zap.Error(err))
	}
	defer store.Close()

	admin := service.NewAuthService(store, nil, credential.NewHasher(cfg.BcryptCost), nil, zl,
		service.WithPasswordStrength(cfg.PasswordMinScore)).Admin()
	if err := run(ctx, admin, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		zl.Error("credctl failed", zap.String("command", os.Args[1]), zap.Error(err))
		os.Exit(1)
	}
}

// adminOps is the subset of service.Admin credctl drives.
type adminOps interface {
	SetPassword(ctx context.Context, username, password string) error
	SetRecoveryKey(ctx context.Context, username, key string) error
	LinkEmail(ctx context.Context, username, email string) error
	BackfillRecoveryKeys(ctx context.Context) (int64, error)
}

func run(ctx context.Context, admin adminOps, cmd string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(out)
	user := fs.String("user", "", "username")

	switch cmd {
	case "reset-password":
		password := fs.String("password", "", "new password")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := admin.SetPassword(ctx, *user, *password); err != nil {
			return err
		}
		fmt.Fprintf(out, "password updated for %s\n", *user)
	case "set-recovery-key":
		key := fs.String("key", "", "new recovery key")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := admin.SetRecoveryKey(ctx, *user, *key); err != nil {
			return err
		}
		fmt.Fprintf(out, "recovery key updated for %s\n", *user)
	case "set-email":
		email := fs.String("email", "", "address for OTP mail")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := admin.LinkEmail(ctx, *user, *email); err != nil {
			return err
		}
		fmt.Fprintf(out, "email linked for %s\n", *user)
	case "backfill-recovery-keys":
		if err := fs.Parse(args); err != nil {
			return err
		}
		n, err := admin.BackfillRecoveryKeys(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "recovery key set on %d account(s)\n", n)
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}
