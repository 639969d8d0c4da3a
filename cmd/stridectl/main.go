// Command stridectl runs operator tasks against the Stride database.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"stride/api/internal/audit"
	"stride/api/internal/authpw"
	"stride/api/internal/config"
	"stride/api/internal/logging"
	"stride/api/internal/store"
)

const commandTimeout = 2 * time.Minute

type env struct {
	db        *sql.DB
	logger    *logrus.Logger
	ops       opsStore
	passwords *authpw.Service
	recorder  *audit.Recorder
	out       io.Writer
}

type command struct {
	description string
	run         func(ctx context.Context, e *env, args []string) error
}

var commands = map[string]command{
	"migrate":        {"Apply (up) or roll back (down [steps]) schema migrations", runMigrate},
	"create-admin":   {"Create an ADMIN user with a verified email", runCreateAdmin},
	"reset-password": {"Set a user's password", runResetPassword},
	"promote":        {"Change a user's role", runPromote},
	"repair-oauth":   {"Relink or remove OAuth accounts whose user no longer exists", runRepairOAuth},
}

func main() {
	if len(os.Args) < 2 || os.Args[1] == "-h" || os.Args[1] == "--help" {
		usage()
		return
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.Pool{MaxOpen: 2, AppName: "stridectl"})
	if err != nil {
		logger.WithError(err).Fatal("database unavailable")
	}
	defer db.Close()

	pg := store.NewPostgresStore(db)
	e := &env{
		db:        db,
		logger:    logger,
		ops:       pg,
		passwords: authpw.NewService(pg, cfg.BcryptCost),
		recorder:  audit.NewRecorder(pg, logger, nil, audit.DefaultWriteTimeout),
		out:       os.Stdout,
	}

	if err := cmd.run(ctx, e, os.Args[2:]); err != nil {
		logger.WithError(err).WithField("command", os.Args[1]).Error("command failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: stridectl <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-15s %s\n", name, commands[name].description)
	}
}

func newFlags(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}
