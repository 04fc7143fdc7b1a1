// Command minisql_cli is an interactive shell over a MiniSQL database file.
// It keeps one demo table (id int, name char(32)) with a B+ tree primary
// index, which is enough to poke at the storage engine by hand.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"go.uber.org/zap"

	storageengine "github.com/sushant-115/minisql/core/storage_engine"
	"github.com/sushant-115/minisql/pkg/config"
	"github.com/sushant-115/minisql/pkg/logger"
	"github.com/sushant-115/minisql/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	dataDir := flag.String("data-dir", "", "overrides data_dir from the config")
	dbName := flag.String("db", "demo", "database name")
	flag.Parse()

	if err := run(*configPath, *dataDir, *dbName, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "minisql:", err)
		os.Exit(1)
	}
}

func run(configPath, dataDir, dbName string, args []string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	tel, shutdown, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	reg := storageengine.NewRegistry(cfg.DataDir, storageengine.OptionsFromConfig(cfg, tel, log))
	defer func() {
		if err := reg.CloseAll(); err != nil {
			log.Error("failed to close databases", zap.Error(err))
		}
	}()

	db, err := reg.Open(dbName)
	if err != nil {
		return err
	}
	sh, err := newShell(db, os.Stdout)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if len(args) > 0 {
		if err := sh.exec(ctx, args); err != nil && !errors.Is(err, errQuit) {
			return err
		}
		return nil
	}
	return interactive(ctx, sh, filepath.Join(cfg.DataDir, ".minisql_history"))
}

func interactive(ctx context.Context, sh *shell, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "minisql> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to start readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(sh.out, "MiniSQL shell on %s. Type 'help' for commands.\n", sh.db.Path())
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		err = sh.exec(ctx, strings.Fields(line))
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(sh.out, "error:", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
