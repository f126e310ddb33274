// Package main implements the walletdb command line tool: it opens the
// payments database, runs migrations and exposes a few inspection
// subcommands over the stored payments.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lnwallet/walletdb/internal/app/metrics"
	"github.com/lnwallet/walletdb/internal/app/payments"
	"github.com/lnwallet/walletdb/internal/config"
	"github.com/lnwallet/walletdb/internal/platform/migrations"
	"github.com/lnwallet/walletdb/internal/storage/sqlite"
	"github.com/lnwallet/walletdb/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/walletdb.yaml", "Path to config file")
	dbPath := flag.String("db", "", "Database path override")
	metricsAddr := flag.String("metrics-addr", "", "Metrics listen address override")
	flag.Parse()

	if v := os.Getenv("WALLETDB_CONFIG"); v != "" {
		*configPath = v
	}
	if v := os.Getenv("WALLETDB_PATH"); v != "" {
		*dbPath = v
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	logger.SetLevel(cfg.LogLevel)
	log := logger.New("walletdb")

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "summary"
	}

	if err := run(cmd, cfg, log); err != nil {
		log.Error(err, "command failed")
		os.Exit(1)
	}
}

func run(cmd string, cfg *config.Config, log *logger.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "migrate":
		return runMigrate(ctx, cfg, log)
	case "summary":
		return runSummary(ctx, cfg, log)
	case "unconfirmed":
		return runUnconfirmed(ctx, cfg, log)
	case "merge-restore":
		return runMergeRestore(ctx, cfg, log)
	case "watch":
		return runWatch(ctx, cfg, log)
	default:
		return fmt.Errorf("unknown command %q (want migrate, summary, unconfirmed, merge-restore or watch)", cmd)
	}
}

func runMigrate(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrations.Apply(ctx, db); err != nil {
		return err
	}
	log.Infof("schema up to date (%d statements)", migrations.Count())
	return nil
}

func runSummary(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	db, err := payments.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	total, err := db.Store.CountPayments(ctx)
	if err != nil {
		return err
	}
	oldest, err := db.Store.OldestCompletedAt(ctx)
	if err != nil {
		return err
	}
	unconfirmed, err := db.Store.ListUnconfirmed(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("payments:    %d\n", total)
	if oldest != nil {
		fmt.Printf("oldest:      %s\n", oldest.Format(time.RFC3339))
	}
	fmt.Printf("unconfirmed: %d\n", len(unconfirmed))
	contacts := db.Contacts.Contacts()
	fmt.Printf("contacts:    %d\n", len(contacts))
	return nil
}

func runUnconfirmed(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	db, err := payments.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	txs, err := db.Store.ListUnconfirmed(ctx)
	if err != nil {
		return err
	}
	for _, tx := range txs {
		fmt.Println(tx)
	}
	return nil
}

func runMergeRestore(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	db, err := payments.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	merged, err := db.MergeRestoredLiquidity(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("merged %d liquidity purchases\n", merged)
	return nil
}

// runWatch tails the all-payments feed until interrupted, printing each page
// as changes land. Useful when another process writes the database file.
func runWatch(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	db, err := payments.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, log)
	}

	feed := db.Feeds.All(ctx, cfg.Feeds.PageSize, 0)
	defer feed.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case page, ok := <-feed.Updates():
			if !ok {
				return nil
			}
			fmt.Printf("-- %d payments --\n", len(page))
			for _, info := range page {
				name := ""
				if info.Contact != nil {
					name = " (" + info.Contact.Name + ")"
				}
				fmt.Printf("%s %-8s %-16s %d msat%s\n",
					info.Payment.ID, info.Payment.Direction, info.Payment.Kind,
					info.Payment.AmountMsat, name)
			}
		}
	}
}

func serveMetrics(addr string, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	log.Infof("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error(err, "metrics server stopped")
	}
}
