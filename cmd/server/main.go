package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kjannette/trahn-signals/internal/api"
	"github.com/kjannette/trahn-signals/internal/config"
	"github.com/kjannette/trahn-signals/internal/performance"
)

const banner = `
╔══════════════════════════════════════╗
║     TRAHN Signal Trading Engine      ║
║                                      ║
╚══════════════════════════════════════╝
`

var (
	cfgFile   string
	execute   bool
	statsMode string
)

var rootCmd = &cobra.Command{
	Use:   "trahn",
	Short: "Automated trading signal and position engine",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine, position monitor and REST API",
	RunE:  runServe,
}

var scanCmd = &cobra.Command{
	Use:   "scan [token...]",
	Short: "Analyze tokens once and print the signals they produce",
	Long: "Analyze the given tokens, or the configured watchlist, once. Signals are\n" +
		"only executed with --execute and ENABLE_AUTO_TRADING set.",
	RunE: runScan,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print performance computed from persisted trades",
	RunE:  runStats,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional config file (yaml, toml or json)")
	scanCmd.Flags().BoolVar(&execute, "execute", false, "execute accepted signals")
	statsCmd.Flags().StringVar(&statsMode, "mode", "", "filter by trade mode: paper or live")
	rootCmd.AddCommand(serveCmd, scanCmd, statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger it describes.
func setup() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log := logrus.New()
	if strings.EqualFold(cfg.LogFormat, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.WithField("level", cfg.LogLevel).Warn("unknown log level; using info")
	}

	if err := cfg.Validate(log); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, log, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	fmt.Print(banner)

	cfg, log, err := setup()
	if err != nil {
		return err
	}
	cfg.Print(log)

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.engine.Restore(ctx); err != nil {
		log.WithError(err).Warn("could not restore open positions")
	}

	srv := api.NewServer(a.engine, api.Options{
		Port:       cfg.APIPort,
		APIKey:     cfg.APIKey,
		CORSOrigin: cfg.CORSAllowOrigin,
		Pool:       a.pool,
		Trades:     a.tradeRepo,
		Positions:  a.posRepo,
		Metrics:    a.metrics.Handler(),
		Log:        a.log.WithField("component", "api"),
	})
	srvErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	a.engine.Start(ctx)
	log.Info("all services started")

	select {
	case <-ctx.Done():
		log.Info("shutting down gracefully")
	case err = <-srvErr:
		log.WithError(err).Error("api server failed")
	}

	a.engine.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.WithError(serr).Error("api shutdown")
	}
	log.Info("shutdown complete")
	return err
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if !execute {
		cfg.EnableAutoTrading = false
	}
	if len(args) == 0 && len(cfg.Watchlist) == 0 {
		return errors.New("no tokens given and WATCHLIST is empty")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	for _, item := range a.engine.Scan(ctx, args) {
		if item.Err != nil {
			fmt.Fprintf(out, "%s  error: %v\n", item.Token, item.Err)
			continue
		}
		if len(item.Results) == 0 {
			fmt.Fprintf(out, "%s  no signal\n", item.Token)
			continue
		}
		for _, r := range item.Results {
			line := fmt.Sprintf("%s  %s %.2f conf=%.2f  %s", item.Token, r.Signal.Type, r.Signal.Amount, r.Signal.Confidence, r.Status)
			if r.Err != nil {
				line += ": " + r.Err.Error()
			}
			fmt.Fprintln(out, line)
		}
	}
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if !cfg.DBEnabled {
		return errors.New("stats reads persisted trades; set DB_ENABLED=true")
	}

	var mode *bool
	switch strings.ToLower(statsMode) {
	case "":
	case "paper":
		paper := true
		mode = &paper
	case "live":
		live := false
		mode = &live
	default:
		return fmt.Errorf("unknown mode %q", statsMode)
	}

	ctx := cmd.Context()
	a := &app{cfg: cfg, log: logrus.NewEntry(log)}
	defer a.close()
	if err := a.connectDB(ctx); err != nil {
		return err
	}

	records, err := a.tradeRepo.GetAll(ctx, 0, mode)
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}
	s := performance.Compute(records)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Trades:   %d\n", s.TotalTrades)
	fmt.Fprintf(out, "Winning:  %d\n", s.WinningTrades)
	fmt.Fprintf(out, "Losing:   %d\n", s.LosingTrades)
	fmt.Fprintf(out, "Win rate: %.2f%%\n", s.WinRate*100)
	fmt.Fprintf(out, "Profit:   %.6f\n", s.TotalProfit)
	return nil
}
