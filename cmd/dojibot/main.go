package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"dojibot/internal/backtest"
	"dojibot/internal/config"
	"dojibot/internal/pattern"
	"dojibot/internal/srzone"
	"dojibot/internal/watchlist"
	"dojibot/pkg/logger"
	"dojibot/pkg/model"
)

var (
	cfgFile   string
	timeframe string
	format    string
	limit     int
	horizon   int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dojibot",
		Short: "Doji reversal signals at support and resistance",
		Long: `Dojibot watches Binance spot symbols for low-volume doji candles that
close inside a support or resistance zone after a strong opposite move.

Examples:
  dojibot run
  dojibot zones BTCUSDT --timeframe 4h
  dojibot backtest ETHUSDT --timeframe 1h --limit 1000`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scan daemon with Telegram and the status server",
		Args:  cobra.NoArgs,
		RunE:  runDaemon,
	}

	zonesCmd := &cobra.Command{
		Use:   "zones SYMBOL",
		Short: "Print the current support and resistance zones",
		Args:  cobra.ExactArgs(1),
		RunE:  runZones,
	}
	zonesCmd.Flags().StringVar(&timeframe, "timeframe", "4h", "timeframe: 1h, 2h, 4h, 1d")
	zonesCmd.Flags().StringVar(&format, "format", "table", "output format: table, json")

	backtestCmd := &cobra.Command{
		Use:   "backtest SYMBOL",
		Short: "Replay the detector over recent history",
		Args:  cobra.ExactArgs(1),
		RunE:  runBacktest,
	}
	backtestCmd.Flags().StringVar(&timeframe, "timeframe", "1h", "timeframe: 1h, 2h, 4h, 1d")
	backtestCmd.Flags().StringVar(&format, "format", "table", "output format: table, json")
	backtestCmd.Flags().IntVar(&limit, "limit", 1000, "candles to fetch (max 1000)")
	backtestCmd.Flags().IntVar(&horizon, "horizon", 5, "bars after a signal used to score it")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and print the effective settings",
		Args:  cobra.NoArgs,
		RunE:  runCheck,
	}

	rootCmd.AddCommand(runCmd, zonesCmd, backtestCmd, checkCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		return nil, err
	}
	return cfg, nil
}

// interruptContext is cancelled on SIGINT or SIGTERM
func interruptContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Println("\nInterrupted. Stopping...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	app := newApp(cfg)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("starting: %w", err)
	}

	sig := <-app.Wait()
	logger.Info("[DAEMON] Received %s, shutting down", sig.Signal)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	return app.Stop(stopCtx)
}

func runZones(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	symbol, tf, err := parseTarget(args[0], timeframe)
	if err != nil {
		return err
	}

	ctx, cancel := interruptContext()
	defer cancel()

	calc := srzone.NewCalculator(cfg.SR, newCandleSource(cfg))
	snap, err := calc.ComputeZones(ctx, symbol, tf)
	if err != nil {
		return fmt.Errorf("computing zones: %w", err)
	}

	if format == "json" {
		return printJSON(snap)
	}

	fmt.Printf("\n%s %s, price %.8g, computed %s\n\n", snap.Symbol, snap.Timeframe, snap.CurrentPrice,
		snap.ComputedAt.UTC().Format("2006-01-02 15:04"))
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Kind", "Low", "High", "Strength"}),
	)
	for _, kind := range []model.ZoneKind{model.Resistance, model.Support} {
		for _, z := range snap.Zones(kind) {
			table.Append([]string{
				string(z.Kind),
				fmt.Sprintf("%.8g", z.Low),
				fmt.Sprintf("%.8g", z.High),
				fmt.Sprintf("%d", z.Strength),
			})
		}
	}
	table.Render()
	if len(snap.SupportZones)+len(snap.ResistanceZones) == 0 {
		fmt.Println("No zones above the minimum strength.")
	}
	return nil
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	symbol, tf, err := parseTarget(args[0], timeframe)
	if err != nil {
		return err
	}

	ctx, cancel := interruptContext()
	defer cancel()

	calc := srzone.NewCalculator(cfg.SR, nil)
	btCfg := backtest.DefaultConfig(cfg.SR)
	btCfg.Horizon = horizon
	bt := backtest.NewBacktester(btCfg, pattern.NewEngine(cfg.Pattern), calc, newCandleSource(cfg))

	var bar *progressbar.ProgressBar
	if format != "json" {
		bt.SetProgressCallback(func(done, total int) {
			if bar == nil {
				bar = newProgressBar(total, "Replaying")
			}
			bar.Set(done)
		})
	}

	result, err := bt.Run(ctx, symbol, tf, limit)
	if err != nil {
		return err
	}
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}

	if format == "json" {
		return printJSON(result)
	}
	printBacktest(result)
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	shown := *cfg
	if shown.Telegram.Token != "" {
		shown.Telegram.Token = "********"
	}
	if shown.Redis.Password != "" {
		shown.Redis.Password = "********"
	}
	if shown.Database.URL != "" {
		shown.Database.URL = "********"
	}

	data, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	fmt.Printf("# %s is valid\n%s", cfgFile, data)
	return nil
}

func parseTarget(rawSymbol, rawTF string) (string, model.Timeframe, error) {
	symbol, err := watchlist.Normalize(rawSymbol)
	if err != nil {
		return "", "", err
	}
	tf, err := model.ParseTimeframe(rawTF)
	if err != nil {
		return "", "", err
	}
	return symbol, tf, nil
}

func newProgressBar(total int, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]█[reset]",
			SaucerHead:    "[green]█[reset]",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printBacktest(r *backtest.Result) {
	fmt.Printf("\nBacktest %s %s (%s)\n", r.Symbol, r.Timeframe, r.Period)
	fmt.Printf("Candles: %d, evaluated: %d\n\n", r.Candles, r.Evaluated)

	if len(r.Signals) > 0 {
		table := tablewriter.NewTable(os.Stdout,
			tablewriter.WithHeader([]string{"Close (UTC)", "Dir", "Price", "Zone", "Strength", "Forward", "Result"}),
		)
		for _, s := range r.Signals {
			forward, outcome := "-", "open"
			if s.Resolved {
				forward = fmt.Sprintf("%+.2f%%", s.ForwardPct)
				outcome = "miss"
				if s.Hit {
					outcome = "hit"
				}
			}
			z := s.Signal.ConfluenceZone
			table.Append([]string{
				s.Signal.CloseTime.UTC().Format("2006-01-02 15:04"),
				string(s.Signal.Direction),
				fmt.Sprintf("%.8g", s.Signal.Price),
				fmt.Sprintf("%s %.8g-%.8g", z.Kind, z.Low, z.High),
				fmt.Sprintf("%d", z.Strength),
				forward,
				outcome,
			})
		}
		table.Render()
		fmt.Println()
	}

	fmt.Println("Rejected by gate:")
	for _, g := range pattern.Gates {
		fmt.Printf("  %-11s %d\n", g, r.Rejections[g])
	}

	fmt.Printf("\nSignals: %d (long %d, short %d), pass rate %.2f%%\n", len(r.Signals), r.Long, r.Short, r.PassRate)
	fmt.Printf("Hit rate: %.1f%%, avg forward move %+.2f%%\n", r.HitRate, r.AvgForwardPct)
	fmt.Printf("Max win streak: %d, max lose streak: %d\n", r.MaxWinStreak, r.MaxLoseStreak)
}
