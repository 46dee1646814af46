package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/cmd/bot"
	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/multichain"
	"github.com/michaelpento.lv/flasharb/utils"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
)

var scanOnly bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start scanning and executing arbitrage",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()
		defer utils.CleanupLogger()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		secrets, err := config.ReadSecrets()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		reg := metrics.NewRegistry()
		srv := metrics.Serve(&metrics.MetricsConfig{
			ListenAddr:     cfg.Metrics.ListenAddr,
			ReportInterval: cfg.Metrics.ReportInterval.Duration,
		}, reg, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("Failed to stop metrics server", zap.Error(err))
			}
		}()

		b, err := bot.New(ctx, cfg, bot.Options{
			Registerer: reg,
			Execute:    !scanOnly,
			PrivateKey: secrets.PrivateKey,
		}, log)
		if err != nil {
			return err
		}
		if err := b.Start(ctx); err != nil {
			b.Stop()
			return err
		}
		if scanOnly {
			go watch(ctx, b.Scanner(), cfg.Scan.Interval.Duration, log)
		}

		<-ctx.Done()
		log.Info("Shutting down gracefully...")
		b.Stop()
		return nil
	},
}

// watch logs every scan round until ctx is done.
func watch(ctx context.Context, scanner *multichain.Engine, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		res, err := scanner.ScanAll(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Error("Scan failed", zap.Error(err))
		case err == nil:
			log.Info("Scan complete",
				zap.Int("same_chain", len(res.SameChain)),
				zap.Int("cross_chain", len(res.CrossChain)))
			for _, o := range res.SameChain {
				log.Debug("Opportunity",
					zap.String("id", o.ID),
					zap.Uint64("chain", o.ChainID),
					zap.String("kind", string(o.Kind)),
					zap.String("profit", o.ExpectedProfit.String()),
					zap.Int("confidence", o.Confidence))
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().BoolVar(&scanOnly, "scan-only", false, "scan and log opportunities without executing")
}
