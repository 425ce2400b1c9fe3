package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/api"
	"github.com/JakeFAU/news-harvester/internal/app"
	"github.com/JakeFAU/news-harvester/internal/config"
	"github.com/JakeFAU/news-harvester/internal/crawler"
	"github.com/JakeFAU/news-harvester/internal/orchestrator"
	"github.com/JakeFAU/news-harvester/internal/seeds"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Harvest every seed site and store new articles",
		Long: `Reads the seed list, discovers and extracts each site's sitemaps (and pages
when --crawl-html is set), filters out known articles, optionally enriches
them with images, and stores and announces the rest.`,
		RunE: runHarvest,
	}
	flags := cmd.Flags()
	flags.String("seeds", "", "newline-delimited seed URL file")
	flags.Bool("crawl-html", false, "also scrape each seed page with its selector profile")
	flags.Bool("crawl-all-profiles", false, "also crawl every registered site profile")
	flags.String("mode", "", "unit execution mode: pooled or isolated")
	flags.Int("workers", 0, "concurrent seeds")
	flags.String("metrics-addr", "", "serve /healthz, /status and /metrics on this address during the run")
	bindFlag(v, "harvest.seeds_file", flags.Lookup("seeds"))
	bindFlag(v, "harvest.crawl_html", flags.Lookup("crawl-html"))
	bindFlag(v, "harvest.crawl_all_profiles", flags.Lookup("crawl-all-profiles"))
	bindFlag(v, "harvest.mode", flags.Lookup("mode"))
	bindFlag(v, "harvest.workers", flags.Lookup("workers"))
	bindFlag(v, "server.metrics_addr", flags.Lookup("metrics-addr"))
	return cmd
}

func runHarvest(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := a.Config()
	logger := a.Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seedURLs, err := seeds.ReadFile(cfg.Harvest.SeedsFile)
	if err != nil {
		return fmt.Errorf("read seeds: %w", err)
	}
	lastRun, err := config.ReadLastRun(cfg.State.EnvFile)
	if err != nil {
		logger.Warn("ignoring unreadable run state", zap.Error(err))
	} else if !lastRun.IsZero() {
		logger.Info("previous run", zap.Time("last_fetch_time", lastRun))
	}

	status := api.NewStatus()
	if cfg.Server.MetricsAddr != "" {
		srv := api.NewServer(status, logger)
		addr, err := srv.Start(cfg.Server.MetricsAddr)
		if err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		logger.Info("metrics server listening", zap.String("addr", addr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown", zap.Error(err))
			}
		}()
	}

	store, err := a.OpenStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	archive, err := a.OpenArchive(ctx)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	publisher, err := a.OpenPublisher(ctx)
	if err != nil {
		return fmt.Errorf("open publisher: %w", err)
	}

	status.Set(api.PhaseHarvesting, 0)
	records, err := harvest(ctx, a, archive, seedURLs)
	if err != nil {
		return err
	}

	status.Set(api.PhaseIngesting, len(records))
	pipeline, err := a.Pipeline(store, publisher)
	if err != nil {
		return err
	}
	res, err := pipeline.Run(ctx, records)
	if err != nil {
		logger.Warn("run interrupted before storing", zap.Error(err))
		return nil
	}
	status.Set(api.PhaseDone, res.Inserted)

	logger.Info("run complete",
		zap.Int("seeds", len(seedURLs)),
		zap.Int("received", res.Received),
		zap.Int("admitted", res.Admitted),
		zap.Int("images_found", res.ImagesFound),
		zap.Int("inserted", res.Inserted),
		zap.Int("failed_inserts", res.FailedInserts),
		zap.Int("published", res.Published),
	)

	if res.Inserted > 0 {
		if err := config.WriteLastRun(cfg.State.EnvFile, a.Clock().Now()); err != nil {
			logger.Warn("failed to record run state", zap.Error(err))
		}
	}
	return nil
}

func harvest(ctx context.Context, a *app.App, archive crawler.BlobStore, seedURLs []string) ([]crawler.ArticleRecord, error) {
	cfg := a.Config()
	logger := a.Logger()
	orch, err := a.Orchestrator(archive)
	if err != nil {
		return nil, err
	}

	records, summary := orch.Run(ctx, seedURLs)
	logSummary(logger, "seeds", summary)

	if cfg.Harvest.CrawlAllProfiles {
		more, summary := orch.CrawlProfiles(ctx, a.Profiles())
		logSummary(logger, "profiles", summary)
		records = append(records, more...)
	}
	if len(cfg.Harvest.CustomSites) > 0 {
		more, summary := orch.CrawlCustomSites(ctx, a.CustomSites())
		logSummary(logger, "custom_sites", summary)
		records = append(records, more...)
	}
	return records, nil
}

func logSummary(logger *zap.Logger, phase string, s orchestrator.Summary) {
	logger.Info("harvest phase finished",
		zap.String("phase", phase),
		zap.Int("seeds", s.Seeds),
		zap.Int("sitemaps", s.Sitemaps),
		zap.Int("units", s.Units),
		zap.Int("failed", s.Failed),
		zap.Int("skipped", s.Skipped),
		zap.Int("records", s.Records),
		zap.Duration("duration", s.Duration),
	)
	for _, f := range s.Failures {
		logger.Debug("unit failed", zap.String("kind", string(f.Kind)), zap.String("target", f.Target), zap.Error(f.Err))
	}
}
