package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Super-Meta77/sefaria-backend/internal/app"
	"github.com/Super-Meta77/sefaria-backend/internal/domain"
	"github.com/Super-Meta77/sefaria-backend/internal/modules/sugya"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/gcp"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/logger"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type extractFlags struct {
	tractate         string
	startPage        string
	limit            int
	all              bool
	limitPerTractate int
	export           string
}

func newRootCmd() *cobra.Command {
	f := extractFlags{}
	cmd := &cobra.Command{
		Use:          "extract",
		Short:        "Analyse Talmud pages and persist sugyot with their dialectic nodes",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !f.all && f.tractate == "" {
				return fmt.Errorf("--tractate is required unless --all is set")
			}
			return withCore(cmd.Context(), func(ctx context.Context, core *app.Core) error {
				result, runErr := runExtract(ctx, cmd.OutOrStdout(), core.Extractor, f)
				if result == nil {
					return runErr
				}
				if err := export(ctx, core.Log, f.export, result); err != nil {
					return err
				}
				return runErr
			})
		},
	}
	cmd.Flags().StringVar(&f.tractate, "tractate", "Berakhot", "tractate to extract")
	cmd.Flags().StringVar(&f.startPage, "start-page", "2a", `page to extract; "" extracts every page`)
	cmd.Flags().IntVar(&f.limit, "limit", sugya.DefaultLimit, "maximum text units to fetch")
	cmd.Flags().BoolVar(&f.all, "all", false, "extract every tractate found in the graph")
	cmd.Flags().IntVar(&f.limitPerTractate, "limit-per-tractate", sugya.DefaultLimitPerTractate, "maximum text units per tractate with --all")
	cmd.Flags().StringVar(&f.export, "export", "", "write the result as JSON to a file or gs://bucket/key")
	cmd.AddCommand(newSeedCmd())
	return cmd
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the built-in sugya headers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			seeds, err := sugya.LoadSeeds()
			if err != nil {
				return err
			}
			return withCore(cmd.Context(), func(ctx context.Context, core *app.Core) error {
				res := sugya.Seed(ctx, core.Log, core.Writer, seeds)
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d/%d sugyot\n", res.Created, res.Total)
				if len(res.Failed) > 0 {
					return fmt.Errorf("failed to seed: %v", res.Failed)
				}
				return nil
			})
		},
	}
}

func withCore(parent context.Context, fn func(context.Context, *app.Core) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := app.LoadConfig()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	core, err := app.NewCore(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer core.Close(context.Background())
	return fn(ctx, core)
}

type extractor interface {
	ExtractOne(ctx context.Context, tractate, startPage string, limit int) (domain.ExtractionStats, error)
	ExtractAll(ctx context.Context, limitPerTractate int) (domain.ExtractionSummary, error)
}

// runExtract prints one line per tractate. With --all, tractates that failed are
// listed with their error and make the command fail once the summary is written.
func runExtract(ctx context.Context, out io.Writer, ex extractor, f extractFlags) (any, error) {
	if !f.all {
		stats, err := ex.ExtractOne(ctx, f.tractate, f.startPage, f.limit)
		if err != nil {
			return nil, err
		}
		printStats(out, stats.Tractate, stats.TotalExtracted, stats.Saved, stats.Failed)
		return stats, nil
	}

	sum, err := ex.ExtractAll(ctx, f.limitPerTractate)
	if err != nil {
		return nil, err
	}
	failed := 0
	for _, d := range sum.TractateDetails {
		if d.Error != "" {
			failed++
			fmt.Fprintf(out, "%s: error=%s\n", d.Tractate, d.Error)
			continue
		}
		printStats(out, d.Tractate, d.Extracted, d.Saved, d.Failed)
	}
	fmt.Fprintf(out, "tractates: %d found, %d processed\n", sum.TractatesFound, sum.TractatesProcessed)
	fmt.Fprintf(out, "sugyot: extracted=%d saved=%d failed=%d\n", sum.TotalExtracted, sum.TotalSaved, sum.TotalFailed)
	if failed > 0 {
		return sum, fmt.Errorf("%d of %d tractates failed", failed, sum.TractatesFound)
	}
	return sum, nil
}

func printStats(out io.Writer, tractate string, extracted, saved, failed int) {
	fmt.Fprintf(out, "%s: extracted=%d saved=%d failed=%d\n", tractate, extracted, saved, failed)
}

func export(ctx context.Context, log *logger.Logger, dest string, v any) error {
	if dest == "" {
		return nil
	}
	e := gcp.NewExporter(log)
	defer e.Close()
	_, err := e.ExportJSON(ctx, dest, v)
	return err
}
