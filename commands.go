package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rtm0/sstpoints/internal/cmr"
	"github.com/rtm0/sstpoints/internal/config"
	"github.com/rtm0/sstpoints/internal/dispatch"
	"github.com/rtm0/sstpoints/internal/edl"
	"github.com/rtm0/sstpoints/internal/logger"
	"github.com/rtm0/sstpoints/internal/manifest"
	"github.com/rtm0/sstpoints/internal/metrics"
	"github.com/rtm0/sstpoints/internal/pipeline"
	"github.com/rtm0/sstpoints/internal/secrets"
	"github.com/rtm0/sstpoints/internal/sst"
	"github.com/rtm0/sstpoints/internal/store"
)

// invocation holds what every stage command builds before running.
type invocation struct {
	cfg    *config.Config
	logger zerolog.Logger
	deps   pipeline.Deps
}

func queryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query",
		Short: "Search the catalog and stage one granule manifest per collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), "query", func(ctx context.Context, inv *invocation) error {
				var ev pipeline.QueryEvent
				if err := readEvent(eventFile, cmd.InOrStdin(), &ev); err != nil {
					return err
				}
				catalog := cmr.NewClient(inv.logger, inv.cfg.CMRURL, inv.cfg.HTTPTimeout)
				_, err := pipeline.NewQuery(inv.deps, catalog).Run(ctx, ev)
				return err
			})
		},
	}
}

func explodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explode",
		Short: "Flatten one granule into points and stage its write batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), "explode", func(ctx context.Context, inv *invocation) error {
				cfg := inv.cfg
				if err := cfg.ValidateExplode(); err != nil {
					return err
				}
				var ev pipeline.ExplodeEvent
				if err := readEvent(eventFile, cmd.InOrStdin(), &ev); err != nil {
					return err
				}
				sec, err := newSecrets(ctx, cfg)
				if err != nil {
					return err
				}
				vars := sst.DefaultVariables
				vars.Value = cfg.ValueVariable
				vars.Anomaly = cfg.AnomalyVariable
				load := func(p string) (*sst.Grid, error) { return sst.Open(p, vars) }

				x := pipeline.NewExplode(inv.deps,
					pipeline.ExplodeOptions{BatchSize: cfg.BatchSize, RowLimit: cfg.RowLimit()},
					sec, edl.NewClient(inv.logger, cfg.HTTPTimeout), sourceFactory(cfg), load)
				_, err = x.Run(ctx, ev)
				return err
			})
		},
	}
}

func writeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write",
		Short: "Write one batch of points as Parquet artifacts and stage the point manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), "write", func(ctx context.Context, inv *invocation) error {
				var item manifest.Batch
				if err := readEvent(eventFile, cmd.InOrStdin(), &item); err != nil {
					return err
				}
				report, err := pipeline.NewWrite(inv.deps).Run(ctx, item)
				if err != nil {
					return err
				}
				if len(report.Failures) > 0 {
					inv.logger.Warn().Int("failed", len(report.Failures)).Int("rows", report.Rows).
						Msg("Some points were not written")
				}
				return nil
			})
		},
	}
}

// run builds the invocation for stage, runs fn and reports the outcome.
func run(ctx context.Context, stage string, fn func(context.Context, *invocation) error) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		l := logger.New(logger.Options{})
		l.Error().Err(err).Str("stage", stage).Msg("Could not load configuration")
		return err
	}
	id := uuid.NewString()
	log := logger.New(cfg.Log).With().Str("invocation_id", id).Logger()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	output, err := newStore(cfg.StoreBackend, cfg.StoreFSRoot, cfg.Output)
	if err != nil {
		log.Error().Err(err).Msg("Could not create output store")
		return err
	}
	notifier := newNotifier(log, cfg)
	defer func() {
		if err := notifier.Close(); err != nil {
			log.Warn().Err(err).Msg("Could not close notifier")
		}
	}()
	m := metrics.New()
	inv := &invocation{
		cfg:    cfg,
		logger: log,
		deps: pipeline.Deps{
			Logger:       log,
			Output:       output,
			Notifier:     notifier,
			Metrics:      m,
			ScratchBase:  cfg.ScratchDir,
			InvocationID: id,
		},
	}

	start := time.Now()
	err = fn(ctx, inv)
	m.ObserveStage(stage, start, err)
	if pushErr := m.Push(context.WithoutCancel(ctx), cfg.PushgatewayURL, "sstpoints_"+stage, id); pushErr != nil {
		log.Warn().Err(pushErr).Msg("Could not push metrics")
	}
	if err != nil {
		log.Error().Err(err).Str("stage", stage).Dur("took", time.Since(start)).Msg("Stage failed")
		return err
	}
	log.Info().Str("stage", stage).Dur("took", time.Since(start)).Msg("Stage completed")
	return nil
}

// readEvent decodes the event at path, or from stdin when path is "-".
func readEvent(path string, stdin io.Reader, v any) error {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("%w: %v", pipeline.ErrEvent, err)
		}
		defer f.Close()
		r = f
	}
	if err := manifest.Decode(r, v); err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrEvent, err)
	}
	return nil
}

func newStore(backend, fsRoot string, s3 config.S3) (store.Store, error) {
	if backend == "fs" {
		return store.NewFS(fsRoot), nil
	}
	return store.NewMinIO(store.S3Options{
		Endpoint: s3.Endpoint,
		Region:   s3.Region,
		Insecure: s3.Insecure,
	})
}

// sourceFactory opens the restricted source bucket with the session
// credentials of the broker. The fs backend ignores them.
func sourceFactory(cfg *config.Config) pipeline.SourceFactory {
	return func(c *edl.Credentials) (store.Store, error) {
		if cfg.StoreBackend == "fs" {
			return store.NewFS(cfg.StoreFSRoot), nil
		}
		return store.NewMinIO(store.S3Options{
			Endpoint: cfg.Source.Endpoint,
			Region:   cfg.Source.Region,
			Insecure: cfg.Source.Insecure,
			Creds:    store.SessionCredentials(c.AccessKeyID, c.SecretAccessKey, c.SessionToken),
		})
	}
}

func newSecrets(ctx context.Context, cfg *config.Config) (secrets.Store, error) {
	if cfg.SecretsBackend == "env" {
		return secrets.NewEnv(), nil
	}
	return secrets.NewSSM(ctx, cfg.SSMRegion)
}

func newNotifier(log zerolog.Logger, cfg *config.Config) dispatch.Notifier {
	if len(cfg.KafkaBrokers) == 0 {
		return dispatch.Nop{}
	}
	return dispatch.NewKafka(log, cfg.KafkaBrokers, cfg.KafkaTopic)
}
