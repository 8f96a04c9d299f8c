package pipeline

import (
	"context"
	"fmt"
	"path"

	"github.com/rtm0/sstpoints/internal/batch"
	"github.com/rtm0/sstpoints/internal/edl"
	"github.com/rtm0/sstpoints/internal/manifest"
	"github.com/rtm0/sstpoints/internal/secrets"
	"github.com/rtm0/sstpoints/internal/sst"
	"github.com/rtm0/sstpoints/internal/store"
)

// ExplodeEvent is a Query→Explode work item. The granule path is accepted
// under both input_granule_path and input_granule_s3path.
type ExplodeEvent struct {
	Prefix             string `json:"prefix"`
	InputGranulePath   string `json:"input_granule_path,omitempty"`
	InputGranuleS3Path string `json:"input_granule_s3path,omitempty"`
	OutputBucket       string `json:"output_granule_s3bucket"`
	CollectionName     string `json:"collection_name"`
}

// GranulePath returns the source granule URI.
func (e *ExplodeEvent) GranulePath() string {
	if e.InputGranuleS3Path != "" {
		return e.InputGranuleS3Path
	}
	return e.InputGranulePath
}

// CredentialSource exchanges an identity for temporary S3 credentials.
type CredentialSource interface {
	Credentials(ctx context.Context, endpoint, username, password string) (*edl.Credentials, error)
}

// SourceFactory opens the restricted source store with temporary
// credentials.
type SourceFactory func(creds *edl.Credentials) (store.Store, error)

// Loader reads a granule file into a grid.
type Loader func(filePath string) (*sst.Grid, error)

// ExplodeOptions configures batching.
type ExplodeOptions struct {
	BatchSize int
	// RowLimit truncates the flattened points before batching; negative
	// keeps all points.
	RowLimit int
}

// Explode flattens one granule into points and stages them as write batches.
type Explode struct {
	deps    Deps
	opts    ExplodeOptions
	secrets secrets.Store
	broker  CredentialSource
	source  SourceFactory
	load    Loader
}

// NewExplode creates the explode stage.
func NewExplode(deps Deps, opts ExplodeOptions, sec secrets.Store, broker CredentialSource, source SourceFactory, load Loader) *Explode {
	deps.init()
	deps.Logger = deps.Logger.With().Str("stage", "explode").Logger()
	return &Explode{
		deps:    deps,
		opts:    opts,
		secrets: sec,
		broker:  broker,
		source:  source,
		load:    load,
	}
}

// ManifestName returns the name of the batch manifest staged for a granule.
func ManifestName(granulePath string) string {
	return "explode-" + manifestName(granulePath) + ".json"
}

// Run explodes the granule of ev and returns the key of the staged batch
// manifest. Nothing is staged when any step fails.
func (x *Explode) Run(ctx context.Context, ev ExplodeEvent) (string, error) {
	if err := batch.CheckSize(x.opts.BatchSize); err != nil {
		return "", err
	}
	granule := ev.GranulePath()
	if granule == "" || ev.OutputBucket == "" || ev.CollectionName == "" {
		return "", fmt.Errorf("%w: input_granule_path, output_granule_s3bucket and collection_name are required", ErrEvent)
	}
	srcBucket, srcKey, err := store.ParseURI(granule)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEvent, err)
	}
	endpoint, err := edl.Endpoint(ev.Prefix)
	if err != nil {
		return "", err
	}
	log := x.deps.Logger.With().Str("granule", granule).Str("collection", ev.CollectionName).Logger()

	username, err := x.secrets.Lookup(ctx, edl.UsernameParam(ev.Prefix))
	if err != nil {
		return "", err
	}
	password, err := x.secrets.Lookup(ctx, edl.PasswordParam(ev.Prefix))
	if err != nil {
		return "", err
	}
	log.Info().Msg("Retrieved Earthdata login credentials")
	creds, err := x.broker.Credentials(ctx, endpoint, username, password)
	if err != nil {
		return "", err
	}
	src, err := x.source(creds)
	if err != nil {
		return "", err
	}

	dir, ch, err := x.deps.acquire("explode")
	if err != nil {
		return "", err
	}
	defer x.deps.closeScratch(dir)

	local, err := dir.File(path.Join("granule", path.Base(srcKey)))
	if err != nil {
		return "", err
	}
	if err := src.Download(ctx, srcBucket, srcKey, local); err != nil {
		return "", err
	}
	grid, err := x.load(local)
	if rmErr := dir.Remove(local); rmErr != nil {
		log.Warn().Err(rmErr).Str("path", local).Msg("Could not remove scratch granule")
	}
	if err != nil {
		return "", fmt.Errorf("cannot load %s: %w", granule, err)
	}
	log.Info().Fields(grid.Summary()).Msg("Loaded granule")

	pts, err := sst.Flatten(grid)
	if err != nil {
		return "", err
	}
	x.deps.Metrics.RecordsFlattened.Add(float64(len(pts)))
	if missing := sst.MissingCount(pts); missing > 0 {
		log.Debug().Int("missing", missing).Msg("Granule has cells without a value")
	}
	if x.opts.RowLimit >= 0 {
		pts = batch.Limit(pts, x.opts.RowLimit)
		log.Warn().Int("rows", len(pts)).Msg("Truncated points for development")
	}

	batches, err := batch.Split(pts, x.opts.BatchSize)
	if err != nil {
		return "", err
	}
	items := make([]manifest.Batch, 0, batch.Count(len(pts), x.opts.BatchSize))
	for _, b := range batches {
		items = append(items, manifest.Batch{
			InputRows:      manifest.NewTable(b),
			OutputBucket:   ev.OutputBucket,
			CollectionName: ev.CollectionName,
		})
	}
	x.deps.Metrics.BatchesEmitted.Add(float64(len(items)))

	key, err := ch.Stage(ctx, ev.OutputBucket, ev.CollectionName, ManifestName(granule), items, len(items))
	if err != nil {
		return "", err
	}
	x.deps.Metrics.ManifestsStaged.WithLabelValues("explode").Inc()
	log.Info().Int("points", len(pts)).Int("batches", len(items)).Int("batchSize", x.opts.BatchSize).
		Str("uri", store.URI(ev.OutputBucket, key)).Msg("Staged batches")
	return key, nil
}
