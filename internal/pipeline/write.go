package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rtm0/sstpoints/internal/manifest"
	"github.com/rtm0/sstpoints/internal/points"
	"github.com/rtm0/sstpoints/internal/store"
)

// WriteReport summarizes a write invocation.
type WriteReport struct {
	Key      string
	Rows     int
	Written  int
	Failures []points.Failure
}

// Write persists one batch as point artifacts and stages the list of
// artifacts written.
type Write struct {
	deps Deps
	opts []points.Option
}

// NewWrite creates the write stage. opts are passed to the point writer.
func NewWrite(deps Deps, opts ...points.Option) *Write {
	deps.init()
	deps.Logger = deps.Logger.With().Str("stage", "write").Logger()
	return &Write{deps: deps, opts: opts}
}

// PointsManifestName returns the name of the point manifest staged for a
// batch.
func PointsManifestName(time, firstLabel, lastLabel string) string {
	return "points-" + manifestName(time) + "-" + manifestName(firstLabel) + "-" + manifestName(lastLabel) + ".json"
}

// Run writes the points of item. Rows or points that fail are skipped and
// reported; the manifest lists only the artifacts written and is staged even
// when some points failed.
func (w *Write) Run(ctx context.Context, item manifest.Batch) (*WriteReport, error) {
	if item.OutputBucket == "" || item.CollectionName == "" {
		return nil, fmt.Errorf("%w: output_granule_s3bucket and collection_name are required", manifest.ErrSchema)
	}
	labels := item.InputRows.Labels()
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: input_rows is empty", manifest.ErrSchema)
	}
	pts, rowErrs, err := item.InputRows.Points()
	if err != nil {
		return nil, err
	}
	log := w.deps.Logger.With().Str("collection", item.CollectionName).Str("bucket", item.OutputBucket).Logger()

	report := &WriteReport{Rows: len(labels)}
	for _, re := range rowErrs {
		id, convErr := strconv.Atoi(re.Label)
		if convErr != nil {
			id = -1
		}
		f := points.Failure{PointID: id, Time: item.InputRows.Time(re.Label), Err: re}
		log.Error().Err(re.Err).Int("point_id", f.PointID).Str("time", f.Time).Msg("Could not decode point")
		report.Failures = append(report.Failures, f)
		w.deps.Metrics.PointsFailed.Inc()
	}

	dir, ch, err := w.deps.acquire("write")
	if err != nil {
		return nil, err
	}
	defer w.deps.closeScratch(dir)

	opts := append([]points.Option{points.WithMetrics(w.deps.Metrics)}, w.opts...)
	pw := points.NewWriter(log, w.deps.Output, dir, opts...)
	res, err := pw.Write(ctx, item.OutputBucket, item.CollectionName, pts)
	if err != nil {
		return nil, err
	}
	report.Written = len(res.Points)
	report.Failures = append(report.Failures, res.Failures...)

	first, last := labels[0], labels[len(labels)-1]
	name := PointsManifestName(item.InputRows.Time(first), first, last)
	manifestItems := res.Points
	if manifestItems == nil {
		manifestItems = []manifest.Point{}
	}
	report.Key, err = ch.Stage(ctx, item.OutputBucket, item.CollectionName, name, manifestItems, len(manifestItems))
	if err != nil {
		return nil, err
	}
	w.deps.Metrics.ManifestsStaged.WithLabelValues("write").Inc()
	log.Info().Int("rows", report.Rows).Int("written", report.Written).Int("failed", len(report.Failures)).
		Str("uri", store.URI(item.OutputBucket, report.Key)).Msg("Staged points")
	return report, nil
}
