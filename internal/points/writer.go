// Package points persists point records as individual Parquet artifacts.
package points

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/rtm0/sstpoints/internal/manifest"
	"github.com/rtm0/sstpoints/internal/metrics"
	"github.com/rtm0/sstpoints/internal/scratch"
	"github.com/rtm0/sstpoints/internal/sst"
	"github.com/rtm0/sstpoints/internal/store"
)

// Failure is a point that could not be persisted.
type Failure struct {
	PointID int
	Time    string
	Err     error
}

func (f Failure) Error() string {
	return fmt.Sprintf("point %d at %s: %v", f.PointID, f.Time, f.Err)
}

// Result lists the artifacts written for a batch and the points skipped.
type Result struct {
	Points   []manifest.Point
	Failures []Failure
}

// Writer uploads one artifact per point. Each point goes through its own
// scratch file, which is removed before the next point is written.
type Writer struct {
	logger  zerolog.Logger
	store   store.Store
	dir     *scratch.Dir
	encode  Encoder
	metrics *metrics.Metrics
}

// Option configures a Writer.
type Option func(*Writer)

// WithEncoder replaces the Parquet encoder.
func WithEncoder(enc Encoder) Option {
	return func(w *Writer) { w.encode = enc }
}

// WithMetrics counts written and failed points.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Writer) { w.metrics = m }
}

// NewWriter creates a writer uploading to st through dir.
func NewWriter(logger zerolog.Logger, st store.Store, dir *scratch.Dir, opts ...Option) *Writer {
	w := &Writer{
		logger: logger,
		store:  st,
		dir:    dir,
		encode: EncodeParquet,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write persists pts to bucket in order. A point that fails to serialize or
// upload is logged, reported in the result and skipped; the remaining points
// are still written. Only a cancelled context stops the batch early.
func (w *Writer) Write(ctx context.Context, bucket, collection string, pts []sst.Point) (Result, error) {
	var res Result
	for i := range pts {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		p := &pts[i]
		key := p.Key(collection)
		if err := w.writeOne(ctx, bucket, key, p); err != nil {
			f := Failure{PointID: p.PointID, Time: p.Time, Err: err}
			w.logger.Error().Err(err).Int("point_id", p.PointID).Str("time", p.Time).Msg("Could not write point")
			res.Failures = append(res.Failures, f)
			if w.metrics != nil {
				w.metrics.PointsFailed.Inc()
			}
			continue
		}
		res.Points = append(res.Points, manifest.Point{
			InputS3Path:    store.URI(bucket, key),
			CollectionName: collection,
			OutputS3Bucket: bucket,
		})
		if w.metrics != nil {
			w.metrics.PointsWritten.Inc()
		}
	}
	return res, nil
}

func (w *Writer) writeOne(ctx context.Context, bucket, key string, p *sst.Point) error {
	local, err := w.dir.File(key)
	if err != nil {
		return err
	}
	defer func() {
		if err := w.dir.Remove(local); err != nil {
			w.logger.Warn().Err(err).Str("path", local).Msg("Could not remove scratch artifact")
		}
	}()

	f, err := os.Create(local)
	if err != nil {
		return err
	}
	if err := w.encode(f, p); err != nil {
		f.Close()
		return fmt.Errorf("cannot serialize: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	w.logger.Debug().Str("path", local).Msg("Wrote point to scratch")
	return w.store.Upload(ctx, bucket, key, local)
}
