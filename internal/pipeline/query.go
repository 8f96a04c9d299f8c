package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rtm0/sstpoints/internal/cmr"
	"github.com/rtm0/sstpoints/internal/edl"
	"github.com/rtm0/sstpoints/internal/manifest"
	"github.com/rtm0/sstpoints/internal/store"
)

// GranulesManifest is the name of the Query→Explode manifest.
const GranulesManifest = "granules.json"

// QueryEvent starts a query invocation.
type QueryEvent struct {
	Prefix               string `json:"prefix"`
	S3Bucket             string `json:"s3_bucket"`
	CollectionShortnames string `json:"collection_shortnames"`
	StartTime            string `json:"start_time"`
	EndTime              string `json:"end_time"`
}

// Collections returns the comma separated collection short names.
func (e *QueryEvent) Collections() []string {
	var cs []string
	for _, c := range strings.Split(e.CollectionShortnames, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cs = append(cs, c)
		}
	}
	return cs
}

// Query discovers the granules of each collection within a time window and
// stages one granule manifest per collection.
type Query struct {
	deps    Deps
	catalog cmr.Catalog
}

// NewQuery creates the query stage.
func NewQuery(deps Deps, catalog cmr.Catalog) *Query {
	deps.init()
	deps.Logger = deps.Logger.With().Str("stage", "query").Logger()
	return &Query{deps: deps, catalog: catalog}
}

// Run searches every collection of ev and returns the keys of the staged
// manifests.
func (q *Query) Run(ctx context.Context, ev QueryEvent) ([]string, error) {
	if _, err := edl.Endpoint(ev.Prefix); err != nil {
		return nil, err
	}
	if ev.S3Bucket == "" {
		return nil, fmt.Errorf("%w: s3_bucket is required", ErrEvent)
	}
	collections := ev.Collections()
	if len(collections) == 0 {
		return nil, fmt.Errorf("%w: collection_shortnames is required", ErrEvent)
	}
	start, err := parseEventTime("start_time", ev.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := parseEventTime("end_time", ev.EndTime)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end_time %s is before start_time %s", ErrEvent, ev.EndTime, ev.StartTime)
	}

	dir, ch, err := q.deps.acquire("query")
	if err != nil {
		return nil, err
	}
	defer q.deps.closeScratch(dir)

	var keys []string
	for _, collection := range collections {
		granules, err := q.catalog.Search(ctx, collection, start, end)
		if err != nil {
			return keys, err
		}
		items := make([]manifest.Granule, 0, len(granules))
		for _, g := range granules {
			items = append(items, manifest.Granule{
				InputGranulePath: g.S3URL,
				OutputBucket:     ev.S3Bucket,
				Prefix:           ev.Prefix,
				CollectionName:   collection,
			})
		}
		key, err := ch.Stage(ctx, ev.S3Bucket, collection, GranulesManifest, items, len(items))
		if err != nil {
			return keys, err
		}
		q.deps.Metrics.ManifestsStaged.WithLabelValues("query").Inc()
		q.deps.Logger.Info().Str("collection", collection).Int("granules", len(items)).
			Str("uri", store.URI(ev.S3Bucket, key)).Msg("Staged granules")
		keys = append(keys, key)
	}
	return keys, nil
}

func parseEventTime(field, s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, strings.TrimSpace(s), time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s %q is not a timestamp", ErrEvent, field, s)
}
