// Package staging hands manifests from one stage to the next through the
// object store.
package staging

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/rs/zerolog"

	"github.com/rtm0/sstpoints/internal/dispatch"
	"github.com/rtm0/sstpoints/internal/manifest"
	"github.com/rtm0/sstpoints/internal/scratch"
	"github.com/rtm0/sstpoints/internal/store"
)

// Key returns the object key of a manifest named name.
func Key(collection, name string) string {
	return collection + "/json/" + name
}

// Channel stages manifests produced by one stage invocation.
type Channel struct {
	logger       zerolog.Logger
	store        store.Store
	dir          *scratch.Dir
	notifier     dispatch.Notifier
	stage        string
	invocationID string
}

// NewChannel creates a channel that writes through dir and uploads to st.
func NewChannel(logger zerolog.Logger, st store.Store, dir *scratch.Dir, notifier dispatch.Notifier, stage, invocationID string) *Channel {
	if notifier == nil {
		notifier = dispatch.Nop{}
	}
	return &Channel{
		logger:       logger,
		store:        st,
		dir:          dir,
		notifier:     notifier,
		stage:        stage,
		invocationID: invocationID,
	}
}

// Stage writes m as JSON to bucket/collection/json/name and returns the key.
// The local copy is removed whether or not the upload succeeds. items is the
// number of work items in m and is only reported.
//
// The notification is sent after the upload. When it fails the error is
// returned but the uploaded manifest stays in place; rerunning the
// invocation overwrites it under the same key before notifying again.
func (c *Channel) Stage(ctx context.Context, bucket, collection, name string, m any, items int) (string, error) {
	key := Key(collection, name)
	local, err := c.dir.File(path.Join("json", name))
	if err != nil {
		return "", err
	}
	defer func() {
		if err := c.dir.Remove(local); err != nil {
			c.logger.Warn().Err(err).Str("path", local).Msg("Could not remove scratch manifest")
		}
	}()

	if err := writeJSON(local, m); err != nil {
		return "", fmt.Errorf("cannot write manifest %s: %w", name, err)
	}
	if err := c.store.Upload(ctx, bucket, key, local); err != nil {
		return "", err
	}
	c.logger.Info().Str("uri", store.URI(bucket, key)).Int("items", items).Msg("Uploaded manifest")

	err = c.notifier.Notify(ctx, dispatch.Staged{
		Stage:        c.stage,
		Bucket:       bucket,
		Key:          key,
		Items:        items,
		InvocationID: c.invocationID,
		StagedAt:     time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

func writeJSON(p string, m any) error {
	f, err := os.Create(p)
	if err != nil {
		return err
	}
	if err := manifest.Encode(f, m); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
