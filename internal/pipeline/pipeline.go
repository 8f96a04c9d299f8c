// Package pipeline runs single invocations of the query, explode and write
// stages. Each invocation runs to completion on one goroutine; fan-out
// between stages is left to the dispatcher reading the staged manifests.
package pipeline

import (
	"errors"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rtm0/sstpoints/internal/dispatch"
	"github.com/rtm0/sstpoints/internal/metrics"
	"github.com/rtm0/sstpoints/internal/scratch"
	"github.com/rtm0/sstpoints/internal/staging"
	"github.com/rtm0/sstpoints/internal/store"
)

// ErrEvent is returned for an invocation event missing a required field.
var ErrEvent = errors.New("invalid stage event")

// Deps are the collaborators shared by all stages.
type Deps struct {
	Logger       zerolog.Logger
	Output       store.Store
	Notifier     dispatch.Notifier
	Metrics      *metrics.Metrics
	ScratchBase  string
	InvocationID string
}

func (d *Deps) init() {
	if d.Notifier == nil {
		d.Notifier = dispatch.Nop{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
}

// acquire creates the invocation's scratch directory and a staging channel
// writing through it. The caller must close the directory.
func (d *Deps) acquire(stage string) (*scratch.Dir, *staging.Channel, error) {
	dir, err := scratch.Acquire(d.ScratchBase, d.InvocationID)
	if err != nil {
		return nil, nil, err
	}
	ch := staging.NewChannel(d.Logger, d.Output, dir, d.Notifier, stage, d.InvocationID)
	return dir, ch, nil
}

func (d *Deps) closeScratch(dir *scratch.Dir) {
	if err := dir.Close(); err != nil {
		d.Logger.Warn().Err(err).Str("path", dir.Root()).Msg("Could not remove scratch directory")
	}
}

// manifestName makes s safe to use in a manifest file name.
func manifestName(s string) string {
	s = path.Base(s)
	s = strings.TrimSuffix(s, path.Ext(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, s)
}
