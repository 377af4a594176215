package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/toozej/smartlists/internal/types"
)

// Platform limits and pacing defaults.
const (
	DefaultChunkSize   = 100
	DefaultChunkDelay  = 100 * time.Millisecond
	DefaultCallTimeout = 30 * time.Second
)

// Editor mutates an external playlist. Each call is one unit of chunking.
type Editor interface {
	AddItemsToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error
	RemoveItemsFromPlaylist(ctx context.Context, playlistID string, trackIDs []string) error
}

// Options controls chunking and pacing.
type Options struct {
	ChunkSize   int
	ChunkDelay  time.Duration
	CallTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ChunkDelay < 0 {
		o.ChunkDelay = 0
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	return o
}

// Op is the kind of mutation a chunk performs.
type Op string

const (
	OpAdd    Op = "add"
	OpRemove Op = "remove"
)

// ChunkError records one failed chunk.
type ChunkError struct {
	Op    Op
	Index int
	Items []string
	Err   error
}

func (e ChunkError) Error() string {
	return fmt.Sprintf("%s chunk %d (%d items): %v", e.Op, e.Index, len(e.Items), e.Err)
}

func (e ChunkError) Unwrap() error { return e.Err }

// AppliedResult reports what Apply managed to do.
type AppliedResult struct {
	Added   []string
	Removed []string
	Errors  []ChunkError
	// Calls is the number of external calls issued.
	Calls int
	// Cancelled is set when the context ended before every chunk ran.
	Cancelled bool
	// Aborted is set when a fatal error stopped the remaining chunks.
	Aborted bool
}

// Complete reports whether every chunk was applied.
func (r AppliedResult) Complete() bool {
	return len(r.Errors) == 0 && !r.Cancelled && !r.Aborted
}

// AllFailed reports whether calls were made and none succeeded.
func (r AppliedResult) AllFailed() bool {
	return r.Calls > 0 && len(r.Errors) == r.Calls
}

// Err joins the chunk errors, or returns nil.
func (r AppliedResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// ErrorStrings renders the chunk errors for job results.
func (r AppliedResult) ErrorStrings() []string {
	out := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.Error()
	}
	return out
}

// Progress is called after every chunk with the number of chunks done.
type Progress func(done, total int)

// Applier issues a Diff against an Editor.
type Applier struct {
	editor Editor
	opts   Options
	logger *logrus.Logger
}

// NewApplier creates an Applier. Zero options fall back to the defaults.
func NewApplier(editor Editor, opts Options, logger *logrus.Logger) *Applier {
	return &Applier{
		editor: editor,
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

type step struct {
	op    Op
	index int
	items []string
}

// Apply removes then adds in chunks, one call at a time with the configured
// delay between calls. A failed chunk is recorded and the rest still run,
// unless the failure is fatal. Cancellation is honoured between chunks.
func (a *Applier) Apply(ctx context.Context, diff Diff, progress Progress) AppliedResult {
	var steps []step
	for i, c := range Chunk(diff.ToRemove, a.opts.ChunkSize) {
		steps = append(steps, step{op: OpRemove, index: i, items: c})
	}
	for i, c := range Chunk(diff.ToAdd, a.opts.ChunkSize) {
		steps = append(steps, step{op: OpAdd, index: i, items: c})
	}

	log := a.logger.WithFields(logrus.Fields{
		"component":   "reconciler",
		"operation":   "apply",
		"playlist_id": diff.PlaylistID,
	})
	log.WithFields(logrus.Fields{
		"to_add":    len(diff.ToAdd),
		"to_remove": len(diff.ToRemove),
		"chunks":    len(steps),
	}).Debug("Applying playlist diff")

	var res AppliedResult
	for i, s := range steps {
		if i > 0 {
			if err := Sleep(ctx, a.opts.ChunkDelay); err != nil {
				res.Cancelled = true
				break
			}
		}
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}

		err := a.call(ctx, diff.PlaylistID, s)
		res.Calls++

		if err != nil {
			res.Errors = append(res.Errors, ChunkError{Op: s.op, Index: s.index, Items: s.items, Err: err})
			log.WithError(err).WithFields(logrus.Fields{
				"op":          s.op,
				"chunk_index": s.index,
				"chunk_size":  len(s.items),
			}).Warn("Chunk failed")

			if types.IsFatal(err) {
				res.Aborted = true
				break
			}
		} else if s.op == OpAdd {
			res.Added = append(res.Added, s.items...)
		} else {
			res.Removed = append(res.Removed, s.items...)
		}

		if progress != nil {
			progress(i+1, len(steps))
		}
	}

	if res.Cancelled {
		log.WithField("calls", res.Calls).Info("Apply cancelled at chunk boundary")
	}

	log.WithFields(logrus.Fields{
		"added":   len(res.Added),
		"removed": len(res.Removed),
		"errors":  len(res.Errors),
	}).Info("Playlist diff applied")

	return res
}

func (a *Applier) call(ctx context.Context, playlistID string, s step) error {
	callCtx, cancel := context.WithTimeout(ctx, a.opts.CallTimeout)
	defer cancel()

	var err error
	switch s.op {
	case OpAdd:
		err = a.editor.AddItemsToPlaylist(callCtx, playlistID, s.items)
	case OpRemove:
		err = a.editor.RemoveItemsFromPlaylist(callCtx, playlistID, s.items)
	}

	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && !types.IsTransient(err) {
		err = &types.TransientExternalError{
			Op:  string(s.op) + "_items",
			Err: fmt.Errorf("call timed out after %s: %w", a.opts.CallTimeout, err),
		}
	}
	return err
}
