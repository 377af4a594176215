package syncer

import (
	"context"

	"github.com/toozej/smartlists/internal/jobs"
	"github.com/toozej/smartlists/internal/types"
)

// Job targets for the passes that are not tied to one playlist.
const (
	TargetAll     = "all"
	TargetLibrary = "library"
)

type holderKey struct{}

func withHolder(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, holderKey{}, jobID)
}

// holderFrom returns the ID of the job running the pass.
func holderFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(holderKey{}).(string)
	return id, ok && id != ""
}

// Register installs the sync handlers on m. Playlist passes then lock each
// smart playlist through m, so they exclude each other in every process
// sharing m's store.
func (s *Syncer) Register(m *jobs.Manager) {
	s.locker = m
	m.Handle(jobs.KindSyncPlaylist, func(ctx context.Context, job jobs.Job, report jobs.ProgressFunc) (types.SyncResult, error) {
		return s.SyncPlaylist(withHolder(ctx, job.ID), job.Payload.Target, job.Payload.Force, Progress(report))
	})
	m.Handle(jobs.KindSyncAll, func(ctx context.Context, job jobs.Job, report jobs.ProgressFunc) (types.SyncResult, error) {
		return s.SyncAll(withHolder(ctx, job.ID), job.Payload.Force, Progress(report))
	})
	m.Handle(jobs.KindMirrorLibrary, func(ctx context.Context, job jobs.Job, report jobs.ProgressFunc) (types.SyncResult, error) {
		return s.MirrorLibrary(ctx, job.Payload.Force, Progress(report))
	})
}

// PlaylistPayload is the job payload that syncs one smart playlist.
func PlaylistPayload(playlistID string, force bool) jobs.Payload {
	return jobs.Payload{Kind: jobs.KindSyncPlaylist, Target: playlistID, Force: force}
}

// AllPayload is the job payload that syncs every active smart playlist.
func AllPayload(force bool) jobs.Payload {
	return jobs.Payload{Kind: jobs.KindSyncAll, Target: TargetAll, Force: force}
}

// LibraryPayload is the job payload that mirrors the library.
func LibraryPayload(force bool) jobs.Payload {
	return jobs.Payload{Kind: jobs.KindMirrorLibrary, Target: TargetLibrary, Force: force}
}
