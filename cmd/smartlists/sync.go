package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/toozej/smartlists/internal/jobs"
	"github.com/toozej/smartlists/internal/syncer"
)

// newSyncCmd creates the sync command for pushing smart playlists to Spotify.
func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [playlist]",
		Short: "Sync smart playlists to Spotify",
		Long: `Evaluate smart playlists against the library and update the matching
Spotify playlists with the minimal set of additions and removals.
The playlist may be given by ID or by approximate name using fuzzy matching.
Unchanged playlists are skipped unless --force is set.`,
		Args: cobra.MaximumNArgs(1),
		Run:  runSync,
	}

	cmd.Flags().BoolP("all", "a", false, "Sync every active smart playlist")
	cmd.Flags().BoolP("force", "f", false, "Sync even when the playlist is unchanged since the last sync")

	return cmd
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// syncPayload builds the job for the given arguments.
func syncPayload(ctx context.Context, s *services, args []string, all, force bool) (jobs.Payload, error) {
	switch {
	case all && len(args) > 0:
		return jobs.Payload{}, errors.New("give a playlist or --all, not both")
	case all:
		return syncer.AllPayload(force), nil
	case len(args) == 0:
		return jobs.Payload{}, errors.New("a playlist name or ID is required unless --all is set")
	}

	query := strings.TrimSpace(args[0])
	match, err := s.searcher.Resolve(ctx, query)
	if err != nil {
		return jobs.Payload{}, err
	}
	log.WithFields(log.Fields{
		"query":       query,
		"playlist":    match.Playlist.Name,
		"playlist_id": match.Playlist.ID,
		"confidence":  match.Confidence,
	}).Info("Resolved smart playlist")
	return syncer.PlaylistPayload(match.Playlist.ID, force), nil
}

// runSync executes the sync command.
func runSync(cmd *cobra.Command, args []string) {
	all, _ := cmd.Flags().GetBool("all")
	force, _ := cmd.Flags().GetBool("force")

	ctx, stop := signalContext()
	defer stop()

	s, err := initializeAllServices(ctx, conf)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize services")
		return
	}
	defer s.Close(context.Background())

	payload, err := syncPayload(ctx, s, args, all, force)
	if err != nil {
		log.WithError(err).Error("Failed to select smart playlists")
		return
	}

	if err := ensureAuthenticated(ctx, s); err != nil {
		log.WithError(err).Error("Cannot sync without Spotify access")
		return
	}

	job, err := s.runJob(ctx, payload)
	if err != nil {
		log.WithError(err).Error("Sync did not finish")
		return
	}
	printJob(os.Stdout, job)
}

// printJob writes a human-readable summary of a finished job.
func printJob(w io.Writer, job jobs.Job) {
	_, _ = fmt.Fprintf(w, "\nJob %s (%s %s): %s\n", job.ID, job.Payload.Kind, job.Payload.Target, job.State)
	if job.Error != "" {
		_, _ = fmt.Fprintf(w, "   Error: %s\n", job.Error)
	}
	if job.Result == nil {
		return
	}

	r := job.Result
	switch job.Payload.Kind {
	case jobs.KindMirrorLibrary:
		_, _ = fmt.Fprintf(w, "   Tracks seen: %d\n", r.TotalTracks)
		_, _ = fmt.Fprintf(w, "   Tracks added: %d\n", r.NewTracks)
		_, _ = fmt.Fprintf(w, "   Tracks updated: %d\n", r.UpdatedTracks)
	case jobs.KindSeed:
		_, _ = fmt.Fprintf(w, "   Definitions: %d\n", r.TotalTracks)
		_, _ = fmt.Fprintf(w, "   Playlists created: %d\n", r.NewTracks)
	default:
		_, _ = fmt.Fprintf(w, "   Tracks in playlist: %d\n", r.TotalTracks)
		_, _ = fmt.Fprintf(w, "   Tracks added: %d\n", r.NewTracks)
		_, _ = fmt.Fprintf(w, "   Tracks removed: %d\n", r.UpdatedTracks)
	}
	if len(r.Errors) > 0 {
		_, _ = fmt.Fprintf(w, "   Errors (%d):\n", len(r.Errors))
		for _, e := range r.Errors {
			_, _ = fmt.Fprintf(w, "     - %s\n", e)
		}
	}
}
