package cmd

import (
	"context"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/toozej/smartlists/internal/syncer"
)

// newMirrorCmd creates the mirror command for pulling Spotify collections into the library.
func newMirrorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Mirror Spotify collections into the library",
		Long: `Copy the configured Spotify collections (SYNC_MIRROR_SOURCES) into the local
library, fetch audio features for tracks that lack them, and recompute
album and artist aggregates for everything that changed.`,
		Args: cobra.NoArgs,
		Run:  runMirror,
	}

	cmd.Flags().BoolP("force", "f", false, "Re-read sources even when their snapshot is unchanged")

	return cmd
}

// runMirror executes the mirror command.
func runMirror(cmd *cobra.Command, args []string) {
	force, _ := cmd.Flags().GetBool("force")

	ctx, stop := signalContext()
	defer stop()

	s, err := initializeAllServices(ctx, conf)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize services")
		return
	}
	defer s.Close(context.Background())

	if err := ensureAuthenticated(ctx, s); err != nil {
		log.WithError(err).Error("Cannot mirror without Spotify access")
		return
	}

	job, err := s.runJob(ctx, syncer.LibraryPayload(force))
	if err != nil {
		log.WithError(err).Error("Mirror did not finish")
		return
	}
	printJob(os.Stdout, job)
}
