package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/toozej/smartlists/internal/api"
	"github.com/toozej/smartlists/internal/scheduler"
)

// shutdownTimeout bounds how long running jobs get to stop.
const shutdownTimeout = 30 * time.Second

// newServeCmd creates the serve command running the scheduler and HTTP API.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and HTTP API",
		Long: `Serve the HTTP API for triggering syncs and reading job status, seed the
default smart playlists on first start, and run the library mirror and
playlist sync on the configured schedule (SYNC_SCHEDULE).
Visit /login on the server to authorize Spotify access.`,
		Args: cobra.NoArgs,
		Run:  runServe,
	}

	cmd.Flags().Bool("no-schedule", false, "Only serve the API, do not run scheduled syncs")

	return cmd
}

// runServe executes the serve command.
func runServe(cmd *cobra.Command, args []string) {
	noSchedule, _ := cmd.Flags().GetBool("no-schedule")

	ctx, stop := signalContext()
	defer stop()

	s, err := initializeAllServices(ctx, conf)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize services")
		return
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.Close(shutdownCtx)
	}()

	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	serverAddr := conf.Server.Address()
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           api.NewRouter(s.jobs, s.searcher, s.spotify, log.StandardLogger()),
		ReadHeaderTimeout: 10 * time.Second, // Prevent Slowloris attacks
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("address", serverAddr).Info("Starting HTTP API")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if !s.spotify.IsAuthenticated() {
		log.WithField("login_url", "http://"+serverAddr+"/login").Warn("Spotify is not authorized yet")
	}

	if job, joined, err := s.seeder.Enqueue(ctx, s.jobs); err != nil {
		log.WithError(err).Error("Failed to seed default smart playlists")
	} else {
		log.WithFields(log.Fields{"job_id": job.ID, "joined": joined}).Debug("Seeding default smart playlists")
	}

	if conf.Seed.Watch {
		if err := s.seeder.Watch(ctx, s.jobs); err != nil {
			log.WithError(err).Error("Failed to watch seed file")
		}
	}

	if !noSchedule {
		sched := scheduler.New(conf.Sync.Schedule, s.jobs, log.StandardLogger())
		if err := sched.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start scheduler")
			return
		}
		defer sched.Stop()
	}

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-serverErr:
		log.WithError(err).Error("HTTP API stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Error shutting down HTTP API")
	}
}
