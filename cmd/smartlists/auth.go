package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/toozej/smartlists/internal/api"
)

// authTimeout bounds how long the temporary callback server waits.
const authTimeout = 5 * time.Minute

// ensureAuthenticated starts the OAuth flow when no valid token is stored.
func ensureAuthenticated(ctx context.Context, s *services) error {
	if s.spotify.IsAuthenticated() {
		return nil
	}
	log.Info("Spotify authentication required. Starting authentication flow...")
	if err := authenticateSpotify(ctx, s); err != nil {
		return fmt.Errorf("failed to authenticate with Spotify: %w", err)
	}
	log.Info("Spotify authentication completed successfully")
	return nil
}

// authenticateSpotify handles the OAuth authentication flow by starting a temporary server
func authenticateSpotify(ctx context.Context, s *services) error {
	authURL := s.spotify.GetAuthURL()
	if authURL == "" {
		return errors.New("spotify client is not configured, set SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET")
	}

	log.WithField("auth_url", authURL).Info("Please visit this URL to authenticate with Spotify")
	fmt.Printf("\nSpotify Authentication Required\n")
	fmt.Printf("Please visit this URL to authenticate:\n%s\n\n", authURL)
	fmt.Printf("Waiting for authentication... (Press Ctrl+C to cancel)\n")

	authComplete := make(chan error, 1)

	// Use the server configuration from config instead of parsing redirect URI
	// This allows the server to bind to the correct interface in Docker containers
	serverAddr := conf.Server.Address()

	server := &http.Server{
		Addr:              serverAddr,
		Handler:           api.NewRouter(s.jobs, s.searcher, s.spotify, log.StandardLogger(), api.WithAuthNotify(authComplete)),
		ReadHeaderTimeout: 10 * time.Second, // Prevent Slowloris attacks
	}

	go func() {
		log.WithField("address", serverAddr).Info("Starting temporary server for OAuth callback")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			authComplete <- fmt.Errorf("server error: %w", err)
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Error shutting down authentication server")
		}
	}()

	select {
	case err := <-authComplete:
		if err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(authTimeout):
		return fmt.Errorf("authentication timeout after %v", authTimeout)
	}
}
