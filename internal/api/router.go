// Package api exposes sync triggers, job status and the OAuth callback over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/toozej/smartlists/internal/jobs"
	"github.com/toozej/smartlists/internal/search"
	"github.com/toozej/smartlists/internal/syncer"
	"github.com/toozej/smartlists/pkg/version"
)

// JobManager enqueues and inspects jobs.
type JobManager interface {
	Enqueue(ctx context.Context, p jobs.Payload) (jobs.Job, bool, error)
	Get(ctx context.Context, id string) (jobs.Job, error)
	Cancel(ctx context.Context, id string) error
}

// PlaylistResolver maps an ID or approximate name to a smart playlist.
type PlaylistResolver interface {
	Resolve(ctx context.Context, query string) (*search.PlaylistMatch, error)
}

// Authenticator completes the platform's authorization code flow.
type Authenticator interface {
	GetAuthURL() string
	IsAuthenticated() bool
	CompleteAuth(code, state string) error
}

// EnqueueResponse is returned by the sync triggers.
type EnqueueResponse struct {
	Job    jobs.Job `json:"job"`
	Joined bool     `json:"joined"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server holds the handlers' dependencies.
type Server struct {
	jobs      JobManager
	playlists PlaylistResolver
	auth      Authenticator
	logger    *log.Logger
	// authDone receives the outcome of every callback. It may be nil.
	authDone chan<- error
}

// Option configures a Server.
type Option func(*Server)

// WithAuthNotify reports callback outcomes on ch without blocking.
func WithAuthNotify(ch chan<- error) Option {
	return func(s *Server) { s.authDone = ch }
}

// NewRouter builds the gin engine.
func NewRouter(jobManager JobManager, playlists PlaylistResolver, auth Authenticator, logger *log.Logger, opts ...Option) *gin.Engine {
	s := &Server{
		jobs:      jobManager,
		playlists: playlists,
		auth:      auth,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.health)
	r.GET("/login", s.login)
	r.GET("/callback", s.callback)

	r.POST("/sync/playlists/:id", s.syncPlaylist)
	r.POST("/sync/playlists", s.syncAll)
	r.POST("/sync/library", s.syncLibrary)

	r.GET("/jobs/:id", s.getJob)
	r.DELETE("/jobs/:id", s.cancelJob)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(log.Fields{
			"component":  "api",
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		}).Debug("Handled request")
	}
}

func force(c *gin.Context) bool {
	v, err := strconv.ParseBool(c.DefaultQuery("force", "false"))
	return err == nil && v
}

func (s *Server) enqueue(c *gin.Context, p jobs.Payload) {
	job, joined, err := s.jobs.Enqueue(c.Request.Context(), p)
	if err != nil {
		s.logger.WithError(err).WithField("kind", p.Kind).Error("Failed to enqueue job")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, EnqueueResponse{Job: job, Joined: joined})
}

func (s *Server) syncPlaylist(c *gin.Context) {
	match, err := s.playlists.Resolve(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, search.ErrNoMatch):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	case errors.Is(err, search.ErrAmbiguous):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	s.enqueue(c, syncer.PlaylistPayload(match.Playlist.ID, force(c)))
}

func (s *Server) syncAll(c *gin.Context) {
	s.enqueue(c, syncer.AllPayload(force(c)))
}

func (s *Server) syncLibrary(c *gin.Context) {
	s.enqueue(c, syncer.LibraryPayload(force(c)))
}

func (s *Server) getJob(c *gin.Context) {
	job, err := s.jobs.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, jobs.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) cancelJob(c *gin.Context) {
	err := s.jobs.Cancel(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, jobs.ErrNotRunning):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	default:
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"authenticated": s.auth.IsAuthenticated(),
		"version":       version.Get().Version,
	})
}

func (s *Server) login(c *gin.Context) {
	url := s.auth.GetAuthURL()
	if url == "" {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "spotify client is not configured"})
		return
	}
	c.Redirect(http.StatusFound, url)
}

const authSuccessHTML = `<!DOCTYPE html>
<html>
<head>
	<title>Authentication Successful</title>
	<style>
		body { font-family: Arial, sans-serif; text-align: center; padding: 50px; }
		.success { color: #28a745; font-size: 24px; margin-bottom: 20px; }
		.message { color: #6c757d; font-size: 16px; }
	</style>
</head>
<body>
	<div class="success">Authentication Successful!</div>
	<div class="message">You can now close this window and return to the terminal.</div>
</body>
</html>
`

// callback handles the OAuth redirect from Spotify
func (s *Server) callback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")

	if errParam := c.Query("error"); errParam != "" {
		s.logger.WithField("error", errParam).Error("Spotify authentication error")
		c.String(http.StatusBadRequest, "Authentication failed: "+errParam)
		s.notify(errors.New("spotify authentication error: " + errParam))
		return
	}
	if code == "" {
		s.logger.Error("No authorization code received")
		c.String(http.StatusBadRequest, "No authorization code received")
		s.notify(errors.New("no authorization code received"))
		return
	}

	if err := s.auth.CompleteAuth(code, state); err != nil {
		s.logger.WithError(err).Error("Failed to complete Spotify authentication")
		c.String(http.StatusInternalServerError, "Authentication failed")
		s.notify(err)
		return
	}

	s.logger.Info("Spotify authentication completed successfully via callback")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(authSuccessHTML))
	s.notify(nil)
}

func (s *Server) notify(err error) {
	if s.authDone == nil {
		return
	}
	select {
	case s.authDone <- err:
	default:
	}
}
