package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/toozej/smartlists/internal/types"
	"github.com/toozej/smartlists/pkg/config"
)

// ErrNotAuthenticated is returned by every API call made before CompleteAuth
// or a valid stored token.
var ErrNotAuthenticated = errors.New("user not authenticated to Spotify")

// Client wraps the Spotify client with authentication, pacing and error
// classification.
type Client struct {
	api        spotifyAPI
	config     config.SpotifyConfig
	logger     *logrus.Logger
	token      *oauth2.Token
	tokenMu    sync.RWMutex
	ctx        context.Context
	auth       *spotifyauth.Authenticator
	isUserAuth bool
	authURL    string
	state      string
	tokenFile  string
	limiter    *rate.Limiter
	userID     string
}

// TokenData represents the stored token information
type TokenData struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
}

// NewClient creates a new Spotify client with user authentication flow.
// httpClient carries transport settings such as the user agent; nil uses
// http.DefaultClient.
func NewClient(cfg config.SpotifyConfig, httpClient *http.Client, logger *logrus.Logger) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("spotify client ID and secret are required")
	}
	if cfg.RedirectURL == "" {
		logger.Error("RedirectURL is empty! Check SPOTIFY_REDIRECT_URI environment variable")
		return nil, fmt.Errorf("redirect URL is required but not configured")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	// oauth2 picks the base HTTP client up from the context
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)

	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(cfg.RedirectURL),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadPrivate,
			spotifyauth.ScopeUserLibraryRead,
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopePlaylistModifyPrivate,
			spotifyauth.ScopePlaylistModifyPublic,
		),
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
	)

	state := uuid.NewString()
	authURL := auth.AuthURL(state)

	logger.WithFields(logrus.Fields{
		"component":    "spotify_client",
		"client_id":    cfg.ClientID,
		"redirect_url": cfg.RedirectURL,
	}).Debug("Generated Spotify auth URL")

	tokenFile, err := cfg.GetTokenFilePath()
	if err != nil {
		logger.WithError(err).Warn("Could not determine token file path, authentication will be required each time")
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	client := &Client{
		config:    cfg,
		logger:    logger,
		ctx:       ctx,
		auth:      auth,
		authURL:   authURL,
		state:     state,
		tokenFile: tokenFile,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
	}

	if tokenFile != "" {
		if client.loadToken() {
			logger.WithField("token_file", tokenFile).Debug("Loaded existing Spotify authentication token")

			if client.validateStoredToken() {
				logger.Info("Existing Spotify token is valid, skipping authentication")
				return client, nil
			}
			logger.Info("Existing Spotify token is invalid or expired, re-authentication required")
		} else {
			logger.WithField("token_file", tokenFile).Debug("No existing token found")
		}
	}

	logger.WithField("auth_url", client.authURL).Info("Visit this URL to authenticate with Spotify")

	return client, nil
}

func (c *Client) newAPI(token *oauth2.Token) spotifyAPI {
	return spotify.New(c.auth.Client(c.ctx, token), spotify.WithRetry(true))
}

// GetAuthURL returns the URL for user authentication
func (c *Client) GetAuthURL() string {
	return c.authURL
}

// IsAuthenticated returns whether the user is authenticated
func (c *Client) IsAuthenticated() bool {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.isUserAuth && c.api != nil
}

// CompleteAuth completes the authentication process with the authorization code
func (c *Client) CompleteAuth(code, state string) error {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if state != c.state {
		return fmt.Errorf("invalid state parameter")
	}

	token, err := c.auth.Exchange(c.ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange code for token: %w", err)
	}

	api := c.newAPI(token)
	user, err := api.CurrentUser(c.ctx)
	if err != nil {
		c.logger.WithError(err).Error("Failed to verify authentication by getting current user")
		return fmt.Errorf("authentication verification failed: %w", err)
	}

	c.token = token
	c.api = api
	c.userID = user.ID
	c.isUserAuth = true

	c.logger.WithFields(logrus.Fields{
		"component":         "spotify_client",
		"user_id":           user.ID,
		"user_display_name": user.DisplayName,
	}).Info("Spotify authentication verified")

	if err := c.saveTokenUnsafe(); err != nil {
		c.logger.WithError(err).Warn("Failed to save authentication token, will require re-authentication next time")
	} else {
		c.logger.WithField("token_file", c.tokenFile).Info("Authentication token saved")
	}

	return nil
}

// RefreshToken refreshes the access token if it expires within five minutes.
func (c *Client) RefreshToken() error {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if !c.isUserAuth {
		return ErrNotAuthenticated
	}
	if c.auth == nil || c.token == nil || time.Until(c.token.Expiry) > 5*time.Minute {
		return nil
	}

	c.logger.Debug("Refreshing Spotify access token")

	newToken, err := c.auth.RefreshToken(c.ctx, c.token)
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}

	c.token = newToken
	c.api = c.newAPI(newToken)

	if err := c.saveTokenUnsafe(); err != nil {
		c.logger.WithError(err).Warn("Failed to save refreshed token")
	}

	return nil
}

// ready refreshes the token if needed and waits for the rate limiter.
func (c *Client) ready(ctx context.Context, op string) (spotifyAPI, error) {
	if !c.IsAuthenticated() {
		return nil, &types.FatalExternalError{Op: op, Status: http.StatusUnauthorized, Err: ErrNotAuthenticated}
	}
	if err := c.RefreshToken(); err != nil {
		return nil, classify(op, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, classify(op, err)
	}

	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.api, nil
}

// classify maps platform failures onto the transient/fatal taxonomy.
// Cancellation is returned unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if types.IsFatal(err) || types.IsTransient(err) || errors.Is(err, context.Canceled) {
		return err
	}

	status := 0
	var apiErr spotify.Error
	var apiErrPtr *spotify.Error
	var retrieveErr *oauth2.RetrieveError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.Status
	case errors.As(err, &apiErrPtr):
		status = apiErrPtr.Status
	case errors.As(err, &retrieveErr):
		// a rejected refresh token means the grant was revoked
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode < 500 {
			return &types.FatalExternalError{Op: op, Status: retrieveErr.Response.StatusCode, Err: err}
		}
		return &types.TransientExternalError{Op: op, Err: err}
	}

	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return &types.TransientExternalError{Op: op, Status: status, Err: err}
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusNotFound:
		return &types.FatalExternalError{Op: op, Status: status, Err: err}
	case status != 0:
		return &types.FatalExternalError{Op: op, Status: status, Err: err}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return &types.TransientExternalError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func toIDs(ids []string) []spotify.ID {
	out := make([]spotify.ID, len(ids))
	for i, id := range ids {
		out[i] = spotify.ID(id)
	}
	return out
}

// currentUserID returns the authenticated user's ID, fetching it once.
func (c *Client) currentUserID(ctx context.Context) (string, error) {
	c.tokenMu.RLock()
	id := c.userID
	c.tokenMu.RUnlock()
	if id != "" {
		return id, nil
	}

	api, err := c.ready(ctx, "current_user")
	if err != nil {
		return "", err
	}
	user, err := api.CurrentUser(ctx)
	if err != nil {
		return "", classify("current_user", err)
	}

	c.tokenMu.Lock()
	c.userID = user.ID
	c.tokenMu.Unlock()
	return user.ID, nil
}

// CreatePlaylist creates a new playlist owned by the current user.
func (c *Client) CreatePlaylist(ctx context.Context, name, description string, public bool) (*types.Playlist, error) {
	userID, err := c.currentUserID(ctx)
	if err != nil {
		return nil, err
	}
	api, err := c.ready(ctx, "create_playlist")
	if err != nil {
		return nil, err
	}

	p, err := api.CreatePlaylistForUser(ctx, userID, name, description, public, false)
	if err != nil {
		return nil, classify("create_playlist", err)
	}

	return &types.Playlist{
		ID:         string(p.ID),
		Name:       p.Name,
		URI:        string(p.URI),
		SnapshotID: p.SnapshotID,
		TrackCount: int(p.Tracks.Total),
	}, nil
}

// AddItemsToPlaylist appends tracks to a playlist in one call.
func (c *Client) AddItemsToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}
	if len(trackIDs) > MaxItemsPerWrite {
		return fmt.Errorf("add_items: %d items exceeds the limit of %d per call", len(trackIDs), MaxItemsPerWrite)
	}
	api, err := c.ready(ctx, "add_items")
	if err != nil {
		return err
	}
	if _, err := api.AddTracksToPlaylist(ctx, spotify.ID(playlistID), toIDs(trackIDs)...); err != nil {
		return classify("add_items", err)
	}
	return nil
}

// RemoveItemsFromPlaylist removes every occurrence of the tracks in one call.
func (c *Client) RemoveItemsFromPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}
	if len(trackIDs) > MaxItemsPerWrite {
		return fmt.Errorf("remove_items: %d items exceeds the limit of %d per call", len(trackIDs), MaxItemsPerWrite)
	}
	api, err := c.ready(ctx, "remove_items")
	if err != nil {
		return err
	}
	if _, err := api.RemoveTracksFromPlaylist(ctx, spotify.ID(playlistID), toIDs(trackIDs)...); err != nil {
		return classify("remove_items", err)
	}
	return nil
}

// GetPlaylistSnapshotID returns the playlist's current snapshot ID.
func (c *Client) GetPlaylistSnapshotID(ctx context.Context, playlistID string) (string, error) {
	api, err := c.ready(ctx, "get_playlist")
	if err != nil {
		return "", err
	}
	p, err := api.GetPlaylist(ctx, spotify.ID(playlistID), spotify.Fields("snapshot_id"))
	if err != nil {
		return "", classify("get_playlist", err)
	}
	return p.SnapshotID, nil
}

// GetPlaylistItemIDs returns the track IDs currently in a playlist, in order.
// Local files and episodes are skipped.
func (c *Client) GetPlaylistItemIDs(ctx context.Context, playlistID string) ([]string, error) {
	tracks, err := c.GetPlaylistTracks(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ExternalID
	}
	return ids, nil
}

// GetPlaylistTracks pages through a playlist.
func (c *Client) GetPlaylistTracks(ctx context.Context, playlistID string) ([]types.RemoteTrack, error) {
	var out []types.RemoteTrack
	for offset := 0; ; {
		api, err := c.ready(ctx, "get_playlist_items")
		if err != nil {
			return nil, err
		}
		page, err := api.GetPlaylistItems(ctx, spotify.ID(playlistID), spotify.Limit(MaxPageSize), spotify.Offset(offset))
		if err != nil {
			return nil, classify("get_playlist_items", err)
		}

		for _, item := range page.Items {
			if item.IsLocal || item.Track.Track == nil || item.Track.Track.ID == "" {
				continue
			}
			rt := fromFullTrack(*item.Track.Track)
			rt.AddedAt = parseAddedAt(item.AddedAt)
			out = append(out, rt)
		}

		offset += len(page.Items)
		if len(page.Items) == 0 || offset >= int(page.Total) {
			break
		}
	}
	return out, nil
}

// GetLikedTracks pages through the user's saved tracks.
func (c *Client) GetLikedTracks(ctx context.Context) ([]types.RemoteTrack, error) {
	var out []types.RemoteTrack
	for offset := 0; ; {
		api, err := c.ready(ctx, "get_saved_tracks")
		if err != nil {
			return nil, err
		}
		page, err := api.CurrentUsersTracks(ctx, spotify.Limit(MaxPageSize), spotify.Offset(offset))
		if err != nil {
			return nil, classify("get_saved_tracks", err)
		}

		for _, saved := range page.Tracks {
			if saved.ID == "" {
				continue
			}
			rt := fromFullTrack(saved.FullTrack)
			rt.AddedAt = parseAddedAt(saved.AddedAt)
			out = append(out, rt)
		}

		offset += len(page.Tracks)
		if len(page.Tracks) == 0 || offset >= int(page.Total) {
			break
		}
	}
	return out, nil
}

// GetAlbumTracks returns every track on an album with album metadata attached.
func (c *Client) GetAlbumTracks(ctx context.Context, albumID string) ([]types.RemoteTrack, error) {
	api, err := c.ready(ctx, "get_album")
	if err != nil {
		return nil, err
	}
	album, err := api.GetAlbum(ctx, spotify.ID(albumID))
	if err != nil {
		return nil, classify("get_album", err)
	}

	var out []types.RemoteTrack
	for offset := 0; ; {
		api, err := c.ready(ctx, "get_album_tracks")
		if err != nil {
			return nil, err
		}
		page, err := api.GetAlbumTracks(ctx, spotify.ID(albumID), spotify.Limit(MaxPageSize), spotify.Offset(offset))
		if err != nil {
			return nil, classify("get_album_tracks", err)
		}

		for _, t := range page.Tracks {
			if t.ID == "" {
				continue
			}
			out = append(out, fromSimpleTrack(t, album.SimpleAlbum))
		}

		offset += len(page.Tracks)
		if len(page.Tracks) == 0 || offset >= int(page.Total) {
			break
		}
	}
	return out, nil
}

// GetArtistTopTracks returns the artist's top tracks in the configured market.
func (c *Client) GetArtistTopTracks(ctx context.Context, artistID string) ([]types.RemoteTrack, error) {
	api, err := c.ready(ctx, "get_artist_top_tracks")
	if err != nil {
		return nil, err
	}

	market := c.config.Market
	if market == "" {
		market = spotify.CountryUSA
	}
	tracks, err := api.GetArtistsTopTracks(ctx, spotify.ID(artistID), market)
	if err != nil {
		return nil, classify("get_artist_top_tracks", err)
	}

	out := make([]types.RemoteTrack, 0, len(tracks))
	for _, t := range tracks {
		if t.ID == "" {
			continue
		}
		out = append(out, fromFullTrack(t))
	}
	return out, nil
}

// GetAudioFeatures looks up features for up to MaxFeatureIDs tracks. The
// result is index-aligned with trackIDs; tracks without features are nil.
func (c *Client) GetAudioFeatures(ctx context.Context, trackIDs []string) ([]*types.AudioFeatures, error) {
	if len(trackIDs) == 0 {
		return nil, nil
	}
	if len(trackIDs) > MaxFeatureIDs {
		return nil, fmt.Errorf("get_audio_features: %d ids exceeds the limit of %d per call", len(trackIDs), MaxFeatureIDs)
	}
	api, err := c.ready(ctx, "get_audio_features")
	if err != nil {
		return nil, err
	}

	features, err := api.GetAudioFeatures(ctx, toIDs(trackIDs)...)
	if err != nil {
		return nil, classify("get_audio_features", err)
	}

	out := make([]*types.AudioFeatures, len(trackIDs))
	for i := range trackIDs {
		if i >= len(features) || features[i] == nil {
			continue
		}
		out[i] = fromAudioFeatures(trackIDs[i], features[i])
	}
	return out, nil
}

// loadToken attempts to load a stored token from disk
func (c *Client) loadToken() bool {
	if c.tokenFile == "" {
		return false
	}

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	data, err := os.ReadFile(c.tokenFile)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.WithError(err).Debug("Failed to read token file")
		}
		return false
	}

	var tokenData TokenData
	if err := json.Unmarshal(data, &tokenData); err != nil {
		c.logger.WithError(err).Debug("Failed to parse token file")
		return false
	}

	c.token = &oauth2.Token{
		AccessToken:  tokenData.AccessToken,
		RefreshToken: tokenData.RefreshToken,
		TokenType:    tokenData.TokenType,
		Expiry:       tokenData.Expiry,
	}
	return true
}

// saveTokenUnsafe saves the current token to disk without acquiring locks.
// The caller must hold tokenMu.
func (c *Client) saveTokenUnsafe() error {
	if c.tokenFile == "" || c.token == nil {
		return nil
	}

	tokenData := TokenData{
		AccessToken:  c.token.AccessToken,
		RefreshToken: c.token.RefreshToken,
		TokenType:    c.token.TokenType,
		Expiry:       c.token.Expiry,
	}

	data, err := json.MarshalIndent(tokenData, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token data: %w", err)
	}

	// Write to temporary file first, then rename for atomic operation
	tempFile := c.tokenFile + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	if err := os.Rename(tempFile, c.tokenFile); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to rename token file: %w", err)
	}

	return nil
}

// validateStoredToken checks if the stored token is valid by making a test API call
func (c *Client) validateStoredToken() bool {
	if c.token == nil {
		return false
	}

	api := c.newAPI(c.token)
	user, err := api.CurrentUser(c.ctx)
	if err != nil {
		c.logger.WithError(err).Debug("Stored token validation failed")
		return false
	}

	c.tokenMu.Lock()
	c.api = api
	c.userID = user.ID
	c.isUserAuth = true
	c.tokenMu.Unlock()
	return true
}
