package spotify

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toozej/smartlists/internal/types"
	"github.com/toozej/smartlists/pkg/config"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestNewServiceWithoutCredentials(t *testing.T) {
	service := NewService(config.SpotifyConfig{}, nil, quietLogger())
	require.NotNil(t, service)
	assert.Nil(t, service.client)

	ctx := context.Background()
	assert.Empty(t, service.GetAuthURL())
	assert.False(t, service.IsAuthenticated())
	assert.Error(t, service.CompleteAuth("code", "state"))

	_, err := service.CreatePlaylist(ctx, "x", "", false)
	assert.True(t, types.IsFatal(err))
	assert.True(t, types.IsFatal(service.AddItemsToPlaylist(ctx, "pl", []string{"a"})))
	assert.True(t, types.IsFatal(service.RemoveItemsFromPlaylist(ctx, "pl", []string{"a"})))
	_, err = service.GetPlaylistItemIDs(ctx, "pl")
	assert.True(t, types.IsFatal(err))
	_, err = service.GetLikedTracks(ctx)
	assert.True(t, types.IsFatal(err))
	_, err = service.GetAudioFeatures(ctx, []string{"a"})
	assert.True(t, types.IsFatal(err))
}

func TestNewServiceRequiresLogin(t *testing.T) {
	cfg := config.SpotifyConfig{
		ClientID:          "test-id",
		ClientSecret:      "test-secret",
		RedirectURL:       "http://127.0.0.1:8080/callback",
		TokenFilePath:     filepath.Join(t.TempDir(), "spotify_token.json"),
		RequestsPerSecond: 5,
	}

	service := NewService(cfg, http.DefaultClient, quietLogger())
	require.NotNil(t, service.client)
	assert.False(t, service.IsAuthenticated())

	authURL := service.GetAuthURL()
	assert.True(t, strings.HasPrefix(authURL, "https://accounts.spotify.com/authorize"))
	assert.Contains(t, authURL, "client_id=test-id")
	assert.Contains(t, authURL, "user-library-read")

	assert.Error(t, service.CompleteAuth("code", "wrong-state"))

	err := service.AddItemsToPlaylist(context.Background(), "pl", []string{"a"})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestServiceDelegatesToClient(t *testing.T) {
	api := newFakeAPI()
	service := &Service{client: newTestClient(api), logger: quietLogger()}
	ctx := context.Background()

	require.NoError(t, service.AddItemsToPlaylist(ctx, "pl", []string{"a"}))
	require.NoError(t, service.RemoveItemsFromPlaylist(ctx, "pl", []string{"b"}))
	_, err := service.GetArtistTopTracks(ctx, "ar1")
	require.NoError(t, err)

	assert.Equal(t, []string{"AddTracksToPlaylist", "RemoveTracksFromPlaylist", "GetArtistsTopTracks"}, api.calls)
}
