package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/toozej/smartlists/internal/types"
)

// decode builds zmb3 values from JSON so fixtures match the wire format.
func decode[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func trackJSON(id, name string) string {
	return fmt.Sprintf(`{"type":"track","id":%q,"name":%q,"duration_ms":200000,`+
		`"artists":[{"id":"ar1","name":"Miles Davis"},{"id":"ar2","name":"John Coltrane"}],`+
		`"album":{"id":"al1","name":"Kind of Blue","release_date":"1959-08-17"}}`, id, name)
}

type fakeAPI struct {
	calls []string

	user           *spotify.PrivateUser
	playlist       *spotify.FullPlaylist
	playlistPages  []*spotify.PlaylistItemPage
	savedPages     []*spotify.SavedTrackPage
	album          *spotify.FullAlbum
	albumPages     []*spotify.SimpleTrackPage
	topTracks      []spotify.FullTrack
	features       []*spotify.AudioFeatures
	written        [][]spotify.ID
	errs           map[string]error
	pageCallsByKey map[string]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		user:           &spotify.PrivateUser{User: spotify.User{ID: "user-1"}},
		errs:           make(map[string]error),
		pageCallsByKey: make(map[string]int),
	}
}

func (f *fakeAPI) record(name string) error {
	f.calls = append(f.calls, name)
	return f.errs[name]
}

func nextPage[T any](f *fakeAPI, key string, pages []*T) *T {
	i := f.pageCallsByKey[key]
	f.pageCallsByKey[key]++
	if i >= len(pages) {
		return new(T)
	}
	return pages[i]
}

func (f *fakeAPI) CurrentUser(ctx context.Context) (*spotify.PrivateUser, error) {
	if err := f.record("CurrentUser"); err != nil {
		return nil, err
	}
	return f.user, nil
}

func (f *fakeAPI) CreatePlaylistForUser(ctx context.Context, userID, playlistName, description string, public bool, collaborative bool) (*spotify.FullPlaylist, error) {
	if err := f.record("CreatePlaylistForUser"); err != nil {
		return nil, err
	}
	return f.playlist, nil
}

func (f *fakeAPI) AddTracksToPlaylist(ctx context.Context, playlistID spotify.ID, trackIDs ...spotify.ID) (string, error) {
	if err := f.record("AddTracksToPlaylist"); err != nil {
		return "", err
	}
	f.written = append(f.written, trackIDs)
	return "snap-2", nil
}

func (f *fakeAPI) RemoveTracksFromPlaylist(ctx context.Context, playlistID spotify.ID, trackIDs ...spotify.ID) (string, error) {
	if err := f.record("RemoveTracksFromPlaylist"); err != nil {
		return "", err
	}
	f.written = append(f.written, trackIDs)
	return "snap-3", nil
}

func (f *fakeAPI) GetPlaylist(ctx context.Context, playlistID spotify.ID, opts ...spotify.RequestOption) (*spotify.FullPlaylist, error) {
	if err := f.record("GetPlaylist"); err != nil {
		return nil, err
	}
	return f.playlist, nil
}

func (f *fakeAPI) GetPlaylistItems(ctx context.Context, playlistID spotify.ID, opts ...spotify.RequestOption) (*spotify.PlaylistItemPage, error) {
	if err := f.record("GetPlaylistItems"); err != nil {
		return nil, err
	}
	return nextPage(f, "playlist", f.playlistPages), nil
}

func (f *fakeAPI) CurrentUsersTracks(ctx context.Context, opts ...spotify.RequestOption) (*spotify.SavedTrackPage, error) {
	if err := f.record("CurrentUsersTracks"); err != nil {
		return nil, err
	}
	return nextPage(f, "saved", f.savedPages), nil
}

func (f *fakeAPI) GetAlbum(ctx context.Context, id spotify.ID, opts ...spotify.RequestOption) (*spotify.FullAlbum, error) {
	if err := f.record("GetAlbum"); err != nil {
		return nil, err
	}
	return f.album, nil
}

func (f *fakeAPI) GetAlbumTracks(ctx context.Context, id spotify.ID, opts ...spotify.RequestOption) (*spotify.SimpleTrackPage, error) {
	if err := f.record("GetAlbumTracks"); err != nil {
		return nil, err
	}
	return nextPage(f, "album", f.albumPages), nil
}

func (f *fakeAPI) GetArtistsTopTracks(ctx context.Context, artistID spotify.ID, country string) ([]spotify.FullTrack, error) {
	if err := f.record("GetArtistsTopTracks"); err != nil {
		return nil, err
	}
	return f.topTracks, nil
}

func (f *fakeAPI) GetAudioFeatures(ctx context.Context, ids ...spotify.ID) ([]*spotify.AudioFeatures, error) {
	if err := f.record("GetAudioFeatures"); err != nil {
		return nil, err
	}
	return f.features, nil
}

func newTestClient(api spotifyAPI) *Client {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return &Client{
		api:        api,
		logger:     logger,
		ctx:        context.Background(),
		isUserAuth: true,
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		fatal     bool
		status    int
	}{
		{"rate limited", spotify.Error{Message: "rate limit", Status: http.StatusTooManyRequests}, true, false, 429},
		{"server error", spotify.Error{Message: "unavailable", Status: http.StatusServiceUnavailable}, true, false, 503},
		{"unauthorized", spotify.Error{Message: "token revoked", Status: http.StatusUnauthorized}, false, true, 401},
		{"forbidden", spotify.Error{Message: "forbidden", Status: http.StatusForbidden}, false, true, 403},
		{"playlist gone", fmt.Errorf("wrapped: %w", spotify.Error{Message: "not found", Status: http.StatusNotFound}), false, true, 404},
		{"bad request", spotify.Error{Message: "invalid id", Status: http.StatusBadRequest}, false, true, 400},
		{"timeout", context.DeadlineExceeded, true, false, 0},
		{"refresh rejected", &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusBadRequest}}, false, true, 400},
		{"unknown", errors.New("boom"), false, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("add_items", tt.err)
			require.Error(t, err)
			assert.Equal(t, tt.transient, types.IsTransient(err))
			assert.Equal(t, tt.fatal, types.IsFatal(err))
			assert.ErrorIs(t, err, tt.err)

			var fatal *types.FatalExternalError
			if errors.As(err, &fatal) {
				assert.Equal(t, tt.status, fatal.Status)
				assert.Equal(t, "add_items", fatal.Op)
			}
			var transient *types.TransientExternalError
			if errors.As(err, &transient) {
				assert.Equal(t, tt.status, transient.Status)
			}
		})
	}

	assert.Nil(t, classify("x", nil))
	assert.Equal(t, context.Canceled, classify("x", context.Canceled))
}

func TestClientRequiresAuthentication(t *testing.T) {
	c := newTestClient(newFakeAPI())
	c.isUserAuth = false

	err := c.AddItemsToPlaylist(context.Background(), "pl", []string{"a"})
	assert.True(t, types.IsFatal(err))
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestClientWriteLimits(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(api)
	ctx := context.Background()

	tooMany := make([]string, MaxItemsPerWrite+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("t%03d", i)
	}
	assert.Error(t, c.AddItemsToPlaylist(ctx, "pl", tooMany))
	assert.Error(t, c.RemoveItemsFromPlaylist(ctx, "pl", tooMany))
	assert.NoError(t, c.AddItemsToPlaylist(ctx, "pl", nil))
	assert.Empty(t, api.calls)

	require.NoError(t, c.AddItemsToPlaylist(ctx, "pl", []string{"a", "b"}))
	require.NoError(t, c.RemoveItemsFromPlaylist(ctx, "pl", []string{"c"}))
	assert.Equal(t, []string{"AddTracksToPlaylist", "RemoveTracksFromPlaylist"}, api.calls)
	assert.Equal(t, [][]spotify.ID{{"a", "b"}, {"c"}}, api.written)
}

func TestClientWriteErrorsAreClassified(t *testing.T) {
	api := newFakeAPI()
	api.errs["AddTracksToPlaylist"] = spotify.Error{Message: "not found", Status: http.StatusNotFound}
	api.errs["RemoveTracksFromPlaylist"] = spotify.Error{Message: "slow down", Status: http.StatusTooManyRequests}
	c := newTestClient(api)

	assert.True(t, types.IsFatal(c.AddItemsToPlaylist(context.Background(), "pl", []string{"a"})))
	assert.True(t, types.IsTransient(c.RemoveItemsFromPlaylist(context.Background(), "pl", []string{"a"})))
}

func TestGetPlaylistTracksPages(t *testing.T) {
	api := newFakeAPI()
	api.playlistPages = []*spotify.PlaylistItemPage{
		decode[*spotify.PlaylistItemPage](t, `{"total":4,"items":[`+
			`{"added_at":"2025-01-02T03:04:05Z","is_local":false,"track":`+trackJSON("t1", "So What")+`},`+
			`{"added_at":"2025-01-03T03:04:05Z","is_local":true,"track":`+trackJSON("", "local file")+`}]}`),
		decode[*spotify.PlaylistItemPage](t, `{"total":4,"items":[`+
			`{"added_at":"","is_local":false,"track":`+trackJSON("t2", "Freddie Freeloader")+`},`+
			`{"added_at":"2025-01-04T03:04:05Z","is_local":false,"track":`+trackJSON("t3", "Blue in Green")+`}]}`),
	}
	c := newTestClient(api)

	tracks, err := c.GetPlaylistTracks(context.Background(), "pl")
	require.NoError(t, err)
	require.Len(t, tracks, 3)
	assert.Equal(t, []string{"GetPlaylistItems", "GetPlaylistItems"}, api.calls)

	first := tracks[0]
	assert.Equal(t, "t1", first.ExternalID)
	assert.Equal(t, "So What", first.Title)
	assert.Equal(t, "Miles Davis, John Coltrane", first.Artist)
	assert.Equal(t, "ar1", first.ArtistID)
	assert.Equal(t, "Kind of Blue", first.Album)
	assert.Equal(t, "al1", first.AlbumID)
	assert.Equal(t, 200000, first.DurationMs)
	assert.Equal(t, "1959-08-17", first.ReleaseDate)
	require.NotNil(t, first.AddedAt)
	assert.Equal(t, 2025, first.AddedAt.Year())
	assert.Nil(t, tracks[1].AddedAt)

	api.pageCallsByKey["playlist"] = 0
	ids, err := c.GetPlaylistItemIDs(context.Background(), "pl")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2", "t3"}, ids)
}

func TestGetLikedTracks(t *testing.T) {
	api := newFakeAPI()
	api.savedPages = []*spotify.SavedTrackPage{
		decode[*spotify.SavedTrackPage](t, `{"total":2,"items":[`+
			`{"added_at":"2024-12-24T10:00:00Z","track":`+trackJSON("t1", "So What")+`},`+
			`{"added_at":"2024-12-25T10:00:00Z","track":`+trackJSON("t2", "All Blues")+`}]}`),
	}
	c := newTestClient(api)

	tracks, err := c.GetLikedTracks(context.Background())
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "All Blues", tracks[1].Title)
	require.NotNil(t, tracks[1].AddedAt)
	assert.Equal(t, 25, tracks[1].AddedAt.Day())
	assert.Equal(t, []string{"CurrentUsersTracks"}, api.calls)
}

func TestGetAlbumTracksAttachesAlbum(t *testing.T) {
	api := newFakeAPI()
	api.album = decode[*spotify.FullAlbum](t, `{"id":"al9","name":"A Love Supreme","release_date":"1965-01-01"}`)
	api.albumPages = []*spotify.SimpleTrackPage{
		decode[*spotify.SimpleTrackPage](t, `{"total":1,"items":[{"type":"track","id":"t9","name":"Acknowledgement","duration_ms":470000,"artists":[{"id":"ar2","name":"John Coltrane"}]}]}`),
	}
	c := newTestClient(api)

	tracks, err := c.GetAlbumTracks(context.Background(), "al9")
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "A Love Supreme", tracks[0].Album)
	assert.Equal(t, "al9", tracks[0].AlbumID)
	assert.Equal(t, "1965-01-01", tracks[0].ReleaseDate)
	assert.Equal(t, "John Coltrane", tracks[0].Artist)
}

func TestGetAudioFeaturesAlignsMissing(t *testing.T) {
	api := newFakeAPI()
	api.features = []*spotify.AudioFeatures{
		{ID: "a", Energy: 0.5, Tempo: 120},
		nil,
	}
	c := newTestClient(api)

	features, err := c.GetAudioFeatures(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, features, 3)
	require.NotNil(t, features[0])
	assert.Equal(t, "a", features[0].ExternalID)
	assert.InDelta(t, 0.5, features[0].Energy, 1e-6)
	assert.Nil(t, features[1])
	assert.Nil(t, features[2])
}

func TestCreatePlaylistCachesUser(t *testing.T) {
	api := newFakeAPI()
	api.playlist = decode[*spotify.FullPlaylist](t, `{"id":"p1","name":"Top Rated","uri":"spotify:playlist:p1","snapshot_id":"snap-1","tracks":{"total":0}}`)
	c := newTestClient(api)
	ctx := context.Background()

	p, err := c.CreatePlaylist(ctx, "Top Rated", "smart playlist", false)
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, "snap-1", p.SnapshotID)

	_, err = c.CreatePlaylist(ctx, "Another", "", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"CurrentUser", "CreatePlaylistForUser", "CreatePlaylistForUser"}, api.calls)

	snap, err := c.GetPlaylistSnapshotID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "snap-1", snap)
}

func TestClientHonoursCancelledContext(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(api)
	c.limiter = rate.NewLimiter(rate.Limit(0.001), 1)
	c.limiter.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.AddItemsToPlaylist(ctx, "pl", []string{"a"})
	assert.Error(t, err)
	assert.Empty(t, api.calls)
}
