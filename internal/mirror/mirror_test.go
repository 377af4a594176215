package mirror

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toozej/smartlists/internal/fingerprint"
	"github.com/toozej/smartlists/internal/store"
	"github.com/toozej/smartlists/internal/tracker"
	"github.com/toozej/smartlists/internal/types"
)

// MockRemote serves fixed collections and counts reads
type MockRemote struct {
	liked     []types.RemoteTrack
	playlists map[string][]types.RemoteTrack
	snapshots map[string]string
	albums    map[string][]types.RemoteTrack
	err       error
	calls     map[string]int
}

func (m *MockRemote) count(op string) {
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[op]++
}

func (m *MockRemote) GetPlaylistSnapshotID(ctx context.Context, playlistID string) (string, error) {
	m.count("snapshot")
	return m.snapshots[playlistID], m.err
}

func (m *MockRemote) GetPlaylistTracks(ctx context.Context, playlistID string) ([]types.RemoteTrack, error) {
	m.count("playlist")
	return m.playlists[playlistID], m.err
}

func (m *MockRemote) GetLikedTracks(ctx context.Context) ([]types.RemoteTrack, error) {
	m.count("liked")
	return m.liked, m.err
}

func (m *MockRemote) GetAlbumTracks(ctx context.Context, albumID string) ([]types.RemoteTrack, error) {
	m.count("album")
	if m.err != nil {
		return nil, m.err
	}
	return m.albums[albumID], nil
}

func (m *MockRemote) GetArtistTopTracks(ctx context.Context, artistID string) ([]types.RemoteTrack, error) {
	m.count("artist-top")
	return nil, m.err
}

func remoteTrack(id, title string) types.RemoteTrack {
	return types.RemoteTrack{
		ExternalID: id, Title: title,
		Artist: "Miles Davis", ArtistID: "ar-miles",
		Album: "Kind of Blue", AlbumID: "al-kob",
	}
}

func setup(t *testing.T, remote *MockRemote, opts Options) (*Mirror, *store.Store, *tracker.Tracker) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	s, err := store.Open(filepath.Join(t.TempDir(), "library.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	tr := tracker.New()
	return New(remote, s, tr, opts, logger), s, tr
}

func TestParseSources(t *testing.T) {
	sources, err := ParseSources([]string{"liked-songs", "album:al1", "playlist:pl1", "artist-top:ar1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"liked-songs", "album:al1", "playlist:pl1", "artist-top:ar1"}, []string{
		sources[0].Key(), sources[1].Key(), sources[2].Key(), sources[3].Key(),
	})

	_, err = ParseSources([]string{"liked-songs", "nope"})
	assert.Error(t, err)
}

func TestMirrorLikedSongs(t *testing.T) {
	remote := &MockRemote{liked: []types.RemoteTrack{remoteTrack("sp1", "So What"), remoteTrack("sp2", "Blue in Green")}}
	m, s, tr := setup(t, remote, Options{DetachMissing: true})
	ctx := context.Background()
	src := types.MirrorSource{Kind: types.SourceLikedSongs}

	res, err := m.MirrorSource(ctx, src, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalTracks)
	assert.Equal(t, 2, res.NewTracks)
	assert.Empty(t, res.Errors)

	summary := tr.Summary()
	assert.Len(t, summary.TrackIDs, 2)
	assert.Equal(t, []string{"al-kob"}, summary.AlbumIDs)
	assert.Equal(t, []string{"ar-miles"}, summary.ArtistIDs)

	stored, err := s.GetMirrorSource(ctx, "liked-songs")
	require.NoError(t, err)
	assert.Equal(t, fingerprint.Fingerprint([]string{"sp1", "sp2"}), stored.SnapshotID)
	assert.NotNil(t, stored.LastMirroredAt)

	// unchanged remote is gated after the fetch and writes nothing
	tr.Clear()
	res, err = m.MirrorSource(ctx, src, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.NewTracks)
	assert.True(t, tr.Summary().Empty())
}

func TestMirrorDetachesRemovedTracks(t *testing.T) {
	remote := &MockRemote{albums: map[string][]types.RemoteTrack{
		"al1": {remoteTrack("sp1", "So What"), remoteTrack("sp2", "Freddie Freeloader"), remoteTrack("sp3", "All Blues")},
	}}
	m, s, _ := setup(t, remote, Options{DetachMissing: true})
	ctx := context.Background()
	src := types.MirrorSource{Kind: types.SourceAlbum, RemoteID: "al1"}

	_, err := m.MirrorSource(ctx, src, false)
	require.NoError(t, err)

	remote.albums["al1"] = []types.RemoteTrack{remoteTrack("sp1", "So What"), remoteTrack("sp3", "All Blues")}
	res, err := m.MirrorSource(ctx, src, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalTracks)

	ids, err := s.SourceExternalIDs(ctx, "album:al1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sp1", "sp3"}, ids)

	// the track itself survives
	_, err = s.GetTrackByExternalID(ctx, "sp2")
	assert.NoError(t, err)
}

func TestMirrorKeepsMissingWhenDetachDisabled(t *testing.T) {
	remote := &MockRemote{albums: map[string][]types.RemoteTrack{"al1": {remoteTrack("sp1", "a"), remoteTrack("sp2", "b")}}}
	m, s, _ := setup(t, remote, Options{})
	ctx := context.Background()
	src := types.MirrorSource{Kind: types.SourceAlbum, RemoteID: "al1"}

	_, err := m.MirrorSource(ctx, src, false)
	require.NoError(t, err)
	remote.albums["al1"] = remote.albums["al1"][:1]
	_, err = m.MirrorSource(ctx, src, false)
	require.NoError(t, err)

	ids, err := s.SourceExternalIDs(ctx, "album:al1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sp1", "sp2"}, ids)
}

func TestMirrorPlaylistGatedBySnapshot(t *testing.T) {
	remote := &MockRemote{
		playlists: map[string][]types.RemoteTrack{"pl1": {remoteTrack("sp1", "So What")}},
		snapshots: map[string]string{"pl1": "snap-1"},
	}
	m, s, _ := setup(t, remote, Options{})
	ctx := context.Background()
	src := types.MirrorSource{Kind: types.SourcePlaylist, RemoteID: "pl1"}

	_, err := m.MirrorSource(ctx, src, false)
	require.NoError(t, err)
	stored, err := s.GetMirrorSource(ctx, "playlist:pl1")
	require.NoError(t, err)
	assert.Equal(t, "snap-1", stored.SnapshotID)

	_, err = m.MirrorSource(ctx, src, false)
	require.NoError(t, err)
	assert.Equal(t, 1, remote.calls["playlist"], "unchanged snapshot must not page items")

	_, err = m.MirrorSource(ctx, src, true)
	require.NoError(t, err)
	assert.Equal(t, 2, remote.calls["playlist"])

	remote.snapshots["pl1"] = "snap-2"
	_, err = m.MirrorSource(ctx, src, false)
	require.NoError(t, err)
	assert.Equal(t, 3, remote.calls["playlist"])
}

func TestMirrorAllErrorPolicy(t *testing.T) {
	sources := []types.MirrorSource{
		{Kind: types.SourceLikedSongs},
		{Kind: types.SourceAlbum, RemoteID: "al1"},
	}

	t.Run("transient continues", func(t *testing.T) {
		remote := &MockRemote{err: &types.TransientExternalError{Op: "get_saved_tracks", Status: 503, Err: errors.New("unavailable")}}
		m, _, _ := setup(t, remote, Options{})

		var progress []int
		res, err := m.MirrorAll(context.Background(), sources, false, func(done, total int) { progress = append(progress, done) })
		require.NoError(t, err)
		assert.Len(t, res.Errors, 2)
		assert.Equal(t, []int{1, 2}, progress)
	})

	t.Run("fatal stops", func(t *testing.T) {
		remote := &MockRemote{err: &types.FatalExternalError{Op: "get_saved_tracks", Status: 401, Err: errors.New("revoked")}}
		m, _, _ := setup(t, remote, Options{})

		_, err := m.MirrorAll(context.Background(), sources, false, nil)
		assert.True(t, types.IsFatal(err))
		assert.Equal(t, 0, remote.calls["album"])
	})
}
