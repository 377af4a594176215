package enrich

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toozej/smartlists/internal/store"
	"github.com/toozej/smartlists/internal/tracker"
	"github.com/toozej/smartlists/internal/types"
)

// MockFeatureSource returns features for IDs it knows and records batch sizes
type MockFeatureSource struct {
	known   map[string]float64
	batches []int
	failOn  int
	err     error
}

func (m *MockFeatureSource) GetAudioFeatures(ctx context.Context, trackIDs []string) ([]*types.AudioFeatures, error) {
	m.batches = append(m.batches, len(trackIDs))
	if m.err != nil && len(m.batches) == m.failOn {
		return nil, m.err
	}
	out := make([]*types.AudioFeatures, len(trackIDs))
	for i, id := range trackIDs {
		if energy, ok := m.known[id]; ok {
			out[i] = &types.AudioFeatures{Energy: energy, Tempo: 120}
		}
	}
	return out, nil
}

func setup(t *testing.T, n int) (*store.Store, []string) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	s, err := store.Open(filepath.Join(t.TempDir(), "library.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("sp%03d", i)
		_, _, _, err := s.UpsertRemoteTrack(context.Background(), types.RemoteTrack{
			ExternalID: ids[i], Title: ids[i], AlbumID: "al1", Album: "Album", ArtistID: "ar1", Artist: "Artist",
		}, "liked-songs")
		require.NoError(t, err)
	}
	return s, ids
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestEnrichBatchesAndMarksMissing(t *testing.T) {
	s, ids := setup(t, 90)
	known := make(map[string]float64)
	for _, id := range ids[:60] {
		known[id] = 0.5
	}
	source := &MockFeatureSource{known: known}
	tr := tracker.New()
	e := New(source, s, tr, 0, time.Millisecond, quietLogger())

	res, err := e.Run(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, []int{40, 40, 10}, source.batches)
	assert.Equal(t, 90, res.Requested)
	assert.Equal(t, 60, res.Enriched)
	assert.Equal(t, 30, res.Missing)
	assert.Len(t, tr.Summary().TrackIDs, 60)
	assert.Equal(t, []string{"al1"}, tr.Summary().AlbumIDs)

	// nothing is asked twice
	remaining, err := s.TracksMissingFeatures(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	track, err := s.GetTrackByExternalID(context.Background(), ids[0])
	require.NoError(t, err)
	require.NotNil(t, track.Features)
	assert.Equal(t, 0.5, track.Features.Energy)

	missing, err := s.GetTrackByExternalID(context.Background(), ids[89])
	require.NoError(t, err)
	assert.Nil(t, missing.Features)
}

func TestEnrichTransientChunkIsSkipped(t *testing.T) {
	s, ids := setup(t, 50)
	source := &MockFeatureSource{
		known:  map[string]float64{ids[0]: 0.1, ids[45]: 0.9},
		failOn: 1,
		err:    &types.TransientExternalError{Op: "get_audio_features", Status: 429, Err: errors.New("slow down")},
	}
	e := New(source, s, tracker.New(), 40, 0, quietLogger())

	res, err := e.Enrich(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.Enriched)

	// the failed chunk is still pending for the next pass
	remaining, err := s.TracksMissingFeatures(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 40)
}

func TestEnrichFatalStops(t *testing.T) {
	s, ids := setup(t, 50)
	source := &MockFeatureSource{
		failOn: 1,
		err:    &types.FatalExternalError{Op: "get_audio_features", Status: 401, Err: errors.New("revoked")},
	}
	e := New(source, s, tracker.New(), 40, 0, quietLogger())

	_, err := e.Enrich(context.Background(), ids)
	assert.True(t, types.IsFatal(err))
	assert.Equal(t, []int{40}, source.batches)
}

func TestEnrichNothingToDo(t *testing.T) {
	s, _ := setup(t, 0)
	source := &MockFeatureSource{}
	e := New(source, s, tracker.New(), 40, time.Hour, quietLogger())

	res, err := e.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, res.Requested)
	assert.Empty(t, source.batches)
}
