// Package enrich attaches audio features to library tracks in batches.
package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/toozej/smartlists/internal/reconcile"
	"github.com/toozej/smartlists/internal/tracker"
	"github.com/toozej/smartlists/internal/types"
)

// Batch defaults for the features lookup.
const (
	DefaultChunkSize  = 40
	DefaultChunkDelay = 100 * time.Millisecond
)

// FeatureSource looks up audio features, index-aligned with the IDs.
type FeatureSource interface {
	GetAudioFeatures(ctx context.Context, trackIDs []string) ([]*types.AudioFeatures, error)
}

// Library stores enrichment results.
type Library interface {
	TracksMissingFeatures(ctx context.Context, limit int) ([]string, error)
	SetAudioFeatures(ctx context.Context, features []*types.AudioFeatures) ([]string, error)
	MarkFeaturesMissing(ctx context.Context, externalIDs []string) error
	GetTrackByExternalID(ctx context.Context, externalID string) (types.Track, error)
}

// Result counts what one enrichment pass did.
type Result struct {
	Requested int
	Enriched  int
	Missing   int
	Errors    []string
}

// Enricher fills in audio features for tracks that have none.
type Enricher struct {
	source    FeatureSource
	library   Library
	tracker   *tracker.Tracker
	chunkSize int
	delay     time.Duration
	logger    *logrus.Logger
}

// New creates an Enricher. Non-positive sizes fall back to the defaults.
func New(source FeatureSource, library Library, tr *tracker.Tracker, chunkSize int, delay time.Duration, logger *logrus.Logger) *Enricher {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if delay < 0 {
		delay = DefaultChunkDelay
	}
	return &Enricher{
		source:    source,
		library:   library,
		tracker:   tr,
		chunkSize: chunkSize,
		delay:     delay,
		logger:    logger,
	}
}

// Run enriches up to limit tracks (zero for all). A chunk that fails with a
// transient error is recorded and skipped; a fatal error stops the pass.
func (e *Enricher) Run(ctx context.Context, limit int) (Result, error) {
	ids, err := e.library.TracksMissingFeatures(ctx, limit)
	if err != nil {
		return Result{}, err
	}
	return e.Enrich(ctx, ids)
}

// Enrich looks up features for the given platform IDs.
func (e *Enricher) Enrich(ctx context.Context, externalIDs []string) (Result, error) {
	res := Result{Requested: len(externalIDs), Errors: []string{}}
	log := e.logger.WithFields(logrus.Fields{
		"component": "enricher",
		"operation": "enrich",
	})

	err := reconcile.ForEachChunk(ctx, externalIDs, e.chunkSize, e.delay, func(ctx context.Context, index int, chunk []string) error {
		features, err := e.source.GetAudioFeatures(ctx, chunk)
		if err != nil {
			if types.IsFatal(err) || ctx.Err() != nil {
				return err
			}
			res.Errors = append(res.Errors, fmt.Sprintf("features chunk %d: %v", index, err))
			log.WithError(err).WithField("chunk_index", index).Warn("Audio features chunk failed")
			return nil
		}

		var found []*types.AudioFeatures
		var missing []string
		for i, id := range chunk {
			if i < len(features) && features[i] != nil {
				f := *features[i]
				f.ExternalID = id
				found = append(found, &f)
			} else {
				missing = append(missing, id)
			}
		}

		touched, err := e.library.SetAudioFeatures(ctx, found)
		if err != nil {
			return err
		}
		if err := e.library.MarkFeaturesMissing(ctx, missing); err != nil {
			return err
		}
		res.Enriched += len(touched)
		res.Missing += len(missing)

		for _, id := range touched {
			t, err := e.library.GetTrackByExternalID(ctx, id)
			if err != nil {
				res.Errors = append(res.Errors, err.Error())
				continue
			}
			e.tracker.AddTrack(t.ID)
			e.tracker.AddAlbum(t.AlbumID)
			e.tracker.AddArtist(t.ArtistID)
		}
		return nil
	})

	log.WithFields(logrus.Fields{
		"requested": res.Requested,
		"enriched":  res.Enriched,
		"missing":   res.Missing,
		"errors":    len(res.Errors),
	}).Info("Audio feature enrichment finished")

	if err != nil {
		return res, fmt.Errorf("failed to enrich audio features: %w", err)
	}
	return res, nil
}
