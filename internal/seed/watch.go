package seed

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/toozej/smartlists/internal/jobs"
)

// settleDelay lets editors finish writing before the file is re-read.
const settleDelay = 500 * time.Millisecond

// Watch re-seeds whenever the seed file changes, until ctx ends. The
// directory is watched so editors that replace the file are seen too.
func (s *Seeder) Watch(ctx context.Context, m *jobs.Manager) error {
	if s.path == "" {
		return errors.New("no seed file to watch")
	}
	path, err := filepath.Abs(s.path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return err
	}

	log := s.logger.WithFields(logrus.Fields{
		"component": "seed",
		"operation": "watch",
		"path":      path,
	})
	log.Info("Watching seed file")

	go func() {
		defer watcher.Close()

		var settle <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					settle = time.After(settleDelay)
				}

			case <-settle:
				settle = nil
				job, joined, err := s.Enqueue(ctx, m)
				if err != nil {
					log.WithError(err).Warn("Failed to re-seed after change")
					continue
				}
				log.WithFields(logrus.Fields{
					"job_id": job.ID,
					"joined": joined,
				}).Info("Seed file changed")

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Error("Seed file watcher error")
			}
		}
	}()
	return nil
}
