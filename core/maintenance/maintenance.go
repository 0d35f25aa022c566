// Package maintenance implements the background upkeep loops (spec §4.10):
// periodic cache expiry cleanup and graph snapshot autosave, plus a final
// flush on shutdown.
//
// Grounded on the teacher's core/peer_management.go reaper-goroutine shape
// (time.Ticker driving a periodic sweep under a cancellable context) and on
// §7's propagation policy that background-task errors are logged and the
// task continues on its next tick rather than aborting the loop.
package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"trustwotd/core/cache"
	"trustwotd/core/graph"
	"trustwotd/pkg/pubkey"
)

// DefaultCleanupInterval matches spec §6's recognized "cleanupInterval"
// option default.
const DefaultCleanupInterval = time.Hour

// DefaultSyncInterval matches spec §6's recognized "syncInterval" option
// default: how often the graph snapshot is flushed to disk.
const DefaultSyncInterval = 5 * time.Minute

// DefaultValidationSyncInterval matches spec §6's recognized
// "validationSyncInterval" option default: how often the root's follow
// list is re-crawled and re-ingested into the graph.
const DefaultValidationSyncInterval = 15 * time.Minute

// FollowCrawler fetches a pubkey's current follow list from the network.
// Implemented by trustwotd/internal/nostrsource.Source.
type FollowCrawler interface {
	FetchFollows(ctx context.Context, target pubkey.Key) ([]pubkey.Key, error)
}

// Runner drives the cache-cleanup, graph-autosave, and root-follow-resync
// tickers.
type Runner struct {
	cache                 *cache.Cache
	graph                 *graph.Graph
	snapshotPath          string
	cleanupInterval       time.Duration
	syncInterval          time.Duration
	validationSyncInterval time.Duration
	crawler               FollowCrawler
	log                   logrus.FieldLogger
}

// New constructs a Runner. Zero intervals fall back to the package
// defaults. crawler may be nil, in which case the root's follow list is
// never re-crawled and only the persisted/ingested graph state is served.
func New(c *cache.Cache, g *graph.Graph, snapshotPath string, cleanupInterval, syncInterval, validationSyncInterval time.Duration, crawler FollowCrawler, log logrus.FieldLogger) *Runner {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	if syncInterval <= 0 {
		syncInterval = DefaultSyncInterval
	}
	if validationSyncInterval <= 0 {
		validationSyncInterval = DefaultValidationSyncInterval
	}
	if log == nil {
		log = logrus.New()
	}
	return &Runner{
		cache:                 c,
		graph:                 g,
		snapshotPath:          snapshotPath,
		cleanupInterval:       cleanupInterval,
		syncInterval:          syncInterval,
		validationSyncInterval: validationSyncInterval,
		crawler:               crawler,
		log:                   log,
	}
}

// Run blocks, driving all three tickers until ctx is canceled, then performs one
// final autosave before returning (spec: graceful shutdown must not lose
// the last interval's graph mutations).
func (r *Runner) Run(ctx context.Context) {
	cleanupTicker := time.NewTicker(r.cleanupInterval)
	defer cleanupTicker.Stop()
	syncTicker := time.NewTicker(r.syncInterval)
	defer syncTicker.Stop()
	validationTicker := time.NewTicker(r.validationSyncInterval)
	defer validationTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := r.autosave(); err != nil {
				r.log.WithError(err).Error("final autosave failed on shutdown")
			}
			return
		case <-cleanupTicker.C:
			n, err := r.cache.Cleanup()
			if err != nil {
				r.log.WithError(err).Warn("cache cleanup tick failed, will retry next tick")
				continue
			}
			if n > 0 {
				r.log.WithField("removed", n).Debug("cache cleanup removed expired entries")
			}
		case <-syncTicker.C:
			if err := r.autosave(); err != nil {
				r.log.WithError(err).Warn("graph autosave tick failed, will retry next tick")
			}
		case <-validationTicker.C:
			if err := r.resyncRootFollows(ctx); err != nil {
				r.log.WithError(err).Warn("root follow resync tick failed, will retry next tick")
			}
		}
	}
}

// resyncRootFollows re-crawls the current root's follow list and re-ingests
// it into the graph, so the graph reflects follow-list changes published
// since the last crawl without waiting for a fresh RPC request to trigger
// one. A no-op when no crawler is configured.
func (r *Runner) resyncRootFollows(ctx context.Context) error {
	if r.crawler == nil {
		return nil
	}
	root := r.graph.Root()
	if root == "" {
		return nil
	}
	follows, err := r.crawler.FetchFollows(ctx, root)
	if err != nil {
		return err
	}
	if follows == nil {
		return nil
	}
	r.graph.Ingest(root, follows)
	return nil
}

// autosave persists the graph snapshot via temp-file + atomic rename (spec
// §6 "Both are append-safe via temp-file + atomic rename") if the graph has
// mutated since the last save.
func (r *Runner) autosave() error {
	if !r.graph.Dirty() {
		return nil
	}
	blob, err := r.graph.Snapshot()
	if err != nil {
		return err
	}

	dir := filepath.Dir(r.snapshotPath)
	tmp, err := os.CreateTemp(dir, ".graph-snapshot-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, r.snapshotPath); err != nil {
		return err
	}
	r.graph.ClearDirty()
	return nil
}
