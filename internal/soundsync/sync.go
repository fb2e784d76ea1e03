package soundsync

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/noshadows/soundmachine/internal/errors"
	"github.com/noshadows/soundmachine/internal/logging"
	"github.com/noshadows/soundmachine/internal/metrics"
	"github.com/noshadows/soundmachine/internal/sounds"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxDownloads bounds concurrent tag downloads when unset.
const DefaultMaxDownloads = 10

// DefaultRetryDelay is the first delay before retrying a periodic sync that
// failed with a transient error. It doubles up to the sync interval.
const DefaultRetryDelay = 30 * time.Second

// Report summarizes one sync run. Each slice holds tag IDs, sorted.
type Report struct {
	Deleted  []string      `json:"deleted"`
	Added    []string      `json:"added"`
	Updated  []string      `json:"updated"`
	Failed   []string      `json:"failed"`
	UpToDate []string      `json:"up_to_date"`
	Duration time.Duration `json:"duration"`
}

func (r *Report) sort() {
	for _, s := range [][]string{r.Deleted, r.Added, r.Updated, r.Failed, r.UpToDate} {
		sort.Strings(s)
	}
}

// Syncer mirrors a Remote into a Library.
type Syncer struct {
	remote       *Remote
	lib          *sounds.Library
	maxDownloads int
	retryDelay   time.Duration
	logger       *logging.Logger
	metrics      metrics.Recorder

	mu sync.Mutex // One run at a time
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithMaxDownloads bounds how many tags download at once.
func WithMaxDownloads(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.maxDownloads = n
		}
	}
}

// WithRetryDelay sets the first retry delay after a transient failure.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Syncer) {
		if d > 0 {
			s.retryDelay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(rec metrics.Recorder) Option {
	return func(s *Syncer) {
		s.metrics = rec
	}
}

// New creates a Syncer.
func New(remote *Remote, lib *sounds.Library, opts ...Option) *Syncer {
	s := &Syncer{
		remote:       remote,
		lib:          lib,
		maxDownloads: DefaultMaxDownloads,
		retryDelay:   DefaultRetryDelay,
		logger:       logging.NopLogger(),
		metrics:      metrics.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync runs one synchronization. Local tags missing from the remote are
// deleted, new tags are downloaded and existing tags are refreshed when a
// file's MD5 differs from the remote (always, when force is set). An empty
// remote listing changes nothing. Per-tag failures are reported in
// Report.Failed; the error is reserved for failures of the whole run.
func (s *Syncer) Sync(ctx context.Context, force bool) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	report := &Report{}
	err := s.sync(ctx, force, report)
	report.Duration = time.Since(start)
	report.sort()

	s.metrics.SyncCompleted(report.Duration, len(report.Added), len(report.Updated),
		len(report.Deleted), len(report.Failed), err)
	if err != nil {
		s.logger.LogError("sound sync failed", err)
		return report, err
	}

	s.logger.Info("sound sync complete",
		"deleted", len(report.Deleted),
		"added", len(report.Added),
		"updated", len(report.Updated),
		"failed", len(report.Failed),
		"up_to_date", len(report.UpToDate),
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

func (s *Syncer) sync(ctx context.Context, force bool, report *Report) error {
	s.remote.ResetCache()
	if force {
		s.logger.Info("force update: every sound will be downloaded again")
	}

	remoteTags, err := s.remote.ListTags(ctx)
	if err != nil {
		return err
	}
	if len(remoteTags) == 0 {
		s.logger.Warn("remote listing is empty, leaving local sounds untouched", "remote", s.remote.BaseURL)
		return nil
	}
	s.logger.Info("found remote sounds", "count", len(remoteTags))

	if err := os.MkdirAll(s.lib.Dir, 0755); err != nil {
		return errors.NewSyncError("cannot create sounds directory", err)
	}
	localTags, err := s.lib.Tags()
	if err != nil {
		return errors.NewSyncError("cannot list local sounds", err)
	}

	remoteSet := make(map[string]bool, len(remoteTags))
	for _, tag := range remoteTags {
		remoteSet[tag] = true
	}
	localSet := make(map[string]bool, len(localTags))
	for _, tag := range localTags {
		localSet[tag] = true
		if remoteSet[tag] {
			continue
		}
		if err := s.lib.Remove(tag); err != nil {
			s.logger.Warn("failed to delete sound", "tag", tag, "error", err.Error())
			continue
		}
		s.logger.Info("deleted sound no longer on remote", "tag", tag)
		report.Deleted = append(report.Deleted, tag)
	}

	var mu sync.Mutex
	record := func(list *[]string, tag string) {
		mu.Lock()
		*list = append(*list, tag)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxDownloads)
	for _, tag := range remoteTags {
		isNew := !localSet[tag]
		g.Go(func() error {
			changed, err := s.syncTag(gctx, tag, force)
			switch {
			case err != nil:
				s.logger.LogError("failed to sync sound", err, "tag", tag)
				record(&report.Failed, tag)
			case isNew:
				record(&report.Added, tag)
			case changed:
				record(&report.Updated, tag)
			default:
				record(&report.UpToDate, tag)
			}
			return nil
		})
	}
	_ = g.Wait()

	return ctx.Err()
}

// syncTag brings both files of tag up to date and reports whether anything
// was downloaded. Files whose MD5 matches the remote are skipped unless force
// is set.
func (s *Syncer) syncTag(ctx context.Context, tag string, force bool) (bool, error) {
	if err := os.MkdirAll(s.lib.TagDir(tag), 0755); err != nil {
		return false, errors.NewSyncError("cannot create tag directory", err).WithTag(tag)
	}

	changed := false
	for _, file := range []string{sounds.ManifestFile, sounds.AudioFile} {
		url := s.remote.URL(tag, file)
		dest := s.lib.Path(tag, file)

		if !force && s.upToDate(ctx, url, dest) {
			continue
		}

		n, err := s.remote.Download(ctx, url, dest)
		s.metrics.DownloadCompleted(file, n, err)
		if err != nil {
			return changed, err
		}
		s.logger.Debug("downloaded", "tag", tag, "file", file, "bytes", n)
		changed = true
	}

	if !s.lib.Valid(tag) {
		return changed, errors.NewSyncError("tag incomplete after download", errors.ErrSyncFailed).WithTag(tag)
	}
	return changed, nil
}

// upToDate reports whether dest exists and matches the remote file. A remote
// hash that cannot be fetched counts as a change.
func (s *Syncer) upToDate(ctx context.Context, url, dest string) bool {
	local, err := LocalHash(dest)
	if err != nil {
		return false
	}
	remote, err := s.remote.Hash(ctx, url)
	if err != nil {
		return false
	}
	return local == remote
}

// Run syncs every interval until ctx is done. The first sync happens after
// one interval; callers wanting an immediate sync call Sync first. A sync
// that fails with a retryable error, such as an unreachable remote, is
// retried sooner with a doubling delay capped at the interval; other
// failures wait for the next interval. A non-positive interval returns at
// once.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	retries := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		next := interval
		_, err := s.Sync(ctx, false)
		switch {
		case err == nil || ctx.Err() != nil:
			retries = 0
		case errors.IsRetryable(err):
			next = min(s.retryDelay<<retries, interval)
			if next < interval {
				retries++
			}
			s.logger.Info("retrying sound sync", "retry_in", next.String())
		default:
			retries = 0
			s.logger.Warn("sound sync cannot be retried, waiting for the next interval",
				"interval", interval.String())
		}
		timer.Reset(next)
	}
}
