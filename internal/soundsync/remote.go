// Package soundsync mirrors the remote sound store into the local library.
//
// The remote is a plain HTTP directory listing: one sub-directory per numeric
// tag, each holding manifest.json and audio.mp3. Changes are detected by MD5
// of the file contents, so the remote needs no metadata beyond the files.
package soundsync

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/noshadows/soundmachine/internal/errors"
	"github.com/noshadows/soundmachine/internal/sounds"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// listingChecks bounds concurrent HEAD requests while listing.
const listingChecks = 8

var hrefPattern = regexp.MustCompile(`<a href="([^"]+)/">`)

// Remote is the HTTP sound store.
type Remote struct {
	BaseURL string
	client  *http.Client

	mu     sync.Mutex
	hashes map[string]string
	sf     singleflight.Group
}

// NewRemote creates a Remote for baseURL. timeout bounds each request.
func NewRemote(baseURL string, timeout time.Duration) *Remote {
	return &Remote{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		hashes:  make(map[string]string),
	}
}

// URL returns the URL of file for tag.
func (r *Remote) URL(tag, file string) string {
	return r.BaseURL + "/" + tag + "/" + file
}

// ParseListing extracts the numeric directory names from an HTML listing.
func ParseListing(body string) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, m := range hrefPattern.FindAllStringSubmatch(body, -1) {
		tag := m[1]
		if !sounds.IsTag(tag) || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}

// ListTags returns the remote tags that have both a manifest and an audio
// file, in listing order.
func (r *Remote) ListTags(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+"/", nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.NewSyncError("listing request failed: "+err.Error(), errors.ErrRemoteUnavailable).
			WithURL(r.BaseURL).WithRetryable(true)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewSyncError(fmt.Sprintf("listing returned %s", resp.Status), errors.ErrRemoteUnavailable).
			WithURL(r.BaseURL).WithRetryable(resp.StatusCode >= 500)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewSyncError("failed to read listing", errors.ErrRemoteUnavailable).WithURL(r.BaseURL)
	}

	candidates := ParseListing(string(body))
	complete := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listingChecks)
	for i, tag := range candidates {
		g.Go(func() error {
			complete[i] = r.exists(gctx, r.URL(tag, sounds.ManifestFile)) &&
				r.exists(gctx, r.URL(tag, sounds.AudioFile))
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var tags []string
	for i, tag := range candidates {
		if complete[i] {
			tags = append(tags, tag)
		}
	}
	return tags, nil
}

func (r *Remote) exists(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Hash returns the MD5 of the file at url. Results are cached until
// ResetCache and concurrent requests for one URL share a single download.
func (r *Remote) Hash(ctx context.Context, url string) (string, error) {
	r.mu.Lock()
	h, ok := r.hashes[url]
	r.mu.Unlock()
	if ok {
		return h, nil
	}

	v, err, _ := r.sf.Do(url, func() (any, error) {
		r.mu.Lock()
		if h, ok := r.hashes[url]; ok {
			r.mu.Unlock()
			return h, nil
		}
		r.mu.Unlock()

		resp, err := r.get(ctx, url)
		if err != nil {
			return "", err
		}
		defer func() { _ = resp.Body.Close() }()

		sum := md5.New()
		if _, err := io.Copy(sum, resp.Body); err != nil {
			return "", errors.NewSyncError("failed to read remote file", err).WithURL(url)
		}
		h := hex.EncodeToString(sum.Sum(nil))

		r.mu.Lock()
		r.hashes[url] = h
		r.mu.Unlock()
		return h, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// ResetCache forgets every cached hash.
func (r *Remote) ResetCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hashes = make(map[string]string)
}

// Download writes the file at url to dest through dest+".tmp" and a rename,
// so readers never see a partial file. An empty body is rejected and leaves
// dest untouched.
func (r *Remote) Download(ctx context.Context, url, dest string) (int64, error) {
	resp, err := r.get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, errors.NewSyncError("failed to create temporary file", err).WithURL(url)
	}

	n, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, errors.NewSyncError("download interrupted", err).WithURL(url).WithRetryable(true)
	}
	if n == 0 {
		_ = os.Remove(tmp)
		return 0, errors.NewSyncError("refusing empty file", errors.ErrEmptyDownload).WithURL(url)
	}

	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return 0, errors.NewSyncError("failed to move download into place", err).WithURL(url)
	}
	return n, nil
}

func (r *Remote) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.NewSyncError("request failed", err).WithURL(url).WithRetryable(true)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, errors.NewSyncError("unexpected status "+resp.Status, errors.ErrSyncFailed).WithURL(url)
	}
	return resp, nil
}

// LocalHash returns the MD5 of the file at path.
func LocalHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	sum := md5.New()
	if _, err := io.Copy(sum, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}
