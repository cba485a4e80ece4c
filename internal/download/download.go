// Package download fetches video files into a local directory.
//
// Each URL is fetched once with a plain GET. There is no retry or resume: a failed
// download is reported to the caller, which logs it and moves on.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

// DefaultExt is assumed for files whose name has no extension.
const DefaultExt = ".mp4"

// Store downloads videos into Dir.
type Store struct {
	Dir      string
	Client   *http.Client
	Progress io.Writer // progress bars go here, nil disables them
	Log      *logrus.Logger
}

// Result is the outcome for one URL.
type Result struct {
	URL  string
	Path string
	Err  error
}

// FileName derives the local file name for a video URL: the last path segment, with
// DefaultExt appended when it has no extension.
func FileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid video URL %q: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("video URL %q has no file name", rawURL)
	}
	return withExt(name), nil
}

func withExt(name string) string {
	if filepath.Ext(name) == "" {
		return name + DefaultExt
	}
	return name
}

// Fetch downloads one URL and returns the local path.
func (s *Store) Fetch(ctx context.Context, rawURL string) (string, error) {
	name, err := FileName(rawURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", err
	}
	dest := filepath.Join(s.Dir, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("could not create request: %w", err)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	// Write to a temp file first so a failed transfer never leaves a truncated video behind
	tmp, err := os.CreateTemp(s.Dir, "."+name+".part-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	var dst io.Writer = tmp
	if s.Progress != nil {
		bar := progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetDescription(name),
			progressbar.OptionSetWriter(s.Progress),
			progressbar.OptionShowBytes(true),
			progressbar.OptionClearOnFinish(),
		)
		dst = io.MultiWriter(tmp, bar)
		defer bar.Finish()
	}

	if _, err := io.Copy(dst, resp.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", err
	}
	return dest, nil
}

// FetchAll downloads every URL in order. Failures are logged and recorded in the
// result; they never stop the batch. Only cancellation of ctx aborts early.
// URLs sharing a file name overwrite each other; the later one wins and a warning is logged.
func (s *Store) FetchAll(ctx context.Context, urls []string) ([]Result, error) {
	results := make([]Result, 0, len(urls))
	fetched := make(map[string]string) // path -> URL
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		p, err := s.Fetch(ctx, u)
		if err != nil && s.Log != nil {
			s.Log.WithError(err).WithField("url", u).Warn("Failed to download video")
		}
		if err != nil && errors.Is(err, context.Canceled) {
			return results, err
		}
		if err == nil {
			if prev, ok := fetched[p]; ok && prev != u && s.Log != nil {
				s.Log.WithFields(logrus.Fields{"url": u, "previous": prev, "path": p}).
					Warn("Download overwrote a file fetched earlier in this batch")
			}
			fetched[p] = u
		}
		results = append(results, Result{URL: u, Path: p, Err: err})
	}
	return results, nil
}

// NormalizeExtensions appends DefaultExt to every regular file in dir that has no
// extension and returns the renamed paths.
func NormalizeExtensions(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var renamed []string
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if filepath.Ext(e.Name()) != "" {
			continue
		}
		from := filepath.Join(dir, e.Name())
		to := from + DefaultExt
		if err := os.Rename(from, to); err != nil {
			return renamed, err
		}
		renamed = append(renamed, to)
	}
	return renamed, nil
}
