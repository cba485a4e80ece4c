package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ExportURL rewrites a Google Sheets share link into its CSV export endpoint.
// Any other URL is returned unchanged, so a plain CSV link works as well.
func ExportURL(sheetURL string) (string, error) {
	u, err := url.Parse(sheetURL)
	if err != nil {
		return "", fmt.Errorf("invalid sheet URL: %w", err)
	}
	const marker = "/spreadsheets/d/"
	idx := strings.Index(u.Path, marker)
	if idx < 0 {
		return sheetURL, nil
	}
	id, _, _ := strings.Cut(u.Path[idx+len(marker):], "/")
	if id == "" {
		return "", fmt.Errorf("invalid sheet URL: no spreadsheet id in %q", sheetURL)
	}

	q := url.Values{"format": {"csv"}}
	// Keep the tab selection if the share link carries one (#gid=123 or ?gid=123)
	if gid := u.Query().Get("gid"); gid != "" {
		q.Set("gid", gid)
	} else if after, ok := strings.CutPrefix(u.Fragment, "gid="); ok {
		q.Set("gid", after)
	}

	out := url.URL{
		Scheme:   u.Scheme,
		Host:     u.Host,
		Path:     u.Path[:idx+len(marker)] + id + "/export",
		RawQuery: q.Encode(),
	}
	return out.String(), nil
}

// FetchSheet downloads the first sheet of a spreadsheet as a table.
// The sheet must be readable without credentials (shared by link).
func FetchSheet(ctx context.Context, client *http.Client, sheetURL string) (*Table, error) {
	exportURL, err := ExportURL(sheetURL)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, exportURL, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not fetch sheet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("sheet request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return ReadTable(resp.Body)
}
