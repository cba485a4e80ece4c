package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/andresmejia3/facerank/internal/types"
)

// Face data CSV columns.
const (
	ColumnFaceVideo    = "video"
	ColumnFaceEncoding = "face_encoding"
)

// WriteFaceData writes one row per record: video, face_encoding (JSON array).
func WriteFaceData(w io.Writer, records []types.VideoFaceRecord) error {
	t := &Table{Header: []string{ColumnFaceVideo, ColumnFaceEncoding}}
	for _, rec := range records {
		enc, err := json.Marshal([]float64(rec.Encoding))
		if err != nil {
			return fmt.Errorf("video %s: %w", rec.VideoID, err)
		}
		t.Rows = append(t.Rows, []string{rec.VideoID, string(enc)})
	}
	return t.Write(w)
}

// WriteFaceDataFile is WriteFaceData to a file.
func WriteFaceDataFile(path string, records []types.VideoFaceRecord) error {
	return writeFile(path, func(w io.Writer) error { return WriteFaceData(w, records) })
}

// ReadFaceData parses a face data CSV written by WriteFaceData.
func ReadFaceData(r io.Reader) ([]types.VideoFaceRecord, error) {
	t, err := ReadTable(r)
	if err != nil {
		return nil, err
	}
	if err := t.Require("face data", ColumnFaceVideo, ColumnFaceEncoding); err != nil {
		return nil, err
	}
	videoCol, encCol := t.Column(ColumnFaceVideo), t.Column(ColumnFaceEncoding)

	records := make([]types.VideoFaceRecord, 0, len(t.Rows))
	for i, row := range t.Rows {
		var vec []float64
		if err := json.Unmarshal([]byte(row[encCol]), &vec); err != nil {
			return nil, fmt.Errorf("row %d: invalid face encoding: %w", i+2, err)
		}
		records = append(records, types.VideoFaceRecord{
			VideoID:  strings.TrimSpace(row[videoCol]),
			Encoding: vec,
		})
	}
	return records, nil
}

// ReadFaceDataFile is ReadFaceData on a file path.
func ReadFaceDataFile(p string) ([]types.VideoFaceRecord, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadFaceData(f)
}

// Relink maps local video filenames back to their storage URL: the ".mp4" suffix is
// removed and baseURL is prefixed. Records that already hold a URL are left alone.
func Relink(records []types.VideoFaceRecord, baseURL string) []types.VideoFaceRecord {
	if baseURL == "" {
		return records
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	out := make([]types.VideoFaceRecord, len(records))
	for i, rec := range records {
		out[i] = rec
		if strings.Contains(rec.VideoID, "://") {
			continue
		}
		name := strings.TrimSuffix(path.Base(rec.VideoID), ".mp4")
		out[i].VideoID = baseURL + name
	}
	return out
}
