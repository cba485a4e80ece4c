package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/andresmejia3/facerank/internal/types"
)

// Store manages the PostgreSQL connection pool and pgvector operations.
type Store struct {
	pool *pgxpool.Pool
}

// Video identifies a scanned file. Fingerprint changes when the file does.
type Video struct {
	ID          string
	Path        string
	Fingerprint string
}

// VideoSummary is one scanned video as listed by ListVideos.
type VideoSummary struct {
	ID        string
	Path      string
	RunID     uuid.UUID
	Faces     int
	Error     string
	IndexedAt time.Time
}

// New establishes a connection pool to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// initSchema creates the tables and vector extension if they don't exist.
func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS video_metadata (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			fingerprint TEXT NOT NULL DEFAULT '',
			run_id UUID NOT NULL,
			scan_error TEXT,
			indexed_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS video_faces (
			id BIGSERIAL PRIMARY KEY,
			video_id TEXT NOT NULL REFERENCES video_metadata(id) ON DELETE CASCADE,
			face_index INT NOT NULL,
			embedding VECTOR(%d) NOT NULL
		);
		CREATE INDEX IF NOT EXISTS video_faces_video_id_idx ON video_faces (video_id);
	`, types.EncodingDim)
	_, err := pool.Exec(ctx, query)
	return err
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// SaveVideo records one scanned video and replaces its faces. scanErr marks a video
// that was skipped; its face list is empty.
func (s *Store) SaveVideo(ctx context.Context, runID uuid.UUID, v Video, faces []types.VideoFaceRecord, scanErr error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := ensureVideoMetadata(ctx, tx, runID, v, scanErr); err != nil {
		return fmt.Errorf("video %s: %w", v.ID, err)
	}
	if err := insertVideoFaces(ctx, tx, v.ID, faces); err != nil {
		return fmt.Errorf("video %s: %w", v.ID, err)
	}
	return tx.Commit(ctx)
}

// ensureVideoMetadata registers the video. A re-scan replaces its previous faces.
func ensureVideoMetadata(ctx context.Context, tx pgx.Tx, runID uuid.UUID, v Video, scanErr error) error {
	if _, err := tx.Exec(ctx, "DELETE FROM video_faces WHERE video_id = $1", v.ID); err != nil {
		return err
	}

	var msg *string
	if scanErr != nil {
		m := scanErr.Error()
		msg = &m
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO video_metadata (id, path, fingerprint, run_id, scan_error, indexed_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			path = EXCLUDED.path, fingerprint = EXCLUDED.fingerprint, run_id = EXCLUDED.run_id,
			scan_error = EXCLUDED.scan_error, indexed_at = NOW()
	`, v.ID, v.Path, v.Fingerprint, runID, msg)
	return err
}

func insertVideoFaces(ctx context.Context, tx pgx.Tx, videoID string, faces []types.VideoFaceRecord) error {
	for i, f := range faces {
		if len(f.Encoding) != types.EncodingDim {
			return fmt.Errorf("face %d has %d dimensions, expected %d", i, len(f.Encoding), types.EncodingDim)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO video_faces (video_id, face_index, embedding)
			VALUES ($1, $2, $3)
		`, videoID, i, pgvector.NewVector(toFloat32(f.Encoding)))
		if err != nil {
			return err
		}
	}
	return nil
}

// LoadVideoFaces returns every stored face ordered by video ID, then by position within
// the video, so the result does not depend on which engine finished first.
// Embeddings are stored as float32, so values round-trip at that precision.
func (s *Store) LoadVideoFaces(ctx context.Context) ([]types.VideoFaceRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT video_id, embedding FROM video_faces ORDER BY video_id, face_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.VideoFaceRecord
	for rows.Next() {
		var rec types.VideoFaceRecord
		var vec pgvector.Vector
		if err := rows.Scan(&rec.VideoID, &vec); err != nil {
			return nil, err
		}
		rec.Encoding = toFloat64(vec.Slice())
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ScannedVideos maps the IDs of videos scanned without error to their fingerprint.
func (s *Store) ScannedVideos(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, fingerprint FROM video_metadata WHERE scan_error IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	done := make(map[string]string)
	for rows.Next() {
		var id, fp string
		if err := rows.Scan(&id, &fp); err != nil {
			return nil, err
		}
		done[id] = fp
	}
	return done, rows.Err()
}

// ListVideos returns every stored video with its face count, most recent first.
func (s *Store) ListVideos(ctx context.Context) ([]VideoSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.path, m.run_id, COALESCE(m.scan_error, ''), m.indexed_at, COUNT(f.id)
		FROM video_metadata m
		LEFT JOIN video_faces f ON f.video_id = m.id
		GROUP BY m.id
		ORDER BY m.indexed_at DESC, m.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VideoSummary
	for rows.Next() {
		var v VideoSummary
		if err := rows.Scan(&v.ID, &v.Path, &v.RunID, &v.Error, &v.IndexedAt, &v.Faces); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// DeleteVideo removes a video and its faces. It reports whether the video existed.
func (s *Store) DeleteVideo(ctx context.Context, videoID string) (bool, error) {
	var id string
	err := s.pool.QueryRow(ctx, "DELETE FROM video_metadata WHERE id = $1 RETURNING id", videoID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// Reset drops all application tables to clear the database state.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DROP TABLE IF EXISTS video_faces CASCADE;
		DROP TABLE IF EXISTS video_metadata CASCADE;
	`)
	if err != nil {
		return err
	}
	return initSchema(ctx, s.pool)
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
