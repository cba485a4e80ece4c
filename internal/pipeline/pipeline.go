// Package pipeline turns videos into deduplicated face records.
//
// Each video is sampled, run through a face detector and deduplicated on its own.
// Videos share no state, so they are spread over a fixed number of engines; each
// engine owns one detector. Results are stored by input position, so the output
// order never depends on which engine finished first.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/andresmejia3/facerank/internal/dedup"
	"github.com/andresmejia3/facerank/internal/types"
)

// Detector finds faces in one JPEG frame.
type Detector interface {
	DetectFaces(ctx context.Context, frame []byte) ([]types.Face, error)
	Close()
}

// logSource is implemented by detectors that capture their own diagnostics.
type logSource interface {
	Logs() string
}

// DetectorFactory starts a detector for an engine. ctx bounds the detector's lifetime.
type DetectorFactory func(ctx context.Context, engineID int) (Detector, error)

// FrameSource yields the sampled frames of a video.
type FrameSource interface {
	Frames(ctx context.Context, path string) iter.Seq2[types.FrameTask, error]
}

// Video identifies one input. ID is the join key used against performance data.
type Video struct {
	ID   string
	Path string
}

// Result is the scan outcome for one video. Faces is empty when Err is set.
type Result struct {
	Video Video
	Faces []types.VideoFaceRecord
	Err   error
}

// DetectError marks a failure inside the detector, after which it is restarted.
type DetectError struct {
	Frame int
	Err   error
}

func (e *DetectError) Error() string {
	return fmt.Sprintf("face detection failed on frame %d: %v", e.Frame, e.Err)
}

func (e *DetectError) Unwrap() error { return e.Err }

// Scanner runs the per-video stages.
type Scanner struct {
	Frames       FrameSource
	NewDetector  DetectorFactory
	Threshold    float64
	Engines      int
	VideoTimeout time.Duration
	Log          *logrus.Logger
	// OnDone is called once per finished video, from engine goroutines.
	OnDone func(Result)
}

// ScanVideo extracts the distinct faces of a single video with det.
func (s *Scanner) ScanVideo(ctx context.Context, det Detector, v Video) ([]types.VideoFaceRecord, error) {
	dd := dedup.New(s.Threshold)
	for frame, err := range s.Frames.Frames(ctx, v.Path) {
		if err != nil {
			return nil, err
		}
		faces, err := det.DetectFaces(ctx, frame.Data)
		if err != nil {
			return nil, &DetectError{Frame: frame.Index, Err: err}
		}
		// Within a frame the detector's order is arbitrary but stable; keep it.
		for _, f := range faces {
			dd.Add(f.Vec)
		}
	}
	// A killed decoder looks like a short video, so check the deadline explicitly
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reps := dd.Representatives()
	records := make([]types.VideoFaceRecord, len(reps))
	for i, enc := range reps {
		records[i] = types.VideoFaceRecord{VideoID: v.ID, Encoding: enc}
	}
	return records, nil
}

// Scan processes every video. A video that fails or times out gets an empty face
// list and a logged warning. Only detector startup failures and cancellation of ctx
// abort the batch.
func (s *Scanner) Scan(ctx context.Context, videos []Video) ([]Result, error) {
	results := make([]Result, len(videos))
	engines := max(s.Engines, 1)

	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for i := range videos {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for id := 0; id < engines; id++ {
		g.Go(func() error {
			return s.runEngine(gctx, id, videos, jobs, results)
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (s *Scanner) runEngine(ctx context.Context, id int, videos []Video, jobs <-chan int, results []Result) error {
	var det Detector
	defer func() {
		if det != nil {
			det.Close()
		}
	}()

	for idx := range jobs {
		v := videos[idx]
		if det == nil {
			var err error
			det, err = s.NewDetector(ctx, id)
			if err != nil {
				return fmt.Errorf("engine %d: failed to start detector: %w", id, err)
			}
		}

		vctx, cancel := s.videoContext(ctx)
		faces, err := s.ScanVideo(vctx, det, v)
		cancel()

		res := Result{Video: v, Faces: faces, Err: err}
		if err != nil {
			if ctx.Err() != nil {
				// The whole batch is going down, not just this video
				return ctx.Err()
			}
			res.Faces = nil
			s.logger().WithFields(logrus.Fields{
				"engine": id,
				"video":  v.ID,
			}).WithError(err).Warn("Skipping video")

			var detErr *DetectError
			if errors.As(err, &detErr) || errors.Is(err, context.DeadlineExceeded) {
				// The detector may be wedged or dead; start a fresh one for the next video
				det.Close()
				if ls, ok := det.(logSource); ok && ls.Logs() != "" {
					s.logger().WithField("engine", id).Debugf("Detector logs:\n%s", ls.Logs())
				}
				det = nil
			}
		}
		results[idx] = res
		if s.OnDone != nil {
			s.OnDone(res)
		}
	}
	return nil
}

func (s *Scanner) videoContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.VideoTimeout > 0 {
		return context.WithTimeout(ctx, s.VideoTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Scanner) logger() *logrus.Logger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

// Records flattens results into face records, in video order.
func Records(results []Result) []types.VideoFaceRecord {
	var out []types.VideoFaceRecord
	for _, r := range results {
		out = append(out, r.Faces...)
	}
	return out
}

// VideosFromDir lists the regular files in dir in name order. The file name is the ID.
func VideosFromDir(dir string) ([]Video, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var videos []Video
	for _, e := range entries {
		if !e.Type().IsRegular() || e.Name()[0] == '.' {
			continue
		}
		videos = append(videos, Video{ID: e.Name(), Path: filepath.Join(dir, e.Name())})
	}
	return videos, nil
}
