package pipeline

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andresmejia3/facerank/internal/logging"
	"github.com/andresmejia3/facerank/internal/types"
)

// fakeFrames yields n frames per path; frame data is the path so the detector
// knows which video it is looking at.
type fakeFrames struct {
	n      map[string]int
	broken map[string]bool
}

func (f fakeFrames) Frames(ctx context.Context, path string) iter.Seq2[types.FrameTask, error] {
	return func(yield func(types.FrameTask, error) bool) {
		if f.broken[path] {
			yield(types.FrameTask{}, errors.New("undecodable video"))
			return
		}
		for i := 1; i <= f.n[path]; i++ {
			if !yield(types.FrameTask{Index: i, Data: []byte(path)}, nil) {
				return
			}
		}
	}
}

// fakeDetector returns canned faces per video path.
type fakeDetector struct {
	faces  map[string][]types.Face
	fail   map[string]bool
	hang   map[string]bool
	closed *atomic.Int32
}

func (d *fakeDetector) DetectFaces(ctx context.Context, frame []byte) ([]types.Face, error) {
	p := string(frame)
	if d.hang[p] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if d.fail[p] {
		return nil, errors.New("worker crashed")
	}
	return d.faces[p], nil
}

func (d *fakeDetector) Close() { d.closed.Add(1) }

func face(v ...float64) types.Face { return types.Face{Vec: types.FaceEncoding(v)} }

func newScanner(frames fakeFrames, det *fakeDetector, starts *atomic.Int32) *Scanner {
	return &Scanner{
		Frames: frames,
		NewDetector: func(ctx context.Context, id int) (Detector, error) {
			starts.Add(1)
			return det, nil
		},
		Threshold:    0.6,
		Engines:      1,
		VideoTimeout: time.Second,
		Log:          logging.Discard(),
	}
}

func TestScanVideo_DedupAcrossFrames(t *testing.T) {
	det := &fakeDetector{
		faces: map[string][]types.Face{
			// Same two people in every frame, jittered slightly
			"a.mp4": {face(0, 0), face(5, 5), face(0.1, 0)},
		},
		closed: &atomic.Int32{},
	}
	s := newScanner(fakeFrames{n: map[string]int{"a.mp4": 10}}, det, &atomic.Int32{})

	recs, err := s.ScanVideo(context.Background(), det, Video{ID: "https://x/a", Path: "a.mp4"})
	if err != nil {
		t.Fatalf("ScanVideo failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 distinct faces, got %d", len(recs))
	}
	if recs[0].VideoID != "https://x/a" || recs[0].Encoding.Key() != "[0,0]" {
		t.Errorf("unexpected first record %+v", recs[0])
	}
}

func TestScan_FailuresYieldEmptyResults(t *testing.T) {
	closed := &atomic.Int32{}
	det := &fakeDetector{
		faces: map[string][]types.Face{
			"ok1.mp4": {face(0, 0)},
			"ok2.mp4": {face(1, 1), face(9, 9)},
		},
		fail:   map[string]bool{"crash.mp4": true},
		closed: closed,
	}
	frames := fakeFrames{
		n:      map[string]int{"ok1.mp4": 3, "crash.mp4": 3, "ok2.mp4": 3},
		broken: map[string]bool{"corrupt.mp4": true},
	}
	starts := &atomic.Int32{}
	s := newScanner(frames, det, starts)

	videos := []Video{
		{ID: "ok1", Path: "ok1.mp4"},
		{ID: "corrupt", Path: "corrupt.mp4"},
		{ID: "crash", Path: "crash.mp4"},
		{ID: "ok2", Path: "ok2.mp4"},
	}
	results, err := s.Scan(context.Background(), videos)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if results[1].Err == nil || len(results[1].Faces) != 0 {
		t.Errorf("corrupt video should fail with no faces, got %+v", results[1])
	}
	var detErr *DetectError
	if !errors.As(results[2].Err, &detErr) {
		t.Errorf("expected DetectError for crash video, got %v", results[2].Err)
	}
	recs := Records(results)
	if len(recs) != 3 {
		t.Fatalf("expected 3 records from the healthy videos, got %d", len(recs))
	}
	if recs[0].VideoID != "ok1" || recs[1].VideoID != "ok2" {
		t.Errorf("records out of order: %+v", recs)
	}
	// The crash forces a detector restart
	if starts.Load() != 2 {
		t.Errorf("expected 2 detector starts, got %d", starts.Load())
	}
}

func TestScan_TimeoutSkipsVideo(t *testing.T) {
	det := &fakeDetector{
		faces:  map[string][]types.Face{"ok.mp4": {face(0, 0)}},
		hang:   map[string]bool{"slow.mp4": true},
		closed: &atomic.Int32{},
	}
	frames := fakeFrames{n: map[string]int{"ok.mp4": 1, "slow.mp4": 1}}
	s := newScanner(frames, det, &atomic.Int32{})
	s.VideoTimeout = 20 * time.Millisecond

	results, err := s.Scan(context.Background(), []Video{
		{ID: "slow", Path: "slow.mp4"},
		{ID: "ok", Path: "ok.mp4"},
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if results[0].Err == nil || len(results[0].Faces) != 0 {
		t.Errorf("expected timed-out video to be skipped, got %+v", results[0])
	}
	if len(results[1].Faces) != 1 {
		t.Errorf("expected the next video to still be scanned, got %+v", results[1])
	}
}

func TestScan_ParallelEnginesKeepOrder(t *testing.T) {
	faces := map[string][]types.Face{}
	n := map[string]int{}
	var videos []Video
	for i := 0; i < 20; i++ {
		p := string(rune('a'+i)) + ".mp4"
		faces[p] = []types.Face{face(float64(i), 0)}
		n[p] = 2
		videos = append(videos, Video{ID: p, Path: p})
	}
	det := &fakeDetector{faces: faces, closed: &atomic.Int32{}}
	starts := &atomic.Int32{}
	s := newScanner(fakeFrames{n: n}, det, starts)
	s.Engines = 4

	var mu sync.Mutex
	done := 0
	s.OnDone = func(Result) {
		mu.Lock()
		done++
		mu.Unlock()
	}

	results, err := s.Scan(context.Background(), videos)
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range results {
		if r.Video.ID != videos[i].ID || len(r.Faces) != 1 {
			t.Errorf("result %d out of place: %+v", i, r)
		}
	}
	if done != 20 {
		t.Errorf("expected 20 completion callbacks, got %d", done)
	}
	if starts.Load() > 4 {
		t.Errorf("expected at most one detector per engine, got %d", starts.Load())
	}
}

func TestScan_DetectorStartupFailureAborts(t *testing.T) {
	s := &Scanner{
		Frames: fakeFrames{n: map[string]int{"a.mp4": 1}},
		NewDetector: func(ctx context.Context, id int) (Detector, error) {
			return nil, errors.New("python3 not found")
		},
		Log: logging.Discard(),
	}
	if _, err := s.Scan(context.Background(), []Video{{ID: "a", Path: "a.mp4"}}); err == nil {
		t.Fatal("expected startup failure to abort the scan")
	}
}

func TestVideosFromDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.mp4", "a.mp4", ".hidden"} {
		os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644)
	}
	videos, err := VideosFromDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(videos) != 2 || videos[0].ID != "a.mp4" || videos[1].ID != "b.mp4" {
		t.Errorf("unexpected videos %+v", videos)
	}
}
