package utils

import (
	"bufio"
	"bytes"
	"context"
	"math"
	"os"
	"slices"
	"strings"
	"testing"
)

func TestSplitJpeg(t *testing.T) {
	// Construct a stream containing: [Garbage] [JPEG] [JPEG] [Garbage]
	jpegA := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0xFF, 0xD9}
	jpegB := []byte{0xFF, 0xD8, 0x04, 0xFF, 0xD9}

	streamData := []byte{0x00, 0x00}
	streamData = append(streamData, jpegA...)
	streamData = append(streamData, jpegB...)
	streamData = append(streamData, []byte{0x00, 0x00}...)

	scanner := bufio.NewScanner(bytes.NewReader(streamData))
	scanner.Split(SplitJpeg)

	var got [][]byte
	for scanner.Scan() {
		got = append(got, append([]byte(nil), scanner.Bytes()...))
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scanner error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(got))
	}
	if !bytes.Equal(got[0], jpegA) || !bytes.Equal(got[1], jpegB) {
		t.Errorf("Unexpected frames %X", got)
	}
}

func TestSplitJpeg_Truncated(t *testing.T) {
	// SOI without EOI: the stream ended mid-frame
	scanner := bufio.NewScanner(bytes.NewReader([]byte{0xFF, 0xD8, 0x01, 0x02}))
	scanner.Split(SplitJpeg)
	if scanner.Scan() {
		t.Errorf("Expected no token for a truncated frame, got %X", scanner.Bytes())
	}
}

func TestNewFFmpegCmd(t *testing.T) {
	cmd := NewFFmpegCmd(context.Background(), "in.mp4", 10)
	if !slices.Contains(cmd.Args, "-frames:v") {
		t.Errorf("Expected frame limit in args, got %v", cmd.Args)
	}
	idx := slices.Index(cmd.Args, "-frames:v")
	if cmd.Args[idx+1] != "10" {
		t.Errorf("Expected frame limit 10, got %s", cmd.Args[idx+1])
	}

	unbounded := NewFFmpegCmd(context.Background(), "in.mp4", 0)
	if slices.Contains(unbounded.Args, "-frames:v") {
		t.Errorf("Expected no frame limit, got %v", unbounded.Args)
	}
}

func TestFileFingerprint(t *testing.T) {
	tmp, err := os.CreateTemp("", "video_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write([]byte("fake video content")); err != nil {
		t.Fatal(err)
	}
	tmp.Close()

	id, err := FileFingerprint(tmp.Name())
	if err != nil || id == "" {
		t.Errorf("Failed to fingerprint file: %v", err)
	}

	// Verify Determinism
	id2, _ := FileFingerprint(tmp.Name())
	if id != id2 {
		t.Errorf("Hash is not deterministic. Got %s, then %s", id, id2)
	}

	// Verify Sensitivity (Change content -> Change ID)
	f, _ := os.OpenFile(tmp.Name(), os.O_APPEND|os.O_WRONLY, 0644)
	f.Write([]byte(" modification"))
	f.Close()

	id3, _ := FileFingerprint(tmp.Name())
	if id == id3 {
		t.Error("Hash did not change after file modification")
	}
}

func TestEuclideanDist(t *testing.T) {
	tests := []struct {
		name string
		a    []float64
		b    []float64
		want float64
	}{
		{"Identical vectors", []float64{1, 2, 3}, []float64{1, 2, 3}, 0},
		{"3-4-5 triangle", []float64{0, 0}, []float64{3, 4}, 5},
		{"Empty vectors", []float64{}, []float64{}, 0},
		{"Length mismatch", []float64{1}, []float64{1, 2}, math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EuclideanDist(tt.a, tt.b)
			if math.IsInf(tt.want, 1) {
				if !math.IsInf(got, 1) {
					t.Errorf("EuclideanDist() = %v, want +Inf", got)
				}
				return
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("EuclideanDist() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFprintError(t *testing.T) {
	var out bytes.Buffer
	s := &SafeCommand{Stderr: bytes.NewBufferString("Traceback: boom")}
	fprintError(&out, "Scan failed", os.ErrNotExist, s)

	for _, want := range []string{"FACERANK ERROR: Scan failed", "DETAILS: file does not exist", "WORKER CRASH LOGS", "Traceback: boom"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected %q in output:\n%s", want, out.String())
		}
	}

	out.Reset()
	fprintError(&out, "No worker", nil, nil)
	if strings.Contains(out.String(), "DETAILS") || strings.Contains(out.String(), "CRASH") {
		t.Errorf("unexpected sections:\n%s", out.String())
	}
}
