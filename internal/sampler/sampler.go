package sampler

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os/exec"

	"github.com/andresmejia3/facerank/internal/types"
	"github.com/andresmejia3/facerank/internal/utils"
)

const megabyte = 1024 * 1024

// DefaultMaxFrames is how many frames are examined per video unless configured otherwise.
const DefaultMaxFrames = 10

// OpenFunc returns a stream of concatenated JPEG frames for a video.
// Closing the stream must release every resource behind it.
type OpenFunc func(ctx context.Context, path string, maxDecoded int) (io.ReadCloser, error)

// Sampler yields a bounded number of frames from a video.
type Sampler struct {
	MaxFrames int // sampled frames per video
	NthFrame  int // keep every nth decoded frame
	Open      OpenFunc
}

// New returns a Sampler that decodes with ffmpeg.
func New(maxFrames, nthFrame int) *Sampler {
	if maxFrames < 1 {
		maxFrames = DefaultMaxFrames
	}
	if nthFrame < 1 {
		nthFrame = 1
	}
	return &Sampler{MaxFrames: maxFrames, NthFrame: nthFrame, Open: OpenFFmpeg}
}

// Frames returns a lazy sequence of sampled frames. Every range over the sequence
// starts a fresh decoder, so it can be iterated more than once. Iteration stops after
// MaxFrames frames, at end of stream, or at the first error, which is yielded once.
func (s *Sampler) Frames(ctx context.Context, path string) iter.Seq2[types.FrameTask, error] {
	return func(yield func(types.FrameTask, error) bool) {
		stream, err := s.Open(ctx, path, s.MaxFrames*s.NthFrame)
		if err != nil {
			yield(types.FrameTask{}, err)
			return
		}
		defer stream.Close()

		scanner := bufio.NewScanner(stream)
		scanner.Buffer(make([]byte, megabyte), 64*megabyte)
		scanner.Split(utils.SplitJpeg)

		decoded, sent := 0, 0
		for sent < s.MaxFrames && scanner.Scan() {
			decoded++
			if decoded%s.NthFrame != 0 {
				continue
			}
			// The scanner reuses its buffer, hand out a private copy
			data := make([]byte, len(scanner.Bytes()))
			copy(data, scanner.Bytes())
			sent++
			if !yield(types.FrameTask{Index: decoded, Data: data}, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(types.FrameTask{}, fmt.Errorf("frame scanner failed: %w", err))
			return
		}
		if sent >= s.MaxFrames {
			return
		}
		// Natural end of stream: surface decoder failures (corrupt or unreadable video)
		if err := stream.Close(); err != nil {
			yield(types.FrameTask{}, err)
		}
	}
}

// ffmpegStream owns a running decoder. Close kills it if it is still running.
type ffmpegStream struct {
	io.ReadCloser
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	closed bool
	err    error
}

func (f *ffmpegStream) Close() error {
	if f.closed {
		return f.err
	}
	f.closed = true
	f.ReadCloser.Close()
	if err := f.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		// ffmpeg exits non-zero when we stop reading early; only report real failures
		if errors.As(err, &exitErr) && f.stderr.Len() == 0 {
			return nil
		}
		f.err = fmt.Errorf("ffmpeg execution failed: %w: %s", err, f.stderr.String())
	}
	return f.err
}

// OpenFFmpeg starts ffmpeg on path and returns its MJPEG stdout.
func OpenFFmpeg(ctx context.Context, path string, maxDecoded int) (io.ReadCloser, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	cmd := utils.NewFFmpegCmd(ctx, path, maxDecoded)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create FFmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start FFmpeg: %w", err)
	}
	return &ffmpegStream{ReadCloser: out, cmd: cmd, stderr: &stderr}, nil
}
