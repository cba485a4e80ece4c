// Package worker drives an external face-recognition process.
//
// Wire protocol, all integers big endian:
//
//	request:  [len uint32][jpeg bytes]
//	response: [len uint32][payload]
//	payload:  [status uint8 = 0][faces uint32] then per face [box 4×int32][vec 128×float32]
//	          [status uint8 = 1][msgLen uint32][msg]
//
// Requests go over stdin; responses come back on a dedicated pipe (fd 3) so stray
// prints from the recognizer never corrupt the stream.
package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/andresmejia3/facerank/internal/types"
	"github.com/andresmejia3/facerank/internal/utils"
)

const (
	statusOK    = 0
	statusError = 1
)

const faceSize = 4*4 + 4*types.EncodingDim

// maxResponse bounds a single response so a corrupted length header can't exhaust memory.
const maxResponse = 64 * 1024 * 1024

// Config controls how a worker process is launched.
type Config struct {
	Command []string // e.g. ["python3", "-u", "python/worker.py"]
	Debug   bool
}

// DefaultCommand is used when Config.Command is empty.
var DefaultCommand = []string{"python3", "-u", "python/worker.py"}

// PythonWorker is a single face-recognition process.
type PythonWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser

	closeOnce sync.Once
}

// NewPythonWorker starts a worker process. ctx bounds the lifetime of the process.
func NewPythonWorker(ctx context.Context, id int, cfg Config) (*PythonWorker, error) {
	command := cfg.Command
	if len(command) == 0 {
		command = DefaultCommand
	}
	py := utils.NewSafeCommand(ctx, command[0], command[1:]...)
	if cfg.Debug {
		py.Env = append(os.Environ(), "FACERANK_DEBUG=1")
	}

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
	}, nil
}

// Communicate sends one framed request and reads one framed response.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // the worker died (import error, OOM, ...)
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxResponse {
		return nil, fmt.Errorf("response of %d bytes exceeds limit", respLen)
	}
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// ProcessFrame sends a JPEG frame and decodes the detected faces.
// If ctx expires first the worker is closed and must not be reused.
func (w *PythonWorker) ProcessFrame(ctx context.Context, frame []byte) ([]types.Face, error) {
	type result struct {
		faces []types.Face
		err   error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := w.Communicate(frame)
		if err != nil {
			done <- result{err: err}
			return
		}
		faces, err := decodeFaces(resp)
		done <- result{faces: faces, err: err}
	}()

	select {
	case res := <-done:
		return res.faces, res.err
	case <-ctx.Done():
		w.Close()
		return nil, ctx.Err()
	}
}

// DetectFaces satisfies pipeline.Detector.
func (w *PythonWorker) DetectFaces(ctx context.Context, frame []byte) ([]types.Face, error) {
	return w.ProcessFrame(ctx, frame)
}

// ErrWorker wraps logic errors reported by the worker itself.
var ErrWorker = errors.New("python worker error")

func decodeFaces(payload []byte) ([]types.Face, error) {
	r := bytes.NewReader(payload)
	status, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("empty worker response: %w", err)
	}

	switch status {
	case statusOK:
	case statusError:
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("malformed error response: %w", err)
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("malformed error response: %w", err)
		}
		return nil, fmt.Errorf("%w: %s", ErrWorker, msg)
	default:
		return nil, fmt.Errorf("unknown worker status %d", status)
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("malformed face count: %w", err)
	}

	// a face is 4 int32 box values and EncodingDim float32 values
	faces := make([]types.Face, 0, min(count, uint32(r.Len()/faceSize)))
	for i := uint32(0); i < count; i++ {
		var box [4]int32
		if err := binary.Read(r, binary.BigEndian, &box); err != nil {
			return nil, fmt.Errorf("face %d: malformed box: %w", i, err)
		}
		var vec [types.EncodingDim]float32
		if err := binary.Read(r, binary.BigEndian, &vec); err != nil {
			return nil, fmt.Errorf("face %d: malformed encoding: %w", i, err)
		}

		f := types.Face{Vec: make(types.FaceEncoding, types.EncodingDim)}
		for j, v := range box {
			f.Loc[j] = int(v)
		}
		for j, v := range vec {
			f.Vec[j] = float64(v)
		}
		faces = append(faces, f)
	}
	return faces, nil
}

// Logs returns what the process has written to stderr so far.
func (w *PythonWorker) Logs() string {
	if w.Cmd == nil || w.Cmd.Stderr == nil {
		return ""
	}
	return w.Cmd.Stderr.String()
}

// Close shuts the worker down and reaps the process. Safe to call more than once.
func (w *PythonWorker) Close() {
	w.closeOnce.Do(func() {
		w.Stdin.Close()
		w.DataPipe.Close()
		if w.Cmd != nil {
			if w.Cmd.Process != nil {
				_ = w.Cmd.Process.Kill()
			}
			_ = w.Cmd.Wait()
		}
	})
}
