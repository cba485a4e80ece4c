package types

import (
	"strconv"
	"strings"
)

// EncodingDim is the length of encodings produced by the face worker.
const EncodingDim = 128

// FrameTask represents a single sampled frame handed to a detector
type FrameTask struct {
	Index int
	Data  []byte
}

// FaceEncoding is a fixed-length face descriptor. Treat it as immutable once created.
type FaceEncoding []float64

// Key returns a canonical string for the encoding. Two encodings share a key only if
// every component is bit-identical, which makes it usable as a grouping key.
func (e FaceEncoding) Key() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range e {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}

// Face is one detection returned by the face worker
type Face struct {
	Loc [4]int       `json:"loc"` // [top, right, bottom, left]
	Vec FaceEncoding `json:"vec"`
}

// VideoFaceRecord is one distinct face found in one video.
type VideoFaceRecord struct {
	VideoID  string
	Encoding FaceEncoding
}

// PerformanceRecord holds the numeric metrics reported for one video.
type PerformanceRecord struct {
	VideoID string
	Metrics map[string]float64
}

// InfluencerAggregate is one identity group after joining faces with performance.
type InfluencerAggregate struct {
	Encoding       FaceEncoding
	AvgPerformance float64
	VideoCount     int
	SampleVideoID  string
}
