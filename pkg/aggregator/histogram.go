package aggregator

import (
	"bytes"
	"encoding/binary"
	"math"

	hdr "github.com/HdrHistogram/hdrhistogram-go"
)

// histogramSigFigs keeps significant figures in the 0-5 range; memory
// grows exponentially with higher precision.
const histogramSigFigs = 2

// histogramLowest is the smallest nanosecond duration the histogram can
// distinguish; polls shorter than this still record as 1ns.
const histogramLowest = 1

// histogramHighest is the largest nanosecond value the histogram can
// track. Elapsed durations are clamped to this before recording, mirroring
// the Rust port's clamp to u64::MAX (math.MaxInt64 is the largest value
// representable by the underlying signed-int64 histogram implementation).
const histogramHighest = math.MaxInt64

// Histogram wraps an HDR histogram of poll durations in nanoseconds, with
// a canonical binary serialization used verbatim inside details messages.
type Histogram struct {
	h *hdr.Histogram
}

// NewHistogram constructs an empty histogram at histogramSigFigs
// precision, matching TaskStats' default.
func NewHistogram() *Histogram {
	return &Histogram{h: hdr.New(histogramLowest, histogramHighest, histogramSigFigs)}
}

// Record adds a single nanosecond sample, clamping to the histogram's
// representable range rather than erroring on out-of-range input.
func (h *Histogram) Record(nanos uint64) {
	v := int64(nanos)
	if nanos > histogramHighest {
		v = histogramHighest
	}
	if v < histogramLowest {
		v = histogramLowest
	}
	// RecordValue only fails when v is outside [lowest, highest], which
	// the clamp above already guarantees against.
	_ = h.h.RecordValue(v)
}

// TotalCount returns the number of samples recorded.
func (h *Histogram) TotalCount() int64 {
	return h.h.TotalCount()
}

const histogramWireMagic = "HDR2"

// Serialize renders the histogram into the canonical binary form carried
// inside a TaskDetails message. The format is private to this package and
// this service: magic, lowest/highest/sigfigs, bucket count, then each
// bucket's count as a fixed-width value. A serialization error degrades
// gracefully elsewhere (see renderTaskStats in wire.go): the details message simply
// omits the field rather than failing the publish.
func (h *Histogram) Serialize() ([]byte, error) {
	snap := h.h.Export()

	var buf bytes.Buffer
	buf.WriteString(histogramWireMagic)
	if err := binary.Write(&buf, binary.BigEndian, snap.LowestTrackableValue); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, snap.HighestTrackableValue); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, snap.SignificantFigures); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, int64(len(snap.Counts))); err != nil {
		return nil, err
	}
	for _, c := range snap.Counts {
		if err := binary.Write(&buf, binary.BigEndian, c); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DeserializeHistogram reconstructs a Histogram from bytes produced by
// Serialize. It is primarily exercised by tests asserting round-trip
// fidelity.
func DeserializeHistogram(data []byte) (*Histogram, error) {
	r := bytes.NewReader(data)
	magic := make([]byte, len(histogramWireMagic))
	if _, err := r.Read(magic); err != nil {
		return nil, err
	}
	if string(magic) != histogramWireMagic {
		return nil, errHistogramBadMagic
	}

	snap := &hdr.Snapshot{}
	if err := binary.Read(r, binary.BigEndian, &snap.LowestTrackableValue); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &snap.HighestTrackableValue); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &snap.SignificantFigures); err != nil {
		return nil, err
	}
	var n int64
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	snap.Counts = make([]int64, n)
	for i := range snap.Counts {
		if err := binary.Read(r, binary.BigEndian, &snap.Counts[i]); err != nil {
			return nil, err
		}
	}
	return &Histogram{h: hdr.Import(snap)}, nil
}
