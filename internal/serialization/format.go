package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Format constants.
const (
	MagicBytes      = "DAGN"
	FormatVersion   = 1
	HeaderAlignment = 64 // sections start on 64-byte boundaries
	FixedHeaderSize = 64
	ChecksumSize    = 32
	ChecksumOffset  = 0x20
	Float64Size     = 8
)

// Section names.
const (
	SectionParams  = "params"
	SectionUpdater = "updater"
)

// DTypeFloat64 is the only section data type.
const DTypeFloat64 = "float64"

// Flags for the .dagn format.
const (
	FlagHasUpdater  uint32 = 1 << 0 // updater state section present
	FlagHasMetadata uint32 = 1 << 1 // custom metadata present
)

// Header is the JSON header of a snapshot.
type Header struct {
	FormatVersion int               `json:"format_version"`
	ID            string            `json:"id"` // random UUID assigned at save time
	CreatedAt     time.Time         `json:"created_at"`
	Config        json.RawMessage   `json:"config"` // defaulted graph configuration
	NumParams     int               `json:"num_params"`
	Training      TrainingState     `json:"training"`
	Sections      []Section         `json:"sections"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// TrainingState records the counters and solver settings of a graph.
type TrainingState struct {
	Iteration    int     `json:"iteration"`
	Epoch        int     `json:"epoch"`
	Score        float64 `json:"score"`
	LearningRate float64 `json:"learning_rate"`
	UpdaterType  string  `json:"updater_type"`
}

// Section describes one float64 vector in the data section.
type Section struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Length int    `json:"length"` // number of values
	Offset int64  `json:"offset"` // bytes from the start of the data section
	Size   int64  `json:"size"`   // bytes
}

// Section returns the named section.
func (h *Header) Section(name string) (Section, bool) {
	for _, s := range h.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}

// fixedHeader is the 64-byte prefix of every snapshot.
type fixedHeader struct {
	version    uint32
	flags      uint32
	headerSize uint64
	dataSize   uint64
	checksum   [ChecksumSize]byte
}

func (f *fixedHeader) encode() []byte {
	buf := make([]byte, FixedHeaderSize)
	copy(buf[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(buf[4:8], f.version)
	binary.LittleEndian.PutUint32(buf[8:12], f.flags)
	binary.LittleEndian.PutUint64(buf[16:24], f.headerSize)
	binary.LittleEndian.PutUint64(buf[24:32], f.dataSize)
	copy(buf[ChecksumOffset:ChecksumOffset+ChecksumSize], f.checksum[:])
	return buf
}

func decodeFixedHeader(buf []byte) (*fixedHeader, error) {
	if len(buf) < FixedHeaderSize {
		return nil, fmt.Errorf("fixed header has %d bytes, need %d", len(buf), FixedHeaderSize)
	}
	if string(buf[0:4]) != MagicBytes {
		return nil, ErrInvalidMagic
	}
	f := &fixedHeader{
		version:    binary.LittleEndian.Uint32(buf[4:8]),
		flags:      binary.LittleEndian.Uint32(buf[8:12]),
		headerSize: binary.LittleEndian.Uint64(buf[16:24]),
		dataSize:   binary.LittleEndian.Uint64(buf[24:32]),
	}
	if f.version != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, f.version, FormatVersion)
	}
	copy(f.checksum[:], buf[ChecksumOffset:ChecksumOffset+ChecksumSize])
	return f, nil
}

// padding returns the bytes needed to align pos to HeaderAlignment.
func padding(pos int64) int64 {
	return (HeaderAlignment - pos%HeaderAlignment) % HeaderAlignment
}

func encodeFloat64s(dst []byte, values []float64) {
	for i, v := range values {
		binary.LittleEndian.PutUint64(dst[i*Float64Size:], math.Float64bits(v))
	}
}

func decodeFloat64s(src []byte) []float64 {
	out := make([]float64, len(src)/Float64Size)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(src[i*Float64Size:]))
	}
	return out
}
