package serialization

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/born-ml/dagnet/internal/config"
	"github.com/born-ml/dagnet/internal/graph"
)

// Reader reads snapshots in .dagn format.
type Reader struct {
	file       *os.File
	header     Header
	flags      uint32
	dataOffset int64
	dataSize   int64
	closed     bool
}

// ReaderOptions configures the behavior of Reader.
type ReaderOptions struct {
	SkipChecksumValidation bool
	ValidationLevel        ValidationLevel
}

// NewReader opens a snapshot with strict validation.
func NewReader(path string) (*Reader, error) {
	return NewReaderWithOptions(path, ReaderOptions{ValidationLevel: ValidationStrict})
}

// NewReaderWithOptions opens a snapshot. The fixed header and JSON header
// are parsed and validated up front; the data section is hashed unless
// opts.SkipChecksumValidation is set.
func NewReaderWithOptions(path string, opts ReaderOptions) (*Reader, error) {
	//nolint:gosec // G304: snapshot path comes from the caller
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	r := &Reader{file: file}
	if err := r.parse(opts); err != nil {
		_ = file.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) parse(opts ReaderOptions) error {
	buf := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r.file, buf); err != nil {
		return fmt.Errorf("failed to read fixed header: %w", err)
	}
	fixed, err := decodeFixedHeader(buf)
	if err != nil {
		return err
	}
	if fixed.headerSize > MaxHeaderSize {
		return ErrHeaderTooLarge
	}
	r.flags = fixed.flags

	headerBytes := make([]byte, fixed.headerSize)
	if _, err := io.ReadFull(r.file, headerBytes); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	if err := json.Unmarshal(headerBytes, &r.header); err != nil {
		return fmt.Errorf("failed to parse header JSON: %w", err)
	}

	//nolint:gosec // G115: headerSize is bounded by MaxHeaderSize
	pos := int64(FixedHeaderSize) + int64(fixed.headerSize)
	r.dataOffset = pos + padding(pos)
	//nolint:gosec // G115: checked against the file size below
	r.dataSize = int64(fixed.dataSize)

	info, err := r.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Size() < r.dataOffset+r.dataSize {
		return fmt.Errorf("truncated file: %d bytes, data section ends at %d", info.Size(), r.dataOffset+r.dataSize)
	}
	if err := ValidateHeader(&r.header, r.dataSize, opts.ValidationLevel); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if opts.SkipChecksumValidation {
		return nil
	}
	if _, err := r.file.Seek(r.dataOffset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to data section: %w", err)
	}
	sum, err := ComputeChecksumReader(r.file, r.dataSize)
	if err != nil {
		return err
	}
	return ValidateChecksum(sum, fixed.checksum)
}

// Header returns the snapshot header.
func (r *Reader) Header() Header { return r.header }

// Flags returns the format flags.
func (r *Reader) Flags() uint32 { return r.flags }

// Config decodes the embedded graph configuration.
func (r *Reader) Config() (*config.GraphConfig, error) {
	if len(r.header.Config) == 0 {
		return nil, ErrNoConfig
	}
	return config.ParseJSON(r.header.Config)
}

// ReadSection reads the named float64 section.
func (r *Reader) ReadSection(name string) ([]float64, error) {
	if r.closed {
		return nil, fmt.Errorf("reader is closed")
	}
	s, ok := r.header.Section(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingSection, name)
	}
	buf := make([]byte, s.Size)
	if _, err := r.file.ReadAt(buf, r.dataOffset+s.Offset); err != nil {
		return nil, fmt.Errorf("failed to read section %q: %w", name, err)
	}
	return decodeFloat64s(buf), nil
}

// Close closes the reader and the underlying file.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

// Load rebuilds a graph from a snapshot. The parameters are restored bit
// for bit together with the iteration and epoch counters and the learning
// rate. With loadUpdater the stored updater state is restored as well; a
// snapshot saved without it leaves the updater fresh.
func Load(path string, factory graph.Factory, loadUpdater bool) (*graph.Graph, error) {
	return LoadWithOptions(path, factory, loadUpdater, graph.Options{})
}

// LoadWithOptions is Load with graph options.
func LoadWithOptions(path string, factory graph.Factory, loadUpdater bool, opts graph.Options) (*graph.Graph, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	conf, err := r.Config()
	if err != nil {
		return nil, err
	}
	g, err := graph.New(conf, factory, opts)
	if err != nil {
		return nil, err
	}
	params, err := r.ReadSection(SectionParams)
	if err != nil {
		return nil, err
	}
	if err := g.Init(params, false); err != nil {
		return nil, err
	}

	h := r.Header()
	g.SetCounters(h.Training.Iteration, h.Training.Epoch)
	g.SetLearningRate(h.Training.LearningRate)
	if !loadUpdater {
		return g, nil
	}
	if _, ok := h.Section(SectionUpdater); !ok {
		return g, nil
	}
	state, err := r.ReadSection(SectionUpdater)
	if err != nil {
		return nil, err
	}
	if err := g.SetUpdaterState(state); err != nil {
		return nil, fmt.Errorf("restore updater state: %w", err)
	}
	return g, nil
}
