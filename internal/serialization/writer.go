package serialization

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/born-ml/dagnet/internal/graph"
)

// Vector is a named float64 section to be written.
type Vector struct {
	Name   string
	Values []float64
}

// Writer writes snapshots in .dagn format.
type Writer struct {
	file   *os.File
	closed bool
}

// NewWriter creates a new .dagn file writer.
func NewWriter(path string) (*Writer, error) {
	//nolint:gosec // G304: snapshot path comes from the caller
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return &Writer{file: file}, nil
}

// Write lays out the vectors as 64-byte aligned sections, fills in the
// section table of header and writes the whole snapshot.
func (w *Writer) Write(header Header, vectors []Vector) error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}

	header.FormatVersion = FormatVersion
	header.Sections = make([]Section, 0, len(vectors))
	var dataSize int64
	for _, v := range vectors {
		if err := ValidateSectionName(v.Name); err != nil {
			return err
		}
		dataSize += padding(dataSize)
		size := int64(len(v.Values)) * Float64Size
		header.Sections = append(header.Sections, Section{
			Name:   v.Name,
			DType:  DTypeFloat64,
			Length: len(v.Values),
			Offset: dataSize,
			Size:   size,
		})
		dataSize += size
	}

	data := make([]byte, dataSize)
	for i, v := range vectors {
		s := header.Sections[i]
		encodeFloat64s(data[s.Offset:s.Offset+s.Size], v.Values)
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	flags := uint32(0)
	if _, ok := header.Section(SectionUpdater); ok {
		flags |= FlagHasUpdater
	}
	if len(header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	fixed := fixedHeader{
		version:    FormatVersion,
		flags:      flags,
		headerSize: uint64(len(headerJSON)),
		//nolint:gosec // G115: dataSize is non-negative
		dataSize: uint64(dataSize),
		checksum: ComputeChecksum(data),
	}

	if _, err := w.file.Write(fixed.encode()); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := w.file.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if pad := padding(FixedHeaderSize + int64(len(headerJSON))); pad > 0 {
		if _, err := w.file.Write(make([]byte, pad)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}
	if _, err := w.file.Write(data); err != nil {
		return fmt.Errorf("failed to write data section: %w", err)
	}
	return nil
}

// Close closes the writer and the underlying file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// Save writes a snapshot of g. With saveUpdater the updater state is
// stored as well, when the updater has any.
func Save(path string, g *graph.Graph, saveUpdater bool) error {
	return SaveWithMetadata(path, g, saveUpdater, nil)
}

// SaveWithMetadata is Save with custom string metadata in the header.
func SaveWithMetadata(path string, g *graph.Graph, saveUpdater bool, metadata map[string]string) error {
	params := g.Params()
	if params == nil {
		return fmt.Errorf("cannot save: %w", graph.ErrNotInitialized)
	}
	conf := g.Config()
	confJSON, err := conf.ToJSON()
	if err != nil {
		return err
	}

	header := Header{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Config:    confJSON,
		NumParams: len(params),
		Training: TrainingState{
			Iteration:    g.Iteration(),
			Epoch:        g.Epoch(),
			Score:        g.Score(),
			LearningRate: g.LearningRate(),
			UpdaterType:  conf.Updater.Type,
		},
		Metadata: metadata,
	}
	vectors := []Vector{{Name: SectionParams, Values: params}}
	if saveUpdater {
		if state := g.UpdaterState(); len(state) > 0 {
			vectors = append(vectors, Vector{Name: SectionUpdater, Values: state})
		}
	}

	w, err := NewWriter(path)
	if err != nil {
		return err
	}
	if err := w.Write(header, vectors); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
