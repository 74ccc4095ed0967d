package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/born-ml/dagnet/internal/graph"
	"github.com/born-ml/dagnet/internal/tensor"
)

const safeTensorsF64 = "F64"

// SafeTensorHeader describes one tensor in a SafeTensors header.
type SafeTensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// WriteSafeTensors writes float64 tensors in SafeTensors format:
//
//	[8 bytes: header_size (uint64 LE)]
//	[header_size bytes: JSON header]
//	[tensor data: raw bytes]
//
// Tensors are written in alphabetical order by name.
func WriteSafeTensors(path string, tensors map[string]*tensor.Tensor, metadata map[string]string) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	if len(metadata) > 0 {
		header["__metadata__"] = metadata
	}
	var offset int64
	for _, name := range names {
		t := tensors[name]
		shape := make([]int64, t.Rank())
		for i := range shape {
			shape[i] = int64(t.Dim(i))
		}
		size := int64(t.Len()) * Float64Size
		header[name] = SafeTensorHeader{
			DType:       safeTensorsF64,
			Shape:       shape,
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	//nolint:gosec // G304: export path comes from the caller
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if err := binary.Write(file, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := file.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, name := range names {
		t := tensors[name]
		buf := make([]byte, t.Len()*Float64Size)
		encodeFloat64s(buf, t.Data())
		if _, err := file.Write(buf); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
	}
	return file.Close()
}

// ExportSafeTensors writes the parameters of g keyed "vertex_param".
func ExportSafeTensors(path string, g *graph.Graph) error {
	if g.Params() == nil {
		return fmt.Errorf("cannot export: %w", graph.ErrNotInitialized)
	}
	return WriteSafeTensors(path, g.ParamTable(), map[string]string{"format": "dagnet"})
}

// ReadSafeTensors reads a float64 SafeTensors file.
func ReadSafeTensors(path string) (map[string]*tensor.Tensor, error) {
	//nolint:gosec // G304: path comes from the caller
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var headerSize uint64
	if err := binary.Read(file, binary.LittleEndian, &headerSize); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, ErrHeaderTooLarge
	}
	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(file, headerJSON); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}

	out := make(map[string]*tensor.Tensor, len(raw))
	for name, msg := range raw {
		if name == "__metadata__" {
			continue
		}
		var h SafeTensorHeader
		if err := json.Unmarshal(msg, &h); err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		if h.DType != safeTensorsF64 {
			return nil, fmt.Errorf("tensor %s: unsupported dtype %s", name, h.DType)
		}
		start, end := h.DataOffsets[0], h.DataOffsets[1]
		if start < 0 || end < start || end > int64(len(data)) {
			return nil, &ValidationError{
				Type:    "out_of_bounds",
				Section: name,
				Details: fmt.Sprintf("offsets [%d, %d] outside %d data bytes", start, end, len(data)),
			}
		}
		shape := make(tensor.Shape, len(h.Shape))
		for i, d := range h.Shape {
			shape[i] = int(d)
		}
		t, err := tensor.New(shape, decodeFloat64s(data[start:end]))
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		out[name] = t
	}
	return out, nil
}
