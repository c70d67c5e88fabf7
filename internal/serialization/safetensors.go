package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/lumen-ml/lumen/internal/tensor"
)

// DTypeF32 is the only dtype this package reads or writes.
const DTypeF32 = "F32"

const metadataKey = "__metadata__"

// SafeTensorInfo describes one tensor in the header.
type SafeTensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end) within the data section
}

// WriteSafeTensors writes tensors to path. Tensors are laid out in
// alphabetical order by name. The data checksum is added to metadata.
func WriteSafeTensors(path string, tensors map[string]*tensor.Tensor, metadata map[string]string) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	var size int64
	for _, name := range names {
		n := int64(tensors[name].Len()) * 4
		header[name] = SafeTensorInfo{
			DType:       DTypeF32,
			Shape:       []int(tensors[name].Shape()),
			DataOffsets: [2]int64{size, size + n},
		}
		size += n
	}

	data := make([]byte, size)
	var off int
	for _, name := range names {
		for _, v := range tensors[name].Data() {
			binary.LittleEndian.PutUint32(data[off:], math.Float32bits(v))
			off += 4
		}
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[MetadataChecksum] = ComputeChecksum(data)
	header[metadataKey] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	//nolint:gosec // G304: File path comes from user input, which is expected for model saving
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	var prefix [8]byte
	binary.LittleEndian.PutUint64(prefix[:], uint64(len(headerJSON)))
	for _, chunk := range [][]byte{prefix[:], headerJSON, data} {
		if _, err := file.Write(chunk); err != nil {
			_ = file.Close() // Best effort close on error
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return file.Close()
}

// SafeTensorsReader holds a parsed SafeTensors file in memory.
type SafeTensorsReader struct {
	metadata map[string]string
	tensors  map[string]SafeTensorInfo
	data     []byte
}

// ReadSafeTensors loads and validates the file at path. When the metadata
// carries a checksum, the data section is verified against it.
func ReadSafeTensors(path string) (*SafeTensorsReader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return ParseSafeTensors(raw)
}

// ParseSafeTensors parses an in-memory SafeTensors image.
func ParseSafeTensors(raw []byte) (*SafeTensorsReader, error) {
	if len(raw) < 8 {
		return nil, fmt.Errorf("failed to read header size: file is %d bytes", len(raw))
	}
	headerSize := binary.LittleEndian.Uint64(raw[:8])
	if headerSize > MaxHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}
	if uint64(len(raw)-8) < headerSize {
		return nil, fmt.Errorf("%w: header of %d bytes in a %d byte file", ErrOutOfBounds, headerSize, len(raw))
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw[8:8+headerSize], &fields); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	r := &SafeTensorsReader{
		tensors: make(map[string]SafeTensorInfo, len(fields)),
		data:    raw[8+headerSize:],
	}
	metas := make([]TensorMeta, 0, len(fields))
	for name, value := range fields {
		if name == metadataKey {
			if err := json.Unmarshal(value, &r.metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
			continue
		}
		var info SafeTensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tensor %s: %w", name, err)
		}
		r.tensors[name] = info
		metas = append(metas, TensorMeta{
			Name:   name,
			Offset: info.DataOffsets[0],
			Size:   info.DataOffsets[1] - info.DataOffsets[0],
		})
	}

	if err := ValidateTensorOffsets(metas, int64(len(r.data))); err != nil {
		return nil, err
	}
	if sum, ok := r.metadata[MetadataChecksum]; ok {
		if err := ValidateChecksum(r.data, sum); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Metadata returns the header metadata (nil when absent).
func (r *SafeTensorsReader) Metadata() map[string]string {
	return r.metadata
}

// TensorNames returns all tensor names in sorted order.
func (r *SafeTensorsReader) TensorNames() []string {
	names := make([]string, 0, len(r.tensors))
	for name := range r.tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TensorInfo returns the header entry for name.
func (r *SafeTensorsReader) TensorInfo(name string) (SafeTensorInfo, error) {
	info, ok := r.tensors[name]
	if !ok {
		return SafeTensorInfo{}, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}
	return info, nil
}

// Tensor decodes the named F32 tensor.
func (r *SafeTensorsReader) Tensor(name string) (*tensor.Tensor, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	if info.DType != DTypeF32 {
		return nil, fmt.Errorf("%w: tensor %s has dtype %s", ErrUnsupportedDType, name, info.DType)
	}

	shape := tensor.Shape(info.Shape)
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape for tensor %s: %w", name, err)
	}
	src := r.data[info.DataOffsets[0]:info.DataOffsets[1]]
	if len(src) != shape.NumElements()*4 {
		return nil, fmt.Errorf("%w: tensor %s holds %d bytes for shape %v", ErrOutOfBounds, name, len(src), info.Shape)
	}

	values := make([]float32, shape.NumElements())
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return tensor.FromSlice(values, shape)
}

// StateDict decodes every tensor in the file.
func (r *SafeTensorsReader) StateDict() (map[string]*tensor.Tensor, error) {
	out := make(map[string]*tensor.Tensor, len(r.tensors))
	for name := range r.tensors {
		t, err := r.Tensor(name)
		if err != nil {
			return nil, err
		}
		out[name] = t
	}
	return out, nil
}
