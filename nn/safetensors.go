package nn

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
)

// ErrMissingWeights is returned when a weight file lacks a tensor the network needs
var ErrMissingWeights = errors.New("missing weights")

// TensorInfo describes a tensor's properties
type TensorInfo struct {
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset []int  `json:"data_offsets"`
}

// LoadSafetensors reads a safetensors file and returns tensors by name
func LoadSafetensors(filepath string) (map[string][]float32, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return LoadSafetensorsFromBytes(data)
}

// LoadSafetensorsFromBytes reads safetensors data from a byte slice and returns tensors by name.
// F32, F16 and BF16 tensors are converted to float32; other dtypes are skipped.
func LoadSafetensorsFromBytes(data []byte) (map[string][]float32, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("data too short: need at least 8 bytes for header size")
	}

	// Read header size (first 8 bytes, little-endian)
	headerSize := binary.LittleEndian.Uint64(data[0:8])
	if uint64(len(data)-8) < headerSize {
		return nil, fmt.Errorf("data too short: header size %d but only %d bytes available", headerSize, len(data)-8)
	}

	var rawHeader map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+headerSize], &rawHeader); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	// Tensor data starts after header
	allData := data[8+headerSize:]

	tensors := make(map[string][]float32)
	for name, raw := range rawHeader {
		if name == "__metadata__" {
			continue
		}

		var info TensorInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, fmt.Errorf("tensor %s: bad header entry: %w", name, err)
		}
		if len(info.Offset) != 2 {
			return nil, fmt.Errorf("tensor %s: data_offsets must have 2 entries", name)
		}

		var width int
		switch info.DType {
		case "F32":
			width = 4
		case "F16", "BF16":
			width = 2
		default:
			fmt.Printf("Warning: skipping tensor %s with unsupported dtype %s\n", name, info.DType)
			continue
		}

		numElements, err := shapeElements(info.Shape, len(allData)/width)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}

		start, end := info.Offset[0], info.Offset[1]
		if start < 0 || end < start || end > len(allData) {
			return nil, fmt.Errorf("tensor %s: data_offsets [%d, %d] out of bounds for %d bytes", name, start, end, len(allData))
		}
		if end-start != numElements*width {
			return nil, fmt.Errorf("tensor %s: data_offsets span %d bytes, shape %v needs %d", name, end-start, info.Shape, numElements*width)
		}

		tensorData := make([]float32, numElements)
		for i := 0; i < numElements; i++ {
			offset := start + i*width
			switch info.DType {
			case "F32":
				tensorData[i] = math.Float32frombits(binary.LittleEndian.Uint32(allData[offset : offset+4]))
			case "F16":
				tensorData[i] = float16ToFloat32(binary.LittleEndian.Uint16(allData[offset : offset+2]))
			case "BF16":
				tensorData[i] = bfloat16ToFloat32(binary.LittleEndian.Uint16(allData[offset : offset+2]))
			}
		}

		tensors[name] = tensorData
	}

	return tensors, nil
}

// shapeElements multiplies shape dimensions, rejecting negative dims and any product above limit
func shapeElements(shape []int, limit int) (int, error) {
	n := 1
	for _, dim := range shape {
		if dim < 0 {
			return 0, fmt.Errorf("negative dimension in shape %v", shape)
		}
		if dim != 0 && n > limit/dim {
			return 0, fmt.Errorf("shape %v exceeds data size", shape)
		}
		n *= dim
	}
	if n > limit {
		return 0, fmt.Errorf("shape %v exceeds data size", shape)
	}
	return n, nil
}

// SerializeSafetensors encodes float32 tensors as an F32 safetensors blob.
// Names are written in sorted order so output is deterministic.
func SerializeSafetensors(tensors map[string][]float32, shapes map[string][]int) ([]byte, error) {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]TensorInfo, len(names))
	offset := 0
	for _, name := range names {
		shape, ok := shapes[name]
		if !ok {
			shape = []int{len(tensors[name])}
		}
		numElements := 1
		for _, dim := range shape {
			numElements *= dim
		}
		if numElements != len(tensors[name]) {
			return nil, fmt.Errorf("tensor %s: shape %v does not match %d values", name, shape, len(tensors[name]))
		}
		header[name] = TensorInfo{DType: "F32", Shape: shape, Offset: []int{offset, offset + numElements*4}}
		offset += numElements * 4
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal header: %w", err)
	}

	// Build file: [header_size (8 bytes)] [header JSON] [tensor data]
	headerSize := len(headerJSON)
	result := make([]byte, 8+headerSize+offset)
	binary.LittleEndian.PutUint64(result[0:8], uint64(headerSize))
	copy(result[8:], headerJSON)

	pos := 8 + headerSize
	for _, name := range names {
		for _, v := range tensors[name] {
			binary.LittleEndian.PutUint32(result[pos:pos+4], math.Float32bits(v))
			pos += 4
		}
	}
	return result, nil
}

// SaveSafetensors writes the network's conv weights to a safetensors file
func (n *Network) SaveSafetensors(filepath string) error {
	tensors := make(map[string][]float32)
	shapes := make(map[string][]int)
	for _, l := range n.Layers {
		if l.Type != LayerConv2D {
			continue
		}
		key := l.weightKey()
		tensors[key+".weight"] = l.Kernel
		shapes[key+".weight"] = []int{l.Filters, l.InputChannels, l.KernelSize, l.KernelSize}
		tensors[key+".bias"] = l.Bias
		shapes[key+".bias"] = []int{l.Filters}
	}
	data, err := SerializeSafetensors(tensors, shapes)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath, data, 0644)
}

// LoadWeights copies "<key>.weight" and "<key>.bias" into every conv layer.
// It must complete before the network is shared between goroutines.
func (n *Network) LoadWeights(tensors map[string][]float32) error {
	for i := range n.Layers {
		l := &n.Layers[i]
		if l.Type != LayerConv2D {
			continue
		}
		key := l.weightKey()
		kernel, ok := tensors[key+".weight"]
		if !ok {
			return fmt.Errorf("%w: %s.weight (layer %s)", ErrMissingWeights, key, l.Name)
		}
		bias, ok := tensors[key+".bias"]
		if !ok {
			return fmt.Errorf("%w: %s.bias (layer %s)", ErrMissingWeights, key, l.Name)
		}
		if len(kernel) != len(l.Kernel) || len(bias) != len(l.Bias) {
			return fmt.Errorf("layer %s: weight size mismatch: kernel %d/%d, bias %d/%d",
				l.Name, len(kernel), len(l.Kernel), len(bias), len(l.Bias))
		}
		copy(l.Kernel, kernel)
		copy(l.Bias, bias)
	}
	if n.gpu != nil {
		n.gpu.invalidate()
	}
	return nil
}

// LoadWeightsFile loads a safetensors file into the network
func (n *Network) LoadWeightsFile(filepath string) error {
	tensors, err := LoadSafetensors(filepath)
	if err != nil {
		return err
	}
	return n.LoadWeights(tensors)
}

func (c *LayerConfig) weightKey() string {
	if c.WeightKey != "" {
		return c.WeightKey
	}
	return c.Name
}

// float16ToFloat32 converts a float16 (half precision) to float32
func float16ToFloat32(f16 uint16) float32 {
	sign := uint32((f16 >> 15) & 0x1)
	exponent := uint32((f16 >> 10) & 0x1F)
	mantissa := uint32(f16 & 0x3FF)

	var f32bits uint32
	if exponent == 0 {
		if mantissa == 0 {
			// Zero
			f32bits = sign << 31
		} else {
			// Subnormal
			exponent = 1
			for (mantissa & 0x400) == 0 {
				mantissa <<= 1
				exponent--
			}
			mantissa &= 0x3FF
			f32bits = (sign << 31) | ((exponent + (127 - 15)) << 23) | (mantissa << 13)
		}
	} else if exponent == 0x1F {
		// Inf or NaN
		f32bits = (sign << 31) | (0xFF << 23) | (mantissa << 13)
	} else {
		// Normal
		f32bits = (sign << 31) | ((exponent + (127 - 15)) << 23) | (mantissa << 13)
	}

	return math.Float32frombits(f32bits)
}

// bfloat16ToFloat32 converts a bfloat16 to float32
func bfloat16ToFloat32(bf16 uint16) float32 {
	// bfloat16 is just the top 16 bits of float32
	return math.Float32frombits(uint32(bf16) << 16)
}
