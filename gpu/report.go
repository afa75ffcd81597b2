package gpu

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openfluke/webgpu/wgpu"
)

// Report is a portable summary of the adapter a Context runs on
type Report struct {
	Name                        string `json:"name"`
	Vendor                      string `json:"vendor"`
	Backend                     string `json:"backend"`
	AdapterType                 string `json:"adapter_type"`
	Driver                      string `json:"driver"`
	VendorID                    string `json:"vendor_id_hex"`
	DeviceID                    string `json:"device_id_hex"`
	MaxBufferSize               uint64 `json:"max_buffer_size"`
	MaxStorageBufferBindingSize uint64 `json:"max_storage_buffer_binding_size"`
	MaxWorkgroupsPerDimension   uint32 `json:"max_compute_workgroups_per_dimension"`
}

// Report describes the context's adapter and the limits that bound conv buffer sizes
func (c *Context) Report() Report {
	info := c.Adapter.GetInfo()
	// Device limits, not adapter limits: they are what dispatches are validated against
	limits := c.Device.GetLimits()
	return Report{
		Name:                        strings.TrimSpace(info.Name),
		Vendor:                      strings.TrimSpace(info.VendorName),
		Backend:                     info.BackendType.String(),
		AdapterType:                 info.AdapterType.String(),
		Driver:                      strings.TrimSpace(info.DriverDescription),
		VendorID:                    fmt.Sprintf("0x%04x", info.VendorId),
		DeviceID:                    fmt.Sprintf("0x%04x", info.DeviceId),
		MaxBufferSize:               limits.Limits.MaxBufferSize,
		MaxStorageBufferBindingSize: limits.Limits.MaxStorageBufferBindingSize,
		MaxWorkgroupsPerDimension:   limits.Limits.MaxComputeWorkgroupsPerDimension,
	}
}

// WorkgroupSize is the invocation count of every compute kernel in this package
const WorkgroupSize = 256

// defaultMaxWorkgroups is the WebGPU default for maxComputeWorkgroupsPerDimension
const defaultMaxWorkgroups = 65535

// ErrDispatchTooLarge is returned when a kernel needs more workgroups than the device allows
var ErrDispatchTooLarge = errors.New("dispatch exceeds workgroup limits")

// DispatchSize lays total invocations out as an x*y grid of workgroups, each side within
// maxPerDim. Kernels fold gid.y back into a flat index using num_workgroups.x.
func DispatchSize(total int, maxPerDim uint32) (x, y uint32, err error) {
	if maxPerDim == 0 || maxPerDim == wgpu.LimitU32Undefined {
		maxPerDim = defaultMaxWorkgroups
	}
	if total < 1 {
		return 1, 1, nil
	}
	groups := uint64((total + WorkgroupSize - 1) / WorkgroupSize)
	limit := uint64(maxPerDim)
	if groups <= limit {
		return uint32(groups), 1, nil
	}
	rows := (groups + limit - 1) / limit
	if rows > limit {
		return 0, 0, fmt.Errorf("%w: %d invocations need %d workgroups, limit %d per dimension", ErrDispatchTooLarge, total, groups, maxPerDim)
	}
	return uint32(limit), uint32(rows), nil
}

// FitsDispatch reports whether total invocations can be dispatched on this adapter
func (r Report) FitsDispatch(total int) bool {
	_, _, err := DispatchSize(total, r.MaxWorkgroupsPerDimension)
	return err == nil
}

// FitsBuffer reports whether n float32 values fit in one storage binding
func (r Report) FitsBuffer(n int) bool {
	size := uint64(n) * 4
	return size <= r.MaxBufferSize && size <= r.MaxStorageBufferBindingSize
}

func (r Report) String() string {
	return fmt.Sprintf("%s (%s, %s backend, %s)", r.Name, r.Vendor, r.Backend, r.AdapterType)
}
