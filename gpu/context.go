package gpu

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/openfluke/webgpu/wgpu"
)

// ErrNoAdapter is returned when no WebGPU adapter could be acquired
var ErrNoAdapter = errors.New("gpu unavailable: no WebGPU adapter")

// Context holds one WebGPU device. Create it once and hand it to every consumer;
// Release it when the last consumer is done.
type Context struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue

	mu       sync.Mutex
	released bool
}

// NewContext acquires an adapter and device, preferring a discrete NVIDIA adapter,
// then high performance, then low power, then the default.
func NewContext() (*Context, error) {
	c := &Context{}
	c.Instance = wgpu.CreateInstance(nil)
	if c.Instance == nil {
		return nil, fmt.Errorf("%w: failed to create WebGPU instance", ErrNoAdapter)
	}

	// Try to find NVIDIA explicitly via EnumerateAdapters
	for _, a := range c.Instance.EnumerateAdapters(nil) {
		info := a.GetInfo()
		if strings.Contains(strings.ToLower(info.Name), "nvidia") ||
			strings.Contains(strings.ToLower(info.VendorName), "nvidia") {
			c.Adapter = a
			break
		}
	}

	var initErr error
	for _, opts := range []*wgpu.RequestAdapterOptions{
		{PowerPreference: wgpu.PowerPreferenceHighPerformance},
		{PowerPreference: wgpu.PowerPreferenceLowPower},
		nil,
	} {
		if c.Adapter != nil {
			break
		}
		c.Adapter, initErr = c.Instance.RequestAdapter(opts)
	}
	if c.Adapter == nil {
		c.Instance.Release()
		return nil, fmt.Errorf("%w: all adapter attempts failed: %v", ErrNoAdapter, initErr)
	}

	var err error
	c.Device, err = c.Adapter.RequestDevice(nil)
	if err != nil {
		c.Adapter.Release()
		c.Instance.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}
	c.Queue = c.Device.GetQueue()
	if c.Queue == nil {
		c.Release()
		return nil, fmt.Errorf("WebGPU queue not initialized")
	}

	return c, nil
}

// Release frees the device, adapter and instance. Safe to call more than once.
func (c *Context) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.released = true
	if c.Queue != nil {
		c.Queue.Release()
	}
	if c.Device != nil {
		c.Device.Release()
	}
	if c.Adapter != nil {
		c.Adapter.Release()
	}
	if c.Instance != nil {
		c.Instance.Release()
	}
}
