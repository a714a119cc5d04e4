package playback

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// Device drives a malgo playback device from a Scheduler. The device pulls
// audio through Scheduler.Fill on its data callback; silence is emitted
// whenever nothing is due.
type Device struct {
	sched *Scheduler

	mctx   *malgo.AllocatedContext
	device *malgo.Device

	mu     sync.Mutex
	closed bool

	// onOutput is invoked after each callback that produced audible audio,
	// so the capture side can arm its echo guard.
	onOutput func()
}

// OpenDevice acquires the default output device and starts draining the
// scheduler. onOutput may be nil.
func OpenDevice(sched *Scheduler, onOutput func()) (*Device, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("playback: init context: %w", err)
	}

	d := &Device{sched: sched, mctx: mctx, onOutput: onOutput}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(sched.cfg.Channels)
	deviceConfig.SampleRate = uint32(sched.cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	onSend := func(pOutput, _ []byte, frameCount uint32) {
		if frameCount == 0 || pOutput == nil {
			return
		}
		if d.sched.Fill(pOutput) > 0 && d.onOutput != nil {
			d.onOutput()
		}
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSend})
	if err != nil {
		mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("playback: init device: %w", err)
	}
	d.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("playback: start device: %w", err)
	}

	return d, nil
}

// Close releases the output device. Safe to call more than once.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	if d.device != nil {
		d.device.Uninit()
	}
	if d.mctx != nil {
		d.mctx.Uninit()
		d.mctx.Free()
	}
	return nil
}
