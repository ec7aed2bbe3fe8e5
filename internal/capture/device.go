package capture

import (
	"context"
	"fmt"

	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/blackjack/webcam"
	"github.com/pkg/errors"
)

// fourcc 'MJPG'
const pixelFormatMJPEG webcam.PixelFormat = 0x47504A4D

// waitTimeoutSeconds bounds each V4L2 wait so cancellation is noticed.
const waitTimeoutSeconds = 1

// DeviceSource captures MJPEG frames from /dev/video<Index>.
type DeviceSource struct {
	Index    int
	Settings Settings

	cam *webcam.Webcam
}

// NewDeviceSource returns a source for the camera at index.
func NewDeviceSource(index int, s Settings) *DeviceSource {
	return &DeviceSource{Index: index, Settings: s}
}

func (d *DeviceSource) path() string {
	return fmt.Sprintf("/dev/video%d", d.Index)
}

func (d *DeviceSource) Open(ctx context.Context) error {
	cam, err := webcam.Open(d.path())
	if err != nil {
		return errors.Wrap(fmt.Errorf("%w: %w", types.ErrDeviceUnavailable, err), "Can not open device "+d.path())
	}

	formats := cam.GetSupportedFormats()
	if _, ok := formats[pixelFormatMJPEG]; !ok {
		cam.Close()
		return errors.Wrapf(types.ErrDeviceUnavailable, "%s does not support MJPEG", d.path())
	}

	if _, _, _, err := cam.SetImageFormat(pixelFormatMJPEG, uint32(d.Settings.Width), uint32(d.Settings.Height)); err != nil {
		cam.Close()
		return errors.Wrap(fmt.Errorf("%w: %w", types.ErrDeviceUnavailable, err), "Can not set image format")
	}
	if d.Settings.BufferSize > 0 {
		if err := cam.SetBufferCount(uint32(d.Settings.BufferSize)); err != nil {
			cam.Close()
			return errors.Wrap(fmt.Errorf("%w: %w", types.ErrDeviceUnavailable, err), "Can not set buffer count")
		}
	}
	if d.Settings.FPS > 0 {
		// Not every driver supports it; the camera keeps its default rate.
		_ = cam.SetFramerate(float32(d.Settings.FPS))
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return errors.Wrap(fmt.Errorf("%w: %w", types.ErrDeviceUnavailable, err), "Can not start streaming")
	}

	d.cam = cam
	return nil
}

func (d *DeviceSource) ReadFrame(ctx context.Context) (types.Frame, error) {
	if d.cam == nil {
		return types.Frame{}, errors.Wrap(types.ErrDeviceUnavailable, "device not open")
	}

	err := d.cam.WaitForFrame(waitTimeoutSeconds)
	switch err.(type) {
	case nil:
	case *webcam.Timeout:
		return types.Frame{}, ErrNoFrame
	default:
		return types.Frame{}, errors.Wrap(fmt.Errorf("%w: %w", types.ErrDeviceUnavailable, err), "Frame wait failed")
	}

	frame, err := d.cam.ReadFrame()
	if err != nil {
		return types.Frame{}, errors.Wrap(fmt.Errorf("%w: %w", types.ErrDeviceUnavailable, err), "Read frame failed")
	}
	if len(frame) == 0 {
		return types.Frame{}, ErrNoFrame
	}

	// The driver reuses its mmap buffers, so the frame must be copied out.
	data := make([]byte, len(frame))
	copy(data, frame)
	return types.Frame{Data: data}, nil
}

func (d *DeviceSource) Close() error {
	if d.cam == nil {
		return nil
	}
	cam := d.cam
	d.cam = nil
	cam.StopStreaming()
	return cam.Close()
}
