/*Package camera provides vendor-neutral control of scientific cameras.

The Device type is the low-level driver surface; one implementation
exists per vendor SDK, plus a simulator for testing.  Controller wraps a
Device with the capture state machine, ROI and binning management, gain
normalization, and thermal control, and is the type most programs
interact with.  The capability interfaces (PictureTaker, AreaController,
and friends) describe subsets of Controller so consumers can accept only
what they use.
*/
package camera

import (
	"context"
	"time"

	"github.jpl.nasa.gov/bdube/cameraunit/frame"
)

// ROI describes a readout window on the sensor.  Bounds are in
// unbinned sensor coordinates; Xmin/Ymin are inclusive and Xmax/Ymax
// exclusive.  A zero Xmax or Ymax means full width or height.
type ROI struct {
	Xmin int `json:"xmin"`
	Xmax int `json:"xmax"`
	Ymin int `json:"ymin"`
	Ymax int `json:"ymax"`

	// BinX and BinY are the pixel binning factors
	BinX int `json:"binX"`
	BinY int `json:"binY"`
}

// Width is the ROI width in unbinned pixels.
func (r ROI) Width() int { return r.Xmax - r.Xmin }

// Height is the ROI height in unbinned pixels.
func (r ROI) Height() int { return r.Ymax - r.Ymin }

// BinnedWidth is the width of frames read out under this ROI.
func (r ROI) BinnedWidth() int { return r.Width() / r.BinX }

// BinnedHeight is the height of frames read out under this ROI.
func (r ROI) BinnedHeight() int { return r.Height() / r.BinY }

// CaptureResult is the outcome of one capture.
type CaptureResult struct {
	// Frame holds the image; nil when Err is non-nil
	Frame *frame.Frame

	// ROI is the readout window that was in effect for the capture
	ROI ROI

	// Err is non-nil when the capture failed or was cancelled
	Err error
}

// CaptureCallback is invoked once when an asynchronous capture
// completes, on the capture worker goroutine.  It receives the
// completed frame, the readout window in effect for the capture, and
// the capture error, if any.
type CaptureCallback func(*frame.Frame, ROI, error)

// PictureTaker describes a camera which can capture images.
type PictureTaker interface {
	// Capture runs one exposure and blocks until the frame is ready.
	// Cancelling the context aborts the exposure.
	Capture(context.Context) (*frame.Frame, error)

	// CaptureAsync starts one exposure and returns immediately.  The
	// result is delivered on the returned channel and, if non-nil, to
	// the callback.  At most one capture runs at a time.
	CaptureAsync(CaptureCallback) (<-chan CaptureResult, error)

	// CancelCapture requests that an in-progress exposure abort
	CancelCapture()

	// Capturing reports whether an exposure is in progress
	Capturing() bool

	// LastFrame returns the most recently completed frame, or nil
	LastFrame() *frame.Frame

	// SetExposureTime sets the exposure time
	SetExposureTime(time.Duration) error

	// GetExposureTime gets the exposure time
	GetExposureTime() (time.Duration, error)
}

// AreaController describes a camera whose readout geometry can change.
type AreaController interface {
	// SetROI reconfigures the readout window and binning atomically;
	// on failure the prior geometry is preserved
	SetROI(ROI) error

	// GetROI retrieves the current readout window
	GetROI() (ROI, error)

	// SetBinning sets symmetric binning, retaining the full frame
	SetBinning(int) error

	// GetBinning returns the current binning factor
	GetBinning() (int, error)
}

// GainController describes a camera with adjustable analog gain and
// offset.
type GainController interface {
	// SetGain sets the gain on a normalized 0-100 scale
	SetGain(float64) error

	// GetGain gets the gain on a normalized 0-100 scale
	GetGain() (float64, error)

	// SetGainRaw and GetGainRaw work in raw device units
	SetGainRaw(int64) error
	GetGainRaw() (int64, error)

	// SetOffset and GetOffset adjust the ADC offset in device units
	SetOffset(int64) error
	GetOffset() (int64, error)
}

// ThermalManager describes a camera which can manage its thermal
// performance.
type ThermalManager interface {
	// GetTemperature gets the current sensor temperature in Celcius
	GetTemperature() (float64, error)

	// GetTemperatureSetpoint and SetTemperatureSetpoint access the
	// cooling target in Celcius
	GetTemperatureSetpoint() (float64, error)
	SetTemperatureSetpoint(float64) error

	// GetCooling and SetCooling access the TEC on/off state
	GetCooling() (bool, error)
	SetCooling(bool) error

	// GetCoolerPower gets the TEC drive level in percent
	GetCoolerPower() (float64, error)

	// GetFan and SetFan access the body fan on/off state
	GetFan() (bool, error)
	SetFan(bool) error
}

// ShutterController describes a camera with a mechanical shutter.
type ShutterController interface {
	// SetShutterOpen selects whether subsequent exposures are light
	// frames (open) or dark frames (closed)
	SetShutterOpen(bool) error

	// GetShutterOpen reports the configured shutter state
	GetShutterOpen() (bool, error)
}
