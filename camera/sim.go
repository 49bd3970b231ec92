package camera

import (
	"sync"
	"time"
)

// SimFlux is the default synthetic photon rate of a SimDevice, in
// counts per second per binned pixel at bin 1.
const SimFlux = 1e6

// SimDevice emulates a monochrome snapshot camera in memory.  Frames
// are synthesized deterministically from the exposure time, binning and
// a configurable flux, so tests can predict pixel values.  The Fail*
// fields inject faults at specific points of the device API.
//
// The zero value is not usable; construct with NewSim.
type SimDevice struct {
	mu sync.Mutex

	props    Properties
	caps     []ControlCap
	controls map[Control]simControl

	width, height, bin int
	pf                 PixelFormat
	x, y               int

	status   ExposureStatus
	dark     bool
	deadline time.Time

	initialized bool

	// Flux scales the synthesized signal, counts per second
	Flux float64

	// fault injection
	FailInitialize bool
	FailROI        bool
	FailStartPos   bool
	FailStart      bool
	ReportIdle     bool
}

type simControl struct {
	value int64
	auto  bool
}

// NewSim returns a simulated 64x48 monochrome camera with a cooler, a
// mechanical shutter, and bins 1, 2 and 4.
func NewSim() *SimDevice {
	d := &SimDevice{
		props: Properties{
			Name:             "SimCam-64",
			MaxWidth:         64,
			MaxHeight:        48,
			HasShutter:       true,
			HasCooler:        true,
			SupportedBins:    []int{1, 2, 4},
			SupportedFormats: []PixelFormat{Raw8, Raw16},
			ElecPerADU:       0.8,
			BitDepth:         16,
			PixelSizeMicrons: 3.8,
		},
		caps: []ControlCap{
			{Control: ControlGain, Name: "Gain", Min: 0, Max: 510, Default: 210, Writable: true, AutoSupported: true},
			{Control: ControlExposure, Name: "Exposure", Min: 32, Max: 2000000000, Default: 10000, Writable: true, AutoSupported: true},
			{Control: ControlBrightness, Name: "Brightness", Min: 0, Max: 255, Default: 8, Writable: true},
			{Control: ControlTemperature, Name: "Temperature", Min: -500, Max: 1000, Default: 251},
			{Control: ControlTargetTemp, Name: "TargetTemp", Min: -40, Max: 30, Default: 0, Writable: true},
			{Control: ControlCoolerOn, Name: "CoolerOn", Min: 0, Max: 1, Default: 0, Writable: true},
			{Control: ControlCoolerPowerPercent, Name: "CoolerPowerPercent", Min: 0, Max: 100, Default: 0},
			{Control: ControlFanOn, Name: "FanOn", Min: 0, Max: 1, Default: 1, Writable: true},
		},
		controls: make(map[Control]simControl),
		Flux:     SimFlux,
	}
	for _, cap := range d.caps {
		d.controls[cap.Control] = simControl{value: cap.Default}
	}
	d.width = d.props.MaxWidth
	d.height = d.props.MaxHeight
	d.bin = 1
	d.pf = Raw16
	return d
}

// Initialize opens the simulated device.
func (d *SimDevice) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailInitialize {
		return DeviceError(ErrCodeCameraRemoved)
	}
	d.initialized = true
	return nil
}

// Close releases the simulated device.
func (d *SimDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initialized = false
	return nil
}

// Properties returns the fixed characteristics of the simulated camera.
func (d *SimDevice) Properties() (Properties, error) {
	return d.props, nil
}

// ControlCaps enumerates the simulated controls.
func (d *SimDevice) ControlCaps() ([]ControlCap, error) {
	out := make([]ControlCap, len(d.caps))
	copy(out, d.caps)
	return out, nil
}

// GetControl reads a simulated control.
func (d *SimDevice) GetControl(c Control) (int64, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ctl, ok := d.controls[c]
	if !ok {
		return 0, false, DeviceError(ErrCodeInvalidControlType)
	}
	return ctl.value, ctl.auto, nil
}

// SetControl writes a simulated control.
func (d *SimDevice) SetControl(c Control, value int64, auto bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.controls[c]; !ok {
		return DeviceError(ErrCodeInvalidControlType)
	}
	d.controls[c] = simControl{value: value, auto: auto}
	return nil
}

// SetROIFormat configures the simulated readout geometry.
func (d *SimDevice) SetROIFormat(width, height, bin int, pf PixelFormat) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailROI {
		return DeviceError(ErrCodeGeneralError)
	}
	if !d.props.BinSupported(bin) || !d.props.FormatSupported(pf) {
		return DeviceError(ErrCodeInvalidImageType)
	}
	if width <= 0 || height <= 0 ||
		width*bin > d.props.MaxWidth || height*bin > d.props.MaxHeight {
		return DeviceError(ErrCodeInvalidSize)
	}
	d.width = width
	d.height = height
	d.bin = bin
	d.pf = pf
	return nil
}

// ROIFormat reads back the simulated readout geometry.
func (d *SimDevice) ROIFormat() (int, int, int, PixelFormat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width, d.height, d.bin, d.pf, nil
}

// SetStartPos moves the simulated ROI origin.
func (d *SimDevice) SetStartPos(x, y int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailStartPos {
		return DeviceError(ErrCodeOutOfBoundary)
	}
	if x < 0 || y < 0 ||
		(x+d.width)*d.bin > d.props.MaxWidth || (y+d.height)*d.bin > d.props.MaxHeight {
		return DeviceError(ErrCodeOutOfBoundary)
	}
	d.x = x
	d.y = y
	return nil
}

// StartPos reads back the simulated ROI origin.
func (d *SimDevice) StartPos() (int, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.x, d.y, nil
}

// StartExposure begins a simulated exposure which completes after the
// configured exposure time has elapsed on the wall clock.
func (d *SimDevice) StartExposure(dark bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailStart {
		return DeviceError(ErrCodeGeneralError)
	}
	if d.status == ExposureWorking {
		return DeviceError(ErrCodeExposureInProgress)
	}
	exp := time.Duration(d.controls[ControlExposure].value) * time.Microsecond
	d.dark = dark
	d.deadline = time.Now().Add(exp)
	d.status = ExposureWorking
	return nil
}

// StopExposure aborts a simulated exposure.
func (d *SimDevice) StopExposure() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status == ExposureWorking {
		d.status = ExposureFailed
	}
	return nil
}

// ExposureStatus reports the simulated snapshot state machine.
func (d *SimDevice) ExposureStatus() (ExposureStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ReportIdle {
		return ExposureIdle, nil
	}
	if d.status == ExposureWorking && !time.Now().Before(d.deadline) {
		d.status = ExposureSuccess
	}
	return d.status, nil
}

// ReadPixels synthesizes the completed frame into buf.  The signal is
// Flux times the exposure time, scaled by the binned pixel area, plus
// the offset and a per-column ramp; dark frames carry only the offset.
func (d *SimDevice) ReadPixels(buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != ExposureSuccess {
		return DeviceError(ErrCodeInvalidSequence)
	}
	need := d.width * d.height * d.pf.BytesPerPixel()
	if len(buf) < need {
		return DeviceError(ErrCodeBufferTooSmall)
	}
	exp := time.Duration(d.controls[ControlExposure].value) * time.Microsecond
	offset := d.controls[ControlBrightness].value
	base := int(d.Flux*exp.Seconds()*float64(d.bin*d.bin)) + int(offset)
	for row := 0; row < d.height; row++ {
		for col := 0; col < d.width; col++ {
			v := base + col
			if d.dark {
				v = int(offset)
			}
			if v > 0xFFFF {
				v = 0xFFFF
			}
			i := row*d.width + col
			switch d.pf {
			case Raw16:
				buf[2*i] = byte(v)
				buf[2*i+1] = byte(v >> 8)
			default:
				buf[i] = byte(v >> 8)
			}
		}
	}
	d.status = ExposureIdle
	return nil
}
