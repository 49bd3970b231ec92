package camera

// Control identifies an adjustable device parameter.  The values mirror
// the vendor SDK's control enumeration.
type Control int

// Controls understood by Device implementations.  Not every camera
// supports every control; ControlCaps reports what a device carries.
const (
	// ControlGain is the analog gain in raw device units
	ControlGain Control = iota

	// ControlExposure is the exposure time in microseconds
	ControlExposure

	// ControlGamma is the gamma correction, 1 to 100
	ControlGamma

	// ControlBrightness is the ADC offset in raw device units
	ControlBrightness

	// ControlBandwidth is the USB bandwidth overload percentage
	ControlBandwidth

	// ControlFlip is the image flip mode
	ControlFlip

	// ControlTemperature is the sensor temperature in tenths of a
	// degree Celcius, read only
	ControlTemperature

	// ControlHardwareBin selects on-chip binning over software binning
	ControlHardwareBin

	// ControlHighSpeedMode enables the fast readout mode
	ControlHighSpeedMode

	// ControlCoolerPowerPercent is the TEC drive level, read only
	ControlCoolerPowerPercent

	// ControlTargetTemp is the cooling setpoint in degrees Celcius
	ControlTargetTemp

	// ControlCoolerOn switches the TEC on or off
	ControlCoolerOn

	// ControlMonoBin averages instead of interpolating when binning a
	// color sensor
	ControlMonoBin

	// ControlFanOn switches the body fan on or off
	ControlFanOn

	// ControlAntiDewHeater switches the window heater on or off
	ControlAntiDewHeater
)

var controlNames = map[Control]string{
	ControlGain:               "Gain",
	ControlExposure:           "Exposure",
	ControlGamma:              "Gamma",
	ControlBrightness:         "Brightness",
	ControlBandwidth:          "Bandwidth",
	ControlFlip:               "Flip",
	ControlTemperature:        "Temperature",
	ControlHardwareBin:        "HardwareBin",
	ControlHighSpeedMode:      "HighSpeedMode",
	ControlCoolerPowerPercent: "CoolerPowerPercent",
	ControlTargetTemp:         "TargetTemp",
	ControlCoolerOn:           "CoolerOn",
	ControlMonoBin:            "MonoBin",
	ControlFanOn:              "FanOn",
	ControlAntiDewHeater:      "AntiDewHeater",
}

func (c Control) String() string {
	if s, ok := controlNames[c]; ok {
		return s
	}
	return "UNKNOWN_CONTROL"
}

// ControlCap describes the range and capabilities of one control on a
// device.
type ControlCap struct {
	// Control is the parameter described
	Control Control

	// Name is the vendor's display name for the control
	Name string

	// Description is the vendor's help text
	Description string

	// Min, Max and Default are the value bounds and power-on value
	Min, Max, Default int64

	// AutoSupported is true if the device can drive this control itself
	AutoSupported bool

	// Writable is false for read-only telemetry such as temperature
	Writable bool
}

// PixelFormat is the wire format of frames read from a device.
type PixelFormat int

// Pixel formats in the vendor SDK's enumeration order.
const (
	Raw8 PixelFormat = iota
	RGB24
	Raw16
	Y8
)

// BytesPerPixel returns the size of one pixel in this format.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case RGB24:
		return 3
	case Raw16:
		return 2
	default:
		return 1
	}
}

// ExposureStatus is the device-side state of a snapshot exposure.
type ExposureStatus int

// Exposure states in the vendor SDK's enumeration order.
const (
	// ExposureIdle means no exposure is running and none has completed
	ExposureIdle ExposureStatus = iota

	// ExposureWorking means an exposure is integrating or downloading
	ExposureWorking

	// ExposureSuccess means a frame is ready to be read
	ExposureSuccess

	// ExposureFailed means the exposure aborted on the device
	ExposureFailed
)

func (s ExposureStatus) String() string {
	switch s {
	case ExposureIdle:
		return "Idle"
	case ExposureWorking:
		return "Working"
	case ExposureSuccess:
		return "Success"
	case ExposureFailed:
		return "Failed"
	default:
		return "UNKNOWN_STATUS"
	}
}

// Properties are the fixed characteristics of a camera, valid for the
// life of the connection.
type Properties struct {
	// Name is the camera model and serial as reported by the device
	Name string

	// ID is the index of the camera on the host
	ID int

	// MaxWidth and MaxHeight are the full sensor dimensions in
	// unbinned pixels
	MaxWidth, MaxHeight int

	// IsColor is true for sensors with a Bayer matrix
	IsColor bool

	// HasShutter is true for cameras with a mechanical shutter
	HasShutter bool

	// HasCooler is true for cameras with a TEC
	HasCooler bool

	// SupportedBins lists the legal binning factors in ascending order
	SupportedBins []int

	// SupportedFormats lists the frame formats the device can stream
	SupportedFormats []PixelFormat

	// ElecPerADU is the sensor gain in electrons per count
	ElecPerADU float64

	// BitDepth is the ADC depth in bits
	BitDepth int

	// PixelSizeMicrons is the photosite pitch
	PixelSizeMicrons float64
}

// BinSupported returns true if the device can bin by the given factor.
func (p Properties) BinSupported(bin int) bool {
	for _, b := range p.SupportedBins {
		if b == bin {
			return true
		}
	}
	return false
}

// FormatSupported returns true if the device can stream the given
// pixel format.
func (p Properties) FormatSupported(pf PixelFormat) bool {
	for _, f := range p.SupportedFormats {
		if f == pf {
			return true
		}
	}
	return false
}

// Device is the low-level driver surface for one camera.  It mirrors
// the vendor SDK's snapshot-mode API; implementations translate SDK
// status codes into DeviceError values.
//
// Device implementations need not be safe for concurrent use; the
// Controller serializes all access.
type Device interface {
	// Initialize opens the device and prepares it for use
	Initialize() error

	// Close releases the device.  The Device may not be used afterward.
	Close() error

	// Properties returns the fixed characteristics of the camera
	Properties() (Properties, error)

	// ControlCaps enumerates the adjustable controls and their bounds
	ControlCaps() ([]ControlCap, error)

	// GetControl reads a control's current value and whether the
	// device is driving it automatically
	GetControl(Control) (value int64, auto bool, err error)

	// SetControl writes a control value, or hands the control to the
	// device when auto is true
	SetControl(c Control, value int64, auto bool) error

	// SetROIFormat configures the readout geometry.  Width and height
	// are in binned pixels.
	SetROIFormat(width, height, bin int, pf PixelFormat) error

	// ROIFormat reads back the current readout geometry
	ROIFormat() (width, height, bin int, pf PixelFormat, err error)

	// SetStartPos moves the ROI origin, in binned pixels from the
	// top-left of the sensor
	SetStartPos(x, y int) error

	// StartPos reads back the ROI origin
	StartPos() (x, y int, err error)

	// StartExposure begins a single snapshot exposure.  Dark closes
	// the mechanical shutter on cameras that have one.
	StartExposure(dark bool) error

	// StopExposure aborts an exposure in progress
	StopExposure() error

	// ExposureStatus reports the state of the snapshot state machine
	ExposureStatus() (ExposureStatus, error)

	// ReadPixels copies the completed frame into buf, which must be
	// large enough for the current ROI and pixel format
	ReadPixels(buf []byte) error
}
