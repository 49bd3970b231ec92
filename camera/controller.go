package camera

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.jpl.nasa.gov/bdube/cameraunit/frame"
)

// InvalidTemperature is returned by GetTemperature when the device has
// no temperature telemetry.
const InvalidTemperature = -273.0

// DefaultExposure is applied to a freshly opened camera.
const DefaultExposure = time.Millisecond

// ROI widths must divide by 8 and heights by 2; requests are trimmed
// down to the nearest legal size.
const (
	widthStep  = 8
	heightStep = 2
)

// Capture status strings reported by Status.
const (
	StatusIdle     = "Idle"
	StatusExposing = "Exposing"
	StatusReading  = "Reading"
)

// Controller drives one camera.  It owns the capture state machine:
// at most one exposure runs at a time, settings writes are serialized
// against the exposure in progress, and the last completed frame is
// retained for preview, statistics and exposure recommendation.
//
// All methods are safe for concurrent use.
type Controller struct {
	dev   Device
	props Properties

	// mu serializes all device traffic.  The capture worker holds it
	// for the full duration of an exposure, so setters block until the
	// frame is downloaded.
	mu sync.Mutex

	// roiMu guards the cached readout geometry so queries do not block
	// behind a running exposure
	roiMu sync.Mutex
	roi   ROI

	// expNs is the current exposure time in nanoseconds; atomic so
	// GetExposureTime does not block behind a running exposure
	expNs                    atomic.Int64
	minExposure, maxExposure time.Duration

	gainMin, gainMax int64

	// shutterOpen selects light vs dark frames; guarded by mu
	shutterOpen bool

	// startMu serializes capture starts against Close so a worker can
	// never be spawned after the device is released
	startMu   sync.Mutex
	capturing atomic.Bool
	cancel    atomic.Bool
	closed    atomic.Bool

	last atomic.Pointer[frame.Frame]

	statusMu sync.Mutex
	status   string

	wg sync.WaitGroup
}

// New opens dev and returns a Controller ready to capture.  The device
// is probed for its properties and control bounds, configured for
// full-frame unbinned 16-bit readout, and given a one millisecond
// starting exposure.  Any failure during bring-up is fatal; the device
// is closed and an error returned.
func New(dev Device) (*Controller, error) {
	c := &Controller{dev: dev, status: StatusIdle, shutterOpen: true}
	err := c.open()
	if err != nil {
		dev.Close()
		return nil, err
	}
	return c, nil
}

func (c *Controller) open() error {
	err := c.dev.Initialize()
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	c.props, err = c.dev.Properties()
	if err != nil {
		return fmt.Errorf("properties: %w", err)
	}
	if c.props.IsColor {
		return ErrColorSensor
	}
	if !c.props.FormatSupported(Raw16) && !c.props.FormatSupported(Raw8) {
		return fmt.Errorf("camera %s offers no raw pixel format", c.props.Name)
	}
	caps, err := c.dev.ControlCaps()
	if err != nil {
		return fmt.Errorf("control caps: %w", err)
	}
	for _, cap := range caps {
		switch cap.Control {
		case ControlExposure:
			// the device works in microseconds
			c.minExposure = time.Duration(cap.Min) * time.Microsecond
			c.maxExposure = time.Duration(cap.Max) * time.Microsecond
		case ControlGain:
			c.gainMin = cap.Min
			c.gainMax = cap.Max
		}
	}
	if c.maxExposure == 0 {
		return fmt.Errorf("camera %s reports no exposure control", c.props.Name)
	}
	err = c.dev.SetROIFormat(c.props.MaxWidth, c.props.MaxHeight, 1, c.rawFormat())
	if err != nil {
		return fmt.Errorf("set full frame: %w", err)
	}
	err = c.dev.SetStartPos(0, 0)
	if err != nil {
		return fmt.Errorf("set origin: %w", err)
	}
	c.roi = ROI{Xmax: c.props.MaxWidth, Ymax: c.props.MaxHeight, BinX: 1, BinY: 1}
	exp := DefaultExposure
	if exp < c.minExposure {
		exp = c.minExposure
	}
	if exp > c.maxExposure {
		exp = c.maxExposure
	}
	err = c.setExposureLocked(exp)
	if err != nil {
		return fmt.Errorf("set exposure: %w", err)
	}
	return nil
}

func (c *Controller) rawFormat() PixelFormat {
	if c.props.FormatSupported(Raw16) {
		return Raw16
	}
	return Raw8
}

// Properties returns the fixed characteristics of the camera.
func (c *Controller) Properties() Properties {
	return c.props
}

// Name returns the camera name reported by the device.
func (c *Controller) Name() string {
	return c.props.Name
}

// Status returns a human-readable capture state.
func (c *Controller) Status() string {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.status
}

func (c *Controller) setStatus(s string) {
	c.statusMu.Lock()
	c.status = s
	c.statusMu.Unlock()
}

// Capturing reports whether an exposure is in progress.
func (c *Controller) Capturing() bool {
	return c.capturing.Load()
}

// LastFrame returns the most recently completed frame, or nil if no
// capture has succeeded.  The frame is not reused by later captures.
func (c *Controller) LastFrame() *frame.Frame {
	return c.last.Load()
}

// Capture runs one exposure and blocks until the frame is ready.  If
// ctx is cancelled the exposure is aborted and the context's error
// returned.
func (c *Controller) Capture(ctx context.Context) (*frame.Frame, error) {
	ch, err := c.CaptureAsync(nil)
	if err != nil {
		return nil, err
	}
	select {
	case res := <-ch:
		return res.Frame, res.Err
	case <-ctx.Done():
		c.CancelCapture()
		<-ch
		return nil, ctx.Err()
	}
}

// CaptureAsync starts one exposure and returns a channel on which the
// single result will be delivered.  If cb is non-nil it is invoked with
// the result on the worker goroutine before the channel send.  Returns
// ErrCapturing if an exposure is already running.
func (c *Controller) CaptureAsync(cb CaptureCallback) (<-chan CaptureResult, error) {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.closed.Load() {
		return nil, ErrNotInitialized
	}
	if !c.capturing.CompareAndSwap(false, true) {
		return nil, ErrCapturing
	}
	c.cancel.Store(false)
	ch := make(chan CaptureResult, 1)
	c.wg.Add(1)
	go c.expose(ch, cb)
	return ch, nil
}

// CancelCapture requests that an in-progress exposure abort.  The
// pending capture completes with ErrCaptureCancelled.  Calling it with
// no capture running has no effect.
func (c *Controller) CancelCapture() {
	c.cancel.Store(true)
}

func (c *Controller) expose(ch chan<- CaptureResult, cb CaptureCallback) {
	defer c.wg.Done()
	c.mu.Lock()
	c.roiMu.Lock()
	roi := c.roi
	c.roiMu.Unlock()
	f, err := c.exposeLocked(roi)
	c.mu.Unlock()
	if err == nil {
		c.setStatus(StatusIdle)
		c.last.Store(f)
	} else {
		c.setStatus(err.Error())
	}
	// release the gate before delivery so a callback or channel
	// receiver can start the next capture immediately
	c.capturing.Store(false)
	if cb != nil {
		cb(f, roi, err)
	}
	ch <- CaptureResult{Frame: f, ROI: roi, Err: err}
}

func (c *Controller) exposeLocked(roi ROI) (*frame.Frame, error) {
	exposure := time.Duration(c.expNs.Load())
	pf := c.rawFormat()

	c.setStatus(StatusExposing)
	err := c.dev.StartExposure(!c.shutterOpen)
	if err != nil {
		return nil, fmt.Errorf("start exposure: %w", err)
	}
	interval := pollInterval(exposure)
	var st ExposureStatus
	for {
		st, err = c.dev.ExposureStatus()
		if err != nil {
			return nil, fmt.Errorf("exposure status: %w", err)
		}
		if st != ExposureWorking {
			break
		}
		if c.cancel.Load() {
			c.dev.StopExposure()
			return nil, ErrCaptureCancelled
		}
		if interval > 0 {
			time.Sleep(interval)
		}
	}
	if st != ExposureSuccess {
		return nil, fmt.Errorf("exposure ended in state %v", st)
	}

	c.setStatus(StatusReading)
	w, h := roi.BinnedWidth(), roi.BinnedHeight()
	buf := make([]byte, w*h*pf.BytesPerPixel())
	err = c.dev.ReadPixels(buf)
	if err != nil {
		return nil, fmt.Errorf("read pixels: %w", err)
	}

	meta := frame.Metadata{
		Exposure:    exposure,
		BinX:        roi.BinX,
		BinY:        roi.BinY,
		OriginX:     roi.Xmin / roi.BinX,
		OriginY:     roi.Ymin / roi.BinY,
		Temperature: c.temperatureLocked(),
		Timestamp:   uint64(time.Now().UnixMilli()),
		CameraName:  c.props.Name,
		MinGain:     int(c.gainMin),
		MaxGain:     int(c.gainMax),
	}
	meta.Gain, _, _ = c.dev.GetControl(ControlGain)
	meta.Offset, _, _ = c.dev.GetControl(ControlBrightness)
	if pf == Raw16 {
		pix := make([]uint16, w*h)
		for i := range pix {
			pix[i] = uint16(buf[2*i]) | uint16(buf[2*i+1])<<8
		}
		return frame.New(w, h, pix, meta), nil
	}
	return frame.New8Bit(w, h, buf, meta), nil
}

// Completion-poll policy.  Short exposures are busy-polled so latency
// stays near the exposure time; long exposures back off to keep USB
// traffic down.
const (
	BusyPollBelow   = time.Millisecond
	FastPollBelow   = 16 * time.Millisecond
	FastPollEvery   = time.Millisecond
	MediumPollBelow = time.Second
	MediumPollEvery = 100 * time.Millisecond
	SlowPollEvery   = time.Second
)

// pollInterval selects how often to poll the device for completion.
func pollInterval(exposure time.Duration) time.Duration {
	switch {
	case exposure < BusyPollBelow:
		return 0
	case exposure < FastPollBelow:
		return FastPollEvery
	case exposure < MediumPollBelow:
		return MediumPollEvery
	default:
		return SlowPollEvery
	}
}

// SetExposureTime sets the exposure for subsequent captures.  Values
// outside the device's bounds are rejected and the prior exposure
// stays in effect.  Blocks until any running capture finishes.
func (c *Controller) SetExposureTime(d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setExposureLocked(d)
}

func (c *Controller) setExposureLocked(d time.Duration) error {
	if d < c.minExposure || d > c.maxExposure {
		return fmt.Errorf("exposure %v outside device bounds [%v, %v]", d, c.minExposure, c.maxExposure)
	}
	err := c.dev.SetControl(ControlExposure, int64(d/time.Microsecond), false)
	if err != nil {
		return err
	}
	c.expNs.Store(int64(d))
	return nil
}

// GetExposureTime gets the exposure applied to subsequent captures.
func (c *Controller) GetExposureTime() (time.Duration, error) {
	return time.Duration(c.expNs.Load()), nil
}

// ExposureBounds returns the device's exposure limits.
func (c *Controller) ExposureBounds() (min, max time.Duration) {
	return c.minExposure, c.maxExposure
}

// SetROI reconfigures the readout window and binning.  Bounds are in
// unbinned sensor coordinates; a zero Xmax or Ymax selects the full
// sensor extent.  The binned width is trimmed down to a multiple of 8
// and the binned height to a multiple of 2.  The change is
// all-or-nothing: on any failure the previous geometry is restored and
// remains in effect.  Blocks until any running capture finishes.
func (c *Controller) SetROI(roi ROI) error {
	if roi.BinX < 1 || roi.BinY < 1 || roi.BinX != roi.BinY {
		return fmt.Errorf("unsupported binning %dx%d", roi.BinX, roi.BinY)
	}
	if !c.props.BinSupported(roi.BinX) {
		return fmt.Errorf("unsupported binning %dx%d", roi.BinX, roi.BinY)
	}
	if roi.Xmax == 0 {
		roi.Xmax = c.props.MaxWidth
	}
	if roi.Ymax == 0 {
		roi.Ymax = c.props.MaxHeight
	}
	bw := roi.Width() / roi.BinX
	bh := roi.Height() / roi.BinY
	bw -= bw % widthStep
	bh -= bh % heightStep
	if bw <= 0 || bh <= 0 || roi.Xmin < 0 || roi.Ymin < 0 {
		return fmt.Errorf("degenerate ROI %+v", roi)
	}
	roi.Xmax = roi.Xmin + bw*roi.BinX
	roi.Ymax = roi.Ymin + bh*roi.BinY
	if roi.Xmax > c.props.MaxWidth || roi.Ymax > c.props.MaxHeight {
		return fmt.Errorf("ROI %+v exceeds sensor bounds", roi)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.roiMu.Lock()
	old := c.roi
	c.roiMu.Unlock()

	err := c.dev.SetROIFormat(bw, bh, roi.BinX, c.rawFormat())
	if err != nil {
		return err
	}
	err = c.dev.SetStartPos(roi.Xmin/roi.BinX, roi.Ymin/roi.BinY)
	if err != nil {
		// roll the format back so geometry and origin stay consistent
		c.dev.SetROIFormat(old.BinnedWidth(), old.BinnedHeight(), old.BinX, c.rawFormat())
		c.dev.SetStartPos(old.Xmin/old.BinX, old.Ymin/old.BinY)
		return err
	}
	c.roiMu.Lock()
	c.roi = roi
	c.roiMu.Unlock()
	return nil
}

// GetROI retrieves the current readout window.  Never blocks behind a
// running capture.
func (c *Controller) GetROI() (ROI, error) {
	c.roiMu.Lock()
	defer c.roiMu.Unlock()
	return c.roi, nil
}

// SetBinning applies symmetric binning while retaining full sensor
// coverage.
func (c *Controller) SetBinning(bin int) error {
	return c.SetROI(ROI{BinX: bin, BinY: bin})
}

// GetBinning returns the current binning factor.
func (c *Controller) GetBinning() (int, error) {
	roi, _ := c.GetROI()
	return roi.BinX, nil
}

// SetGain sets the analog gain on a normalized 0-100 scale, mapped
// linearly onto the device's raw gain range.  Values outside [0, 100]
// are rejected and the prior gain stays in effect.
func (c *Controller) SetGain(pct float64) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("gain %f%% outside [0, 100]", pct)
	}
	raw := c.gainMin + int64(pct*float64(c.gainMax-c.gainMin)/100+0.5)
	return c.SetGainRaw(raw)
}

// GetGain gets the analog gain on a normalized 0-100 scale.
func (c *Controller) GetGain() (float64, error) {
	raw, err := c.GetGainRaw()
	if err != nil {
		return 0, err
	}
	if c.gainMax == c.gainMin {
		return 0, nil
	}
	return float64(raw-c.gainMin) * 100 / float64(c.gainMax-c.gainMin), nil
}

// SetGainRaw sets the analog gain in raw device units.
func (c *Controller) SetGainRaw(raw int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dev.SetControl(ControlGain, raw, false)
}

// GetGainRaw gets the analog gain in raw device units.
func (c *Controller) GetGainRaw() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, _, err := c.dev.GetControl(ControlGain)
	return v, err
}

// SetOffset sets the ADC offset in raw device units.
func (c *Controller) SetOffset(off int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dev.SetControl(ControlBrightness, off, false)
}

// GetOffset gets the ADC offset in raw device units.
func (c *Controller) GetOffset() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, _, err := c.dev.GetControl(ControlBrightness)
	return v, err
}

// GetTemperature gets the sensor temperature in Celcius, or
// InvalidTemperature if the device has no temperature telemetry.
func (c *Controller) GetTemperature() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.temperatureLocked(), nil
}

// the device reports tenths of a degree
func (c *Controller) temperatureLocked() float64 {
	v, _, err := c.dev.GetControl(ControlTemperature)
	if err != nil {
		return InvalidTemperature
	}
	return float64(v) / 10
}

// GetTemperatureSetpoint gets the cooling target in Celcius.
func (c *Controller) GetTemperatureSetpoint() (float64, error) {
	if !c.props.HasCooler {
		return 0, ErrNoCooler
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, _, err := c.dev.GetControl(ControlTargetTemp)
	return float64(v), err
}

// SetTemperatureSetpoint sets the cooling target in Celcius.
func (c *Controller) SetTemperatureSetpoint(t float64) error {
	if !c.props.HasCooler {
		return ErrNoCooler
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dev.SetControl(ControlTargetTemp, int64(t), false)
}

// GetCooling queries whether the TEC is on.
func (c *Controller) GetCooling() (bool, error) {
	if !c.props.HasCooler {
		return false, ErrNoCooler
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, _, err := c.dev.GetControl(ControlCoolerOn)
	return v != 0, err
}

// SetCooling switches the TEC on or off.
func (c *Controller) SetCooling(on bool) error {
	if !c.props.HasCooler {
		return ErrNoCooler
	}
	var v int64
	if on {
		v = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dev.SetControl(ControlCoolerOn, v, false)
}

// GetCoolerPower gets the TEC drive level in percent.
func (c *Controller) GetCoolerPower() (float64, error) {
	if !c.props.HasCooler {
		return 0, ErrNoCooler
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, _, err := c.dev.GetControl(ControlCoolerPowerPercent)
	return float64(v), err
}

// GetFan queries whether the body fan is on.
func (c *Controller) GetFan() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, _, err := c.dev.GetControl(ControlFanOn)
	return v != 0, err
}

// SetFan switches the body fan on or off.
func (c *Controller) SetFan(on bool) error {
	var v int64
	if on {
		v = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dev.SetControl(ControlFanOn, v, false)
}

// SetShutterOpen selects whether subsequent captures are light frames
// (open) or dark frames (closed).
func (c *Controller) SetShutterOpen(open bool) error {
	if !c.props.HasShutter {
		return ErrNoShutter
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutterOpen = open
	return nil
}

// GetShutterOpen reports the configured shutter state.
func (c *Controller) GetShutterOpen() (bool, error) {
	if !c.props.HasShutter {
		return false, ErrNoShutter
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutterOpen, nil
}

// OptimumExposure recommends the exposure and binning for the next
// capture from the last completed frame.
func (c *Controller) OptimumExposure(o frame.ExposureOptions) (time.Duration, int, error) {
	f := c.last.Load()
	if f == nil {
		return 0, 0, frame.ErrNoData
	}
	exp, bin := f.OptimumExposure(o)
	return exp, bin, nil
}

// Close aborts any running capture, waits for the worker to finish and
// releases the device.  The Controller may not be used afterward.
func (c *Controller) Close() error {
	c.startMu.Lock()
	if !c.closed.CompareAndSwap(false, true) {
		c.startMu.Unlock()
		return nil
	}
	c.CancelCapture()
	c.startMu.Unlock()
	c.wg.Wait()
	return c.dev.Close()
}
