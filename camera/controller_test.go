package camera

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.jpl.nasa.gov/bdube/cameraunit/frame"
)

func newTestController(t *testing.T) (*Controller, *SimDevice) {
	t.Helper()
	dev := NewSim()
	c, err := New(dev)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c, dev
}

func TestNewProbesDevice(t *testing.T) {
	c, _ := newTestController(t)
	if c.Name() != "SimCam-64" {
		t.Errorf("expected camera name from properties, got %s", c.Name())
	}
	exp, err := c.GetExposureTime()
	if err != nil {
		t.Fatal(err)
	}
	if exp != DefaultExposure {
		t.Errorf("expected default exposure %v, got %v", DefaultExposure, exp)
	}
	roi, _ := c.GetROI()
	if roi.Width() != 64 || roi.Height() != 48 || roi.BinX != 1 {
		t.Errorf("expected full frame unbinned, got %+v", roi)
	}
}

func TestNewRejectsColor(t *testing.T) {
	dev := NewSim()
	dev.props.IsColor = true
	_, err := New(dev)
	if !errors.Is(err, ErrColorSensor) {
		t.Errorf("expected ErrColorSensor, got %v", err)
	}
}

func TestCaptureProducesFrame(t *testing.T) {
	c, _ := newTestController(t)
	for i := 0; i < 2; i++ {
		f, err := c.Capture(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if f.Width() != 64 || f.Height() != 48 {
			t.Fatalf("expected 64x48 frame, got %dx%d", f.Width(), f.Height())
		}
		s := f.Statistics()
		if s.Mean <= 0 {
			t.Error("expected light frame with non-zero signal")
		}
		if c.LastFrame() != f {
			t.Error("expected LastFrame to return the frame just captured")
		}
	}
	meta := c.LastFrame().Metadata()
	if meta.Exposure != DefaultExposure {
		t.Errorf("expected exposure in metadata, got %v", meta.Exposure)
	}
	if meta.CameraName != "SimCam-64" {
		t.Errorf("expected camera name in metadata, got %s", meta.CameraName)
	}
}

func TestCaptureBusyRejected(t *testing.T) {
	c, _ := newTestController(t)
	err := c.SetExposureTime(300 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	ch, err := c.CaptureAsync(nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.CaptureAsync(nil)
	if !errors.Is(err, ErrCapturing) {
		t.Errorf("expected ErrCapturing for overlapping capture, got %v", err)
	}
	if !c.Capturing() {
		t.Error("expected Capturing true during exposure")
	}
	res := <-ch
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if c.Capturing() {
		t.Error("expected Capturing false after completion")
	}
}

func TestCaptureCancel(t *testing.T) {
	c, _ := newTestController(t)
	err := c.SetExposureTime(2 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Capture(ctx)
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not abort the capture promptly")
	}
	if c.Capturing() {
		t.Error("expected Capturing false after cancel")
	}
}

func TestCaptureAsyncCallback(t *testing.T) {
	c, _ := newTestController(t)
	got := make(chan CaptureResult, 1)
	ch, err := c.CaptureAsync(func(f *frame.Frame, roi ROI, err error) {
		got <- CaptureResult{Frame: f, ROI: roi, Err: err}
	})
	if err != nil {
		t.Fatal(err)
	}
	viaCB := <-got
	viaCh := <-ch
	if viaCB.Frame != viaCh.Frame {
		t.Error("expected callback and channel to deliver the same frame")
	}
	if viaCB.Err != nil || viaCh.Err != nil {
		t.Errorf("unexpected errors %v %v", viaCB.Err, viaCh.Err)
	}
	if viaCB.ROI.Width() != 64 || viaCB.ROI.Height() != 48 {
		t.Errorf("expected the readout window delivered with the frame, got %+v", viaCB.ROI)
	}
}

func TestCaptureFailedStart(t *testing.T) {
	c, dev := newTestController(t)
	dev.FailStart = true
	_, err := c.Capture(context.Background())
	if err == nil {
		t.Fatal("expected error when the device refuses to start")
	}
	if c.Capturing() {
		t.Error("expected capture gate released after failure")
	}
	if c.LastFrame() != nil {
		t.Error("expected no last frame after failed capture")
	}
}

func TestCaptureDeviceIdle(t *testing.T) {
	c, dev := newTestController(t)
	dev.ReportIdle = true
	_, err := c.Capture(context.Background())
	if err == nil {
		t.Fatal("expected error when exposure never completes")
	}
}

func TestDarkFrame(t *testing.T) {
	c, _ := newTestController(t)
	err := c.SetShutterOpen(false)
	if err != nil {
		t.Fatal(err)
	}
	f, err := c.Capture(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	s := f.Statistics()
	// dark frames carry only the offset
	if s.Max != 8 || s.Min != 8 {
		t.Errorf("expected flat dark frame at the offset, got min=%d max=%d", s.Min, s.Max)
	}
}

func TestExposureOutOfBoundsRejected(t *testing.T) {
	c, _ := newTestController(t)
	err := c.SetExposureTime(time.Nanosecond)
	if err == nil {
		t.Error("expected error for exposure below the device minimum")
	}
	err = c.SetExposureTime(time.Hour)
	if err == nil {
		t.Error("expected error for exposure above the device maximum")
	}
	exp, _ := c.GetExposureTime()
	if exp != DefaultExposure {
		t.Errorf("expected exposure unchanged after rejected sets, got %v", exp)
	}
}

func TestSetROITrimsToStep(t *testing.T) {
	c, _ := newTestController(t)
	err := c.SetROI(ROI{Xmin: 0, Xmax: 30, Ymin: 0, Ymax: 31, BinX: 1, BinY: 1})
	if err != nil {
		t.Fatal(err)
	}
	roi, _ := c.GetROI()
	if roi.Width() != 24 {
		t.Errorf("expected width trimmed to 24, got %d", roi.Width())
	}
	if roi.Height() != 30 {
		t.Errorf("expected height trimmed to 30, got %d", roi.Height())
	}
}

func TestSetROISubWindowBinned(t *testing.T) {
	c, dev := newTestController(t)
	err := c.SetROI(ROI{Xmin: 16, Xmax: 48, Ymin: 8, Ymax: 40, BinX: 2, BinY: 2})
	if err != nil {
		t.Fatal(err)
	}
	// the device works in binned units
	w, h, bin, _, _ := dev.ROIFormat()
	if w != 16 || h != 16 || bin != 2 {
		t.Errorf("expected 16x16 bin 2 at the device, got %dx%d bin %d", w, h, bin)
	}
	x, y, _ := dev.StartPos()
	if x != 8 || y != 4 {
		t.Errorf("expected binned origin (8, 4), got (%d, %d)", x, y)
	}
	f, err := c.Capture(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	meta := f.Metadata()
	if meta.OriginX != 8 || meta.OriginY != 4 {
		t.Errorf("expected binned origin in metadata, got (%d, %d)", meta.OriginX, meta.OriginY)
	}
}

func TestSetROIUnsupportedBin(t *testing.T) {
	c, _ := newTestController(t)
	before, _ := c.GetROI()
	err := c.SetROI(ROI{Xmax: 32, Ymax: 24, BinX: 3, BinY: 3})
	if err == nil {
		t.Fatal("expected error for unsupported bin")
	}
	after, _ := c.GetROI()
	if before != after {
		t.Error("expected geometry unchanged after rejected bin")
	}
}

func TestSetROIRestoreOnFailure(t *testing.T) {
	c, dev := newTestController(t)
	dev.FailStartPos = true
	err := c.SetROI(ROI{Xmin: 8, Xmax: 40, Ymin: 4, Ymax: 28, BinX: 1, BinY: 1})
	if err == nil {
		t.Fatal("expected error when origin move fails")
	}
	roi, _ := c.GetROI()
	if roi.Width() != 64 || roi.Height() != 48 || roi.Xmin != 0 {
		t.Errorf("expected full frame preserved, got %+v", roi)
	}
	// the device geometry must be rolled back too
	w, h, _, _, _ := dev.ROIFormat()
	if w != 64 || h != 48 {
		t.Errorf("expected device geometry restored to 64x48, got %dx%d", w, h)
	}
}

func TestSetBinningScalesROI(t *testing.T) {
	c, _ := newTestController(t)
	err := c.SetBinning(2)
	if err != nil {
		t.Fatal(err)
	}
	roi, _ := c.GetROI()
	// bounds stay in unbinned sensor coordinates
	if roi.Width() != 64 || roi.Height() != 48 || roi.BinX != 2 {
		t.Errorf("expected full sensor at bin 2, got %+v", roi)
	}
	if roi.BinnedWidth() != 32 || roi.BinnedHeight() != 24 {
		t.Errorf("expected 32x24 readout at bin 2, got %dx%d", roi.BinnedWidth(), roi.BinnedHeight())
	}
	f, err := c.Capture(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if f.Width() != 32 || f.Height() != 24 {
		t.Errorf("expected binned frame 32x24, got %dx%d", f.Width(), f.Height())
	}
	if f.Metadata().BinX != 2 {
		t.Errorf("expected bin recorded in metadata, got %d", f.Metadata().BinX)
	}
}

func TestGainNormalization(t *testing.T) {
	c, _ := newTestController(t)
	err := c.SetGain(50)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := c.GetGainRaw()
	if err != nil {
		t.Fatal(err)
	}
	if raw != 255 {
		t.Errorf("expected 50%% of [0, 510] to be 255, got %d", raw)
	}
	pct, err := c.GetGain()
	if err != nil {
		t.Fatal(err)
	}
	if pct != 50 {
		t.Errorf("expected round trip to 50, got %f", pct)
	}
	err = c.SetGain(200)
	if err == nil {
		t.Error("expected error for gain above 100%")
	}
	raw, _ = c.GetGainRaw()
	if raw != 255 {
		t.Errorf("expected gain unchanged after rejected set, got %d", raw)
	}
}

func TestTemperature(t *testing.T) {
	c, _ := newTestController(t)
	temp, err := c.GetTemperature()
	if err != nil {
		t.Fatal(err)
	}
	// the sim reports 251 tenths
	if temp != 25.1 {
		t.Errorf("expected 25.1C, got %f", temp)
	}
}

func TestCooling(t *testing.T) {
	c, _ := newTestController(t)
	err := c.SetCooling(true)
	if err != nil {
		t.Fatal(err)
	}
	on, err := c.GetCooling()
	if err != nil {
		t.Fatal(err)
	}
	if !on {
		t.Error("expected cooler on")
	}
	err = c.SetTemperatureSetpoint(-10)
	if err != nil {
		t.Fatal(err)
	}
	sp, err := c.GetTemperatureSetpoint()
	if err != nil {
		t.Fatal(err)
	}
	if sp != -10 {
		t.Errorf("expected setpoint -10, got %f", sp)
	}
}

func TestCloseRacingCaptureStart(t *testing.T) {
	c, _ := newTestController(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			ch, err := c.CaptureAsync(nil)
			if errors.Is(err, ErrNotInitialized) {
				return
			}
			if err != nil {
				continue
			}
			<-ch
		}
	}()
	time.Sleep(20 * time.Millisecond)
	err := c.Close()
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("capture loop kept running after Close")
	}
	_, err = c.CaptureAsync(nil)
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized after Close, got %v", err)
	}
}

func TestCloseJoinsWorker(t *testing.T) {
	c, _ := newTestController(t)
	err := c.SetExposureTime(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.CaptureAsync(nil)
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not join the capture worker")
	}
	_, err = c.CaptureAsync(nil)
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized after Close, got %v", err)
	}
}
