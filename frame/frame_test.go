package frame_test

import (
	"testing"
	"time"

	"github.jpl.nasa.gov/bdube/cameraunit/frame"
)

func uniform(width, height int, value uint16) *frame.Frame {
	pix := make([]uint16, width*height)
	for i := range pix {
		pix[i] = value
	}
	return frame.New(width, height, pix, frame.Metadata{})
}

func TestStatisticsEmpty(t *testing.T) {
	f := &frame.Frame{}
	s := f.Statistics()
	if s.Min != 0 || s.Max != 0 || s.Mean != 0 || s.StdDev != 0 {
		t.Errorf("expected all-zero stats from an empty frame, got %+v", s)
	}
}

func TestStatisticsUniform(t *testing.T) {
	f := uniform(4, 4, 100)
	s := f.Statistics()
	if s.Min != 100 || s.Max != 100 {
		t.Errorf("expected min=max=100, got min=%d max=%d", s.Min, s.Max)
	}
	if s.Mean != 100 {
		t.Errorf("expected mean 100, got %f", s.Mean)
	}
	if s.StdDev != 0 {
		t.Errorf("expected zero stddev, got %f", s.StdDev)
	}
}

func TestStatisticsKnown(t *testing.T) {
	f := frame.New(2, 1, []uint16{100, 200}, frame.Metadata{})
	s := f.Statistics()
	if s.Min != 100 || s.Max != 200 {
		t.Errorf("expected min 100 max 200, got min=%d max=%d", s.Min, s.Max)
	}
	if s.Mean != 150 {
		t.Errorf("expected mean 150, got %f", s.Mean)
	}
	// sample stddev of {100, 200} with N-1 divisor
	expected := 70.71067811865476
	if diff := s.StdDev - expected; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected stddev %f, got %f", expected, s.StdDev)
	}
}

func TestNewBadDimensions(t *testing.T) {
	f := frame.New(-1, 4, nil, frame.Metadata{})
	if f.HasData() {
		t.Error("expected no data for negative width")
	}
	f = frame.New(4, 4, make([]uint16, 3), frame.Metadata{})
	if f.HasData() {
		t.Error("expected no data for undersized source")
	}
}

func TestNew8BitPromotion(t *testing.T) {
	f := frame.New8Bit(2, 1, []byte{0x80, 0xFF}, frame.Metadata{})
	pix := f.Data()
	if pix[0] != 0x8000 {
		t.Errorf("expected mid-scale 8-bit pixel to promote to 0x8000, got %#x", pix[0])
	}
	if pix[1] != frame.Saturated {
		t.Errorf("expected saturated 8-bit pixel to promote to 0xFFFF, got %#x", pix[1])
	}
}

func TestCopyFromSelfNoOp(t *testing.T) {
	f := uniform(4, 4, 7)
	f.CopyFrom(f)
	if !f.HasData() || f.Width() != 4 {
		t.Error("self copy mutated the frame")
	}
}

func TestCopyFromDeep(t *testing.T) {
	src := uniform(4, 2, 9)
	src.AddExtended("OBSERVER", "someone")
	dst := &frame.Frame{}
	dst.CopyFrom(src)
	src.Clear()
	if !dst.HasData() || dst.Width() != 4 || dst.Height() != 2 {
		t.Fatalf("copy did not survive source clear: %dx%d", dst.Width(), dst.Height())
	}
	if dst.Metadata().Extended["OBSERVER"] != "someone" {
		t.Error("extended metadata not copied")
	}
}

func TestClear(t *testing.T) {
	f := uniform(4, 4, 1)
	f.Clear()
	if f.HasData() || f.Width() != 0 || f.Height() != 0 {
		t.Error("clear did not empty the frame")
	}
}

func TestAddSaturates(t *testing.T) {
	a := uniform(2, 2, 0x9000)
	b := uniform(2, 2, 0x9000)
	a.Add(b)
	for _, v := range a.Data() {
		if v != frame.Saturated {
			t.Errorf("expected clamped sum 0xFFFF, got %#x", v)
		}
	}
}

func TestAddSumsExposure(t *testing.T) {
	a := frame.New(2, 2, nil, frame.Metadata{Exposure: 10 * time.Millisecond})
	b := frame.New(2, 2, nil, frame.Metadata{Exposure: 15 * time.Millisecond})
	a.Add(b)
	if exp := a.Metadata().Exposure; exp != 25*time.Millisecond {
		t.Errorf("expected summed exposure 25ms, got %v", exp)
	}
}

func TestAddMismatchNoOp(t *testing.T) {
	a := uniform(2, 2, 5)
	b := uniform(4, 4, 5)
	a.Add(b)
	if a.Width() != 2 || a.Data()[0] != 5 {
		t.Error("mismatched add mutated the destination")
	}
}

func TestAddIntoEmpty(t *testing.T) {
	a := &frame.Frame{}
	b := uniform(2, 2, 5)
	a.Add(b)
	if !a.HasData() || a.Data()[0] != 5 {
		t.Error("adding into an empty frame should behave as a copy")
	}
}

func TestBinIdentity(t *testing.T) {
	f := uniform(4, 4, 100)
	f.Bin(1, 1)
	if f.Width() != 4 || f.Height() != 4 || f.Data()[0] != 100 {
		t.Error("1x1 bin should be the identity")
	}
}

func TestBin2x2(t *testing.T) {
	f := uniform(4, 4, 100)
	f.Bin(2, 2)
	if f.Width() != 2 || f.Height() != 2 {
		t.Fatalf("expected 2x2 result, got %dx%d", f.Width(), f.Height())
	}
	for _, v := range f.Data() {
		if v != 400 {
			t.Errorf("expected block sum 400, got %d", v)
		}
	}
}

func TestBinSaturates(t *testing.T) {
	f := uniform(2, 2, 0x9000)
	f.Bin(2, 2)
	if v := f.Data()[0]; v != frame.Saturated {
		t.Errorf("expected clamped block sum 0xFFFF, got %#x", v)
	}
}

func TestBinTrimsRemainder(t *testing.T) {
	f := uniform(5, 5, 10)
	f.Bin(2, 2)
	if f.Width() != 2 || f.Height() != 2 {
		t.Errorf("expected remainder trimmed to 2x2, got %dx%d", f.Width(), f.Height())
	}
}

func TestFlipHorizontal(t *testing.T) {
	f := frame.New(3, 1, []uint16{1, 2, 3}, frame.Metadata{})
	f.FlipHorizontal()
	pix := f.Data()
	if pix[0] != 3 || pix[1] != 2 || pix[2] != 1 {
		t.Errorf("expected reversed row, got %v", pix)
	}
}

func TestJPEGSaturationColors(t *testing.T) {
	f := frame.New(8, 2, nil, frame.Metadata{})
	buf, err := f.JPEG()
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) == 0 {
		t.Error("expected non-empty jpeg encode")
	}
	// cached encode must be reused until mutation
	buf2, err := f.JPEG()
	if err != nil {
		t.Fatal(err)
	}
	if &buf[0] != &buf2[0] {
		t.Error("expected cached encode on second call")
	}
	f.FlipHorizontal()
	buf3, err := f.JPEG()
	if err != nil {
		t.Fatal(err)
	}
	if len(buf3) == 0 {
		t.Error("expected re-encode after mutation")
	}
}

func TestJPEGEmpty(t *testing.T) {
	f := &frame.Frame{}
	_, err := f.JPEG()
	if err != frame.ErrNoData {
		t.Errorf("expected ErrNoData, got %v", err)
	}
}
