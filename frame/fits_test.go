package frame_test

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/astrogo/fitsio"

	"github.jpl.nasa.gov/bdube/cameraunit/frame"
)

func testMeta() frame.Metadata {
	return frame.Metadata{
		Exposure:    250 * time.Millisecond,
		BinX:        2,
		BinY:        2,
		OriginX:     8,
		OriginY:     4,
		Temperature: -12.5,
		CameraName:  "testcam",
		Gain:        120,
		Offset:      8,
		MinGain:     0,
		MaxGain:     510,
	}
}

func TestWriteFITS(t *testing.T) {
	f := frame.New(8, 4, nil, testMeta())
	f.AddExtended("OBSERVER", "test")
	buf := bytes.Buffer{}
	err := f.WriteFITS(&buf)
	if err != nil {
		t.Fatal(err)
	}
	b := buf.Bytes()
	if !bytes.HasPrefix(b, []byte("SIMPLE")) {
		t.Error("expected FITS output to begin with SIMPLE")
	}
	// FITS files are written in 2880 byte blocks
	if len(b)%2880 != 0 {
		t.Errorf("expected output length to be a multiple of 2880, got %d", len(b))
	}
	for _, key := range []string{"EXPOSURE", "CCDTEMP", "BINX", "BINY", "GAINMIN", "GAINMAX", "DATACRC", "OBSERVER", "testcam"} {
		if !bytes.Contains(b, []byte(key)) {
			t.Errorf("expected header to contain %s", key)
		}
	}
	// 250 ms is recorded as 250000 microseconds
	if !bytes.Contains(b, []byte("250000")) {
		t.Error("expected exposure value in microseconds in the header")
	}
	if !bytes.Contains(b, []byte("510")) {
		t.Error("expected gain bound value in the header")
	}
}

func TestWriteFITSHeaderRoundTrip(t *testing.T) {
	meta := testMeta()
	meta.Timestamp = 1712345678901
	f := frame.New(8, 4, nil, meta)
	buf := bytes.Buffer{}
	err := f.WriteFITS(&buf)
	if err != nil {
		t.Fatal(err)
	}
	fits, err := fitsio.Open(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	defer fits.Close()
	hdr := fits.HDU(0).Header()
	expected := map[string]int{
		"EXPOSURE": 250000,
		"BINX":     2,
		"BINY":     2,
		"ORIGIN_X": 8,
		"ORIGIN_Y": 4,
		"GAIN":     120,
		"TIMESTMP": 1712345678901,
	}
	for key, want := range expected {
		card := hdr.Get(key)
		if card == nil {
			t.Errorf("missing header card %s", key)
			continue
		}
		got, ok := card.Value.(int)
		if !ok || got != want {
			t.Errorf("%s: expected %d back, got %v", key, want, card.Value)
		}
	}
	temp := hdr.Get("CCDTEMP")
	if temp == nil {
		t.Fatal("missing header card CCDTEMP")
	}
	if v, ok := temp.Value.(float64); !ok || v != -12.5 {
		t.Errorf("CCDTEMP: expected -12.5 back, got %v", temp.Value)
	}
}

func TestWriteFITSEmpty(t *testing.T) {
	f := &frame.Frame{}
	err := f.WriteFITS(&bytes.Buffer{})
	if err != frame.ErrNoData {
		t.Errorf("expected ErrNoData, got %v", err)
	}
}

func TestSaveFITSCollisionSuffix(t *testing.T) {
	dir := t.TempDir()
	f := frame.New(8, 4, nil, testMeta())
	fn1, err := f.SaveFITS(dir, "exp")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(fn1) != "exp.fits" {
		t.Errorf("expected exp.fits, got %s", fn1)
	}
	fn2, err := f.SaveFITS(dir, "exp")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(fn2) != "exp_1.fits" {
		t.Errorf("expected collision suffix exp_1.fits, got %s", fn2)
	}
	fn3, err := f.SaveFITS(dir, "exp")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(fn3, "_2.fits") {
		t.Errorf("expected collision suffix _2, got %s", fn3)
	}
}

func TestSaveFITSDefaultName(t *testing.T) {
	dir := t.TempDir()
	f := frame.New(8, 4, nil, testMeta())
	fn, err := f.SaveFITS(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	base := filepath.Base(fn)
	if !strings.HasPrefix(base, frame.Program+"_") || !strings.HasSuffix(base, ".fits") {
		t.Errorf("expected <program>_<timestamp>.fits, got %s", base)
	}
}
