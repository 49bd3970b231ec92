/*Package frame contains a container for raw 16-bit camera frames.

A Frame owns one dense row-major pixel buffer and the metadata recorded
at capture time.  Frames may be accumulated, software-binned and flipped
in place; statistics and a lossy JPEG preview are derived on demand.
All operations are safe for concurrent use.
*/
package frame

import (
	"math"
	"sync"
	"time"
	"unsafe"
)

// Saturated is the full-well value for 16-bit pixel data.
const Saturated = 0xFFFF

// Metadata describes the conditions a frame was captured under.
type Metadata struct {
	// Exposure is the integration time of the frame
	Exposure time.Duration

	// BinX and BinY are the pixel binning factors
	BinX, BinY int

	// OriginX and OriginY are the frame origin on the sensor, in binned
	// pixel coordinates
	OriginX, OriginY int

	// Temperature is the sensor temperature in Celcius
	Temperature float64

	// Timestamp is milliseconds since the Unix epoch
	Timestamp uint64

	// CameraName is the name reported by the camera
	CameraName string

	// Gain and Offset are in raw device units
	Gain, Offset int64

	// MinGain and MaxGain are the gain bounds of the device
	MinGain, MaxGain int

	// Extended holds free-form key/value pairs carried into saved files
	Extended map[string]string
}

// AddExtended records a free-form key/value pair on the metadata.
func (m *Metadata) AddExtended(key, value string) {
	if m.Extended == nil {
		m.Extended = make(map[string]string)
	}
	m.Extended[key] = value
}

// Stats holds summary statistics over a frame's pixels.
type Stats struct {
	Min  int
	Max  int
	Mean float64

	// StdDev is the sample standard deviation (N-1 divisor)
	StdDev float64
}

// Frame holds one raw 16-bit image.  The zero value is a valid empty
// frame.
type Frame struct {
	mu sync.Mutex

	width  int
	height int
	pix    []uint16
	meta   Metadata

	// cached preview encode, dropped on any mutation
	jpeg        []byte
	jpegQuality int
	scaleMin    int
	scaleMax    int
	autoscale   bool
}

// New creates a frame from 16-bit source pixels.  The source is copied;
// a nil source yields a zero-filled buffer.  Non-positive dimensions
// yield an empty frame rather than an error.  A zero metadata timestamp
// is populated with the current wall clock.
func New(width, height int, src []uint16, meta Metadata) *Frame {
	f := &Frame{}
	f.Clear()
	if width <= 0 || height <= 0 {
		return f
	}
	n := width * height
	if src != nil && len(src) < n {
		return f
	}
	f.pix = make([]uint16, n)
	if src != nil {
		copy(f.pix, src[:n])
	}
	f.width = width
	f.height = height
	f.meta = meta
	if f.meta.Timestamp == 0 {
		f.meta.Timestamp = uint64(time.Now().UnixMilli())
	}
	f.jpegQuality = MaxJPEGQuality
	f.scaleMin = -1
	f.scaleMax = -1
	f.autoscale = true
	return f
}

// New8Bit creates a frame from 8-bit source pixels, left-shifting each
// sample into the 16-bit range.  Samples at or above 0xff00 after the
// shift clamp to Saturated so an 8-bit saturated pixel stays saturated.
func New8Bit(width, height int, src []byte, meta Metadata) *Frame {
	if width <= 0 || height <= 0 || len(src) < width*height {
		f := &Frame{}
		f.Clear()
		return f
	}
	n := width * height
	promoted := make([]uint16, n)
	for i := 0; i < n; i++ {
		v := uint16(src[i]) << 8
		if v >= 0xff00 {
			v = Saturated
		}
		promoted[i] = v
	}
	return New(width, height, promoted, meta)
}

// Clear releases the pixel buffer and any cached preview and resets the
// dimensions and origin to zero, leaving the frame in the empty state.
func (f *Frame) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearLocked()
}

func (f *Frame) clearLocked() {
	f.pix = nil
	f.width = 0
	f.height = 0
	f.meta.OriginX = 0
	f.meta.OriginY = 0
	f.jpeg = nil
}

// HasData returns true if the frame holds pixel data.
func (f *Frame) HasData() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pix != nil
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.width
}

// Height returns the frame height in pixels.
func (f *Frame) Height() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.height
}

// Metadata returns a copy of the frame's metadata.
func (f *Frame) Metadata() Metadata {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meta
}

// SetMetadata replaces the frame's metadata.  A zero timestamp is
// populated with the current wall clock.
func (f *Frame) SetMetadata(meta Metadata) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meta = meta
	if f.meta.Timestamp == 0 {
		f.meta.Timestamp = uint64(time.Now().UnixMilli())
	}
}

// AddExtended records a free-form key/value pair carried into saved files.
func (f *Frame) AddExtended(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meta.AddExtended(key, value)
}

// Data returns the raw pixel buffer.  Callers must treat the slice as
// read-only; use the mutating methods on Frame instead.
func (f *Frame) Data() []uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pix
}

// lockPair acquires the mutexes of both frames in a stable order so two
// goroutines copying between the same pair in opposite directions cannot
// deadlock.
func lockPair(a, b *Frame) {
	if uintptr(unsafe.Pointer(a)) < uintptr(unsafe.Pointer(b)) {
		a.mu.Lock()
		b.mu.Lock()
	} else {
		b.mu.Lock()
		a.mu.Lock()
	}
}

func unlockPair(a, b *Frame) {
	a.mu.Unlock()
	b.mu.Unlock()
}

// CopyFrom deep-copies src's pixels and metadata into f, replacing any
// prior content.  Copying a frame onto itself is a no-op.  The copy is
// safe against concurrent mutation of src.
func (f *Frame) CopyFrom(src *Frame) {
	if f == src {
		return
	}
	lockPair(f, src)
	defer unlockPair(f, src)
	f.clearLocked()
	if src.pix == nil || src.width == 0 || src.height == 0 {
		return
	}
	f.pix = make([]uint16, len(src.pix))
	copy(f.pix, src.pix)
	f.width = src.width
	f.height = src.height
	f.meta = src.meta
	if src.meta.Extended != nil {
		f.meta.Extended = make(map[string]string, len(src.meta.Extended))
		for k, v := range src.meta.Extended {
			f.meta.Extended[k] = v
		}
	}
	f.jpeg = nil
	f.jpegQuality = src.jpegQuality
	f.scaleMin = src.scaleMin
	f.scaleMax = src.scaleMax
	f.autoscale = src.autoscale
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	out := &Frame{}
	out.CopyFrom(f)
	return out
}

// Add accumulates other into f with per-pixel saturating addition.  If f
// is empty it becomes a copy of other.  Mismatched dimensions are a
// no-op.  The exposure times are summed.
func (f *Frame) Add(other *Frame) {
	if f == other {
		return
	}
	if !other.HasData() {
		return
	}
	if !f.HasData() {
		f.CopyFrom(other)
		return
	}
	lockPair(f, other)
	defer unlockPair(f, other)
	if f.width != other.width || f.height != other.height {
		return
	}
	for i := range f.pix {
		sum := uint32(f.pix[i]) + uint32(other.pix[i])
		if sum > Saturated {
			sum = Saturated
		}
		f.pix[i] = uint16(sum)
	}
	f.meta.Exposure += other.meta.Exposure
	f.jpeg = nil
}

// Bin reduces resolution by integer factors, summing each binX x binY
// source block into one destination pixel with clamping at Saturated.
// Remainder rows and columns that do not divide evenly are trimmed.
// Bin(1, 1) is the identity.
func (f *Frame) Bin(binX, binY int) {
	if binX <= 0 || binY <= 0 {
		return
	}
	if binX == 1 && binY == 1 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pix == nil {
		return
	}
	newW := f.width / binX
	newH := f.height / binY
	if newW == 0 || newH == 0 {
		return
	}
	srcW := newW * binX
	srcH := newH * binY
	out := make([]uint16, newW*newH)
	for row := 0; row < srcH; row++ {
		src := f.pix[row*f.width:]
		dstRow := (row / binY) * newW
		for col := 0; col < srcW; col++ {
			di := dstRow + col/binX
			sum := uint32(out[di]) + uint32(src[col])
			if sum > Saturated {
				sum = Saturated
			}
			out[di] = uint16(sum)
		}
	}
	f.pix = out
	f.width = newW
	f.height = newH
	f.jpeg = nil
}

// FlipHorizontal reverses each row in place.
func (f *Frame) FlipHorizontal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for row := 0; row < f.height; row++ {
		line := f.pix[row*f.width : (row+1)*f.width]
		for i, j := 0, len(line)-1; i < j; i, j = i+1, j-1 {
			line[i], line[j] = line[j], line[i]
		}
	}
	f.jpeg = nil
}

// Statistics returns min, max, mean and sample standard deviation over
// all pixels.  An empty frame yields all zeros.
func (f *Frame) Statistics() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pix == nil {
		return Stats{}
	}
	min := Saturated
	max := 0
	var sum uint64
	for _, v := range f.pix {
		if int(v) < min {
			min = int(v)
		}
		if int(v) > max {
			max = int(v)
		}
		sum += uint64(v)
	}
	n := len(f.pix)
	mean := float64(sum) / float64(n)
	var varianceSum float64
	for _, v := range f.pix {
		d := float64(v) - mean
		varianceSum += d * d
	}
	var stddev float64
	if n > 1 {
		stddev = math.Sqrt(varianceSum / float64(n-1))
	}
	return Stats{Min: min, Max: max, Mean: mean, StdDev: stddev}
}

func (f *Frame) dataMinMaxLocked() (uint16, uint16) {
	if f.pix == nil {
		return Saturated, Saturated
	}
	var min uint16 = Saturated
	var max uint16
	for _, v := range f.pix {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
