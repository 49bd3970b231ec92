package frame

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
)

// JPEG quality bounds; out of range values are clamped.
const (
	MinJPEGQuality = 10
	MaxJPEGQuality = 100
)

// ErrNoData is returned when a derived product is requested from an
// empty frame.
var ErrNoData = errors.New("frame: no image data")

// SetJPEGQuality sets the encode quality in percent.  Values outside
// [MinJPEGQuality, MaxJPEGQuality] are clamped.  A change of quality
// drops the cached encode.
func (f *Frame) SetJPEGQuality(quality int) {
	if quality < MinJPEGQuality {
		quality = MinJPEGQuality
	}
	if quality > MaxJPEGQuality {
		quality = MaxJPEGQuality
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if quality != f.jpegQuality {
		f.jpeg = nil
	}
	f.jpegQuality = quality
}

// SetScaling fixes the [min, max] pixel bounds used to scale the
// preview brightness and disables autoscaling.  Negative values select
// the defaults of 0 and Saturated.
func (f *Frame) SetScaling(min, max int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scaleMin = min
	f.scaleMax = max
	f.autoscale = false
	f.jpeg = nil
}

// SetAutoScale enables or disables scaling the preview brightness from
// the frame's own min and max.
func (f *Frame) SetAutoScale(auto bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if auto != f.autoscale {
		f.jpeg = nil
	}
	f.autoscale = auto
}

// JPEG renders the raw data to an 8-bit RGB preview and returns the
// encoded bytes.  Hard-saturated pixels render pure red and pixels
// above the high scaling bound render amber; everything else is a
// linear gray scale between the bounds.  The encode is cached until the
// frame is mutated or the quality is changed.
func (f *Frame) JPEG() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pix == nil {
		return nil, ErrNoData
	}
	if f.jpeg != nil {
		return f.jpeg, nil
	}
	var min, max uint16
	if f.autoscale {
		min, max = f.dataMinMaxLocked()
	} else {
		min = clampPixel(f.scaleMin, 0)
		max = clampPixel(f.scaleMax, Saturated)
	}
	rng := int(max) - int(min)
	if rng <= 0 {
		rng = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, f.width, f.height))
	for i, v := range f.pix {
		o := i * 4
		switch {
		case v == Saturated:
			img.Pix[o+0] = 0xff
			img.Pix[o+1] = 0x00
			img.Pix[o+2] = 0x00
		case v > max:
			img.Pix[o+0] = 0xff
			img.Pix[o+1] = 0xa5
			img.Pix[o+2] = 0x00
		default:
			rel := int(v) - int(min)
			if rel < 0 {
				rel = 0
			}
			gray := uint8(rel * 255 / rng)
			img.Pix[o+0] = gray
			img.Pix[o+1] = gray
			img.Pix[o+2] = gray
		}
		img.Pix[o+3] = 0xff
	}
	if f.jpegQuality == 0 {
		f.jpegQuality = MaxJPEGQuality
	}
	buf := bytes.Buffer{}
	err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: f.jpegQuality})
	if err != nil {
		return nil, err
	}
	f.jpeg = buf.Bytes()
	return f.jpeg, nil
}

func clampPixel(v, dflt int) uint16 {
	if v < 0 {
		return uint16(dflt)
	}
	if v > Saturated {
		return Saturated
	}
	return uint16(v)
}
