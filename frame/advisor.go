package frame

import (
	"math"
	"sort"
	"time"
)

// Defaults for OptimumExposure, applied when the corresponding option is
// left zero.
const (
	DefaultPercentile  = 80
	DefaultTargetValue = 40000
	DefaultMaxExposure = 10 * time.Second
	DefaultMaxBin      = 4
	DefaultTrimCount   = 100
	DefaultUncertainty = 5000
)

// ExposureOptions configures OptimumExposure.  The zero value selects
// the defaults; set MaxBin negative to disable binning adjustment.
type ExposureOptions struct {
	// Percentile selects which point of the sorted pixel population is
	// steered toward TargetValue, 0-100
	Percentile float64

	// TargetValue is the desired pixel value at the percentile
	TargetValue int

	// MaxExposure is the exposure ceiling
	MaxExposure time.Duration

	// MaxBin is the binning ceiling; negative disables bin adjustment
	MaxBin int

	// TrimCount excludes the brightest pixels from the percentile to
	// avoid hot pixel bias
	TrimCount int

	// Uncertainty is the acceptance band around TargetValue within
	// which the current exposure is kept
	Uncertainty int
}

func (o *ExposureOptions) applyDefaults() {
	if o.Percentile == 0 {
		o.Percentile = DefaultPercentile
	}
	if o.TargetValue == 0 {
		o.TargetValue = DefaultTargetValue
	}
	if o.MaxExposure == 0 {
		o.MaxExposure = DefaultMaxExposure
	}
	if o.MaxBin == 0 {
		o.MaxBin = DefaultMaxBin
	}
	if o.TrimCount == 0 {
		o.TrimCount = DefaultTrimCount
	}
	if o.Uncertainty == 0 {
		o.Uncertainty = DefaultUncertainty
	}
}

// OptimumExposure recommends the exposure and binning for the next
// capture from this frame's pixel population.  The value at the
// requested percentile of the sorted data is scaled linearly toward the
// target; when binning adjustment is enabled, signal is traded between
// exposure and bin at 4x signal per 2x bin.  The recommendation is
// advisory and never fails; an empty frame returns the frame's current
// exposure and bin unchanged.
func (f *Frame) OptimumExposure(o ExposureOptions) (time.Duration, int) {
	o.applyDefaults()
	f.mu.Lock()
	expDur := f.meta.Exposure
	exposure := expDur.Seconds()
	bin := f.meta.BinX
	changeBin := f.meta.BinX == f.meta.BinY && o.MaxBin >= 0
	pix := make([]uint16, len(f.pix))
	copy(pix, f.pix)
	f.mu.Unlock()
	if bin < 1 {
		bin = 1
	}
	if len(pix) == 0 {
		return expDur, bin
	}

	sort.Slice(pix, func(i, j int) bool { return pix[i] < pix[j] })
	size := len(pix)

	var coord int
	if o.Percentile > 99.99 {
		coord = size - 1
	} else {
		coord = int(math.Floor(o.Percentile * float64(size-1) * 0.01))
	}
	// clamp away from the bright tail to reject hot pixels
	if size-1-coord < o.TrimCount {
		coord = size - 1 - o.TrimCount
	}
	if coord < 0 {
		coord = 0
	}
	val := float64(pix[coord])
	if val < 1 {
		val = 1
	}

	target := exposure
	if math.Abs(float64(o.TargetValue)-val) >= float64(o.Uncertainty) {
		target = float64(o.TargetValue) * exposure / val
		if changeBin {
			if target < o.MaxExposure.Seconds() {
				for target < o.MaxExposure.Seconds() && bin > 2 {
					target *= 4
					bin /= 2
				}
			} else {
				for target > o.MaxExposure.Seconds() && bin*2 <= o.MaxBin {
					target /= 4
					bin *= 2
				}
			}
		}
	}

	if target > o.MaxExposure.Seconds() {
		target = o.MaxExposure.Seconds()
	}
	// round down to millisecond resolution
	target = math.Floor(target*1000) * 0.001
	if bin < 1 {
		bin = 1
	}
	if changeBin && bin > o.MaxBin {
		bin = o.MaxBin
	}
	return time.Duration(target * float64(time.Second)), bin
}
