// camloop captures a sequence of frames, saving each to disk and
// optionally steering the exposure with the auto-exposure advisor
// between frames.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/theckman/yacspin"

	"github.jpl.nasa.gov/bdube/cameraunit/camera"
	"github.jpl.nasa.gov/bdube/cameraunit/frame"
	"github.jpl.nasa.gov/bdube/cameraunit/imgrec"
)

func main() {
	var (
		count      = flag.Int("n", 10, "number of frames to capture, 0 for unlimited")
		exposure   = flag.Duration("exp", 10*time.Millisecond, "initial exposure time")
		out        = flag.String("out", "frames", "output folder root")
		prefix     = flag.String("prefix", "cap", "filename prefix")
		auto       = flag.Bool("auto", false, "adjust exposure between frames")
		target     = flag.Int("target", frame.DefaultTargetValue, "auto exposure target pixel value")
		percentile = flag.Float64("percentile", frame.DefaultPercentile, "auto exposure percentile")
		maxExp     = flag.Duration("max-exp", frame.DefaultMaxExposure, "auto exposure ceiling")
	)
	flag.Parse()
	frame.Program = "camloop"

	c, err := camera.New(camera.NewSim())
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	err = c.SetExposureTime(*exposure)
	if err != nil {
		log.Fatal(err)
	}

	rec := imgrec.New(*out, *prefix)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[11],
		Suffix:          " capturing",
		SuffixAutoColon: true,
		StopCharacter:   "done",
	})
	if err != nil {
		log.Fatal(err)
	}
	spinner.Start()
	defer spinner.Stop()

	opts := frame.ExposureOptions{
		Percentile:  *percentile,
		TargetValue: *target,
		MaxExposure: *maxExp,
		MaxBin:      -1, // leave binning alone in a capture loop
	}
	for i := 0; *count == 0 || i < *count; i++ {
		exp, _ := c.GetExposureTime()
		spinner.Message(fmt.Sprintf("frame %d exp=%v", i+1, exp))
		f, err := c.Capture(ctx)
		if err != nil {
			if ctx.Err() != nil {
				spinner.StopMessage("interrupted")
				return
			}
			log.Fatal(err)
		}
		fn, err := rec.Save(f)
		if err != nil {
			log.Fatal(err)
		}
		s := f.Statistics()
		spinner.Message(fmt.Sprintf("frame %d -> %s mean=%.0f max=%d", i+1, fn, s.Mean, s.Max))
		if *auto {
			next, _ := f.OptimumExposure(opts)
			// the advisor is not aware of the device limits
			lo, hi := c.ExposureBounds()
			if next < lo {
				next = lo
			}
			if next > hi {
				next = hi
			}
			if next != exp {
				err = c.SetExposureTime(next)
				if err != nil {
					log.Fatal(err)
				}
			}
		}
	}
}
