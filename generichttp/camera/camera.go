// Package camera provides a generic HTTP interface to a scientific camera
package camera

import (
	"encoding/json"
	"go/types"
	"image"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.jpl.nasa.gov/bdube/cameraunit/camera"
	"github.jpl.nasa.gov/bdube/cameraunit/frame"
	"github.jpl.nasa.gov/bdube/cameraunit/generichttp"
	"github.jpl.nasa.gov/bdube/cameraunit/imgrec"
	"github.jpl.nasa.gov/bdube/cameraunit/util"
)

// captures triggered over HTTP are limited to this rate so a tight
// client loop cannot starve the camera
const (
	captureRateInterval = 100 * time.Millisecond
	captureRateBurst    = 1
)

// HTTP wraps a camera controller with an HTTP interface.  Optional
// capabilities of the wrapped type (thermal management, shutter, gain)
// are introspected and only bound when present.
type HTTP struct {
	p camera.PictureTaker

	// rec, if non-nil, tees FITS downloads to disk
	rec *imgrec.Recorder

	limiter *rate.Limiter

	table generichttp.RouteTable
}

// NewHTTP returns an HTTP wrapper around p.  rec may be nil, in which
// case no automatic recording is done.
func NewHTTP(p camera.PictureTaker, rec *imgrec.Recorder) *HTTP {
	h := &HTTP{
		p:       p,
		rec:     rec,
		limiter: rate.NewLimiter(rate.Every(captureRateInterval), captureRateBurst),
		table:   generichttp.RouteTable{},
	}
	rt := h.table
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/image"}] = h.GetImage
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/last-image"}] = h.GetLastImage
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/stats"}] = h.GetStats
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/recommended-exposure"}] = h.GetRecommendedExposure
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/exposure-time"}] = GetExposureTime(p)
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/exposure-time"}] = SetExposureTime(p)
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/status"}] = h.GetStatus
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/capturing"}] = generichttp.GetBool(func() (bool, error) { return p.Capturing(), nil })
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/cancel"}] = h.Cancel

	if area, ok := p.(camera.AreaController); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/roi"}] = GetROI(area)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/roi"}] = SetROI(area)
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/binning"}] = generichttp.GetInt(area.GetBinning)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/binning"}] = generichttp.SetInt(area.SetBinning)
	}
	if gain, ok := p.(camera.GainController); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/gain"}] = generichttp.GetFloat(gain.GetGain)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/gain"}] = generichttp.SetFloat(gain.SetGain)
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/gain-raw"}] = generichttp.GetInt(func() (int, error) {
			v, err := gain.GetGainRaw()
			return int(v), err
		})
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/gain-raw"}] = generichttp.SetInt(func(i int) error {
			return gain.SetGainRaw(int64(i))
		})
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/offset"}] = generichttp.GetInt(func() (int, error) {
			v, err := gain.GetOffset()
			return int(v), err
		})
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/offset"}] = generichttp.SetInt(func(i int) error {
			return gain.SetOffset(int64(i))
		})
	}
	if therm, ok := p.(camera.ThermalManager); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/temperature"}] = generichttp.GetFloat(therm.GetTemperature)
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/temperature-setpoint"}] = generichttp.GetFloat(therm.GetTemperatureSetpoint)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/temperature-setpoint"}] = generichttp.SetFloat(therm.SetTemperatureSetpoint)
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/cooling"}] = generichttp.GetBool(therm.GetCooling)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/cooling"}] = generichttp.SetBool(therm.SetCooling)
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/cooler-power"}] = generichttp.GetFloat(therm.GetCoolerPower)
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/fan"}] = generichttp.GetBool(therm.GetFan)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/fan"}] = generichttp.SetBool(therm.SetFan)
	}
	if shutter, ok := p.(camera.ShutterController); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/shutter"}] = generichttp.GetBool(shutter.GetShutterOpen)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/shutter"}] = generichttp.SetBool(shutter.SetShutterOpen)
	}
	if rec != nil {
		imgrec.NewHTTPWrapper(rec).Inject(h)
	}
	return h
}

// RT yields the route table for binding to a router
func (h *HTTP) RT() generichttp.RouteTable {
	return h.table
}

// GetExposureTime gets the exposure time on a GET request
func GetExposureTime(p camera.PictureTaker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := p.GetExposureTime()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := generichttp.HumanPayload{T: types.Float64, Float: f.Seconds()}
		hp.EncodeAndRespond(w, r)
	}
}

// SetExposureTime sets the exposure time on a POST request.
// it can be provided either as a query parameter exposureTime, formatted in a
// way that is parseable by golang/time.ParseDuration, or a json payload with
// key f64, holding the exposure time in seconds.
func SetExposureTime(p camera.PictureTaker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		texp := q.Get("exposureTime")
		var d time.Duration
		var err error
		if texp == "" {
			f := generichttp.FloatT{}
			err = json.NewDecoder(r.Body).Decode(&f)
			d = time.Duration(f.F64 * float64(time.Second))
		} else {
			d, err = parseExposure(texp)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = p.SetExposureTime(d)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// parseExposure accepts anything time.ParseDuration accepts; a bare
// number is taken as seconds
func parseExposure(texp string) (time.Duration, error) {
	if f, err := strconv.ParseFloat(texp, 64); err == nil {
		return util.SecsToDuration(f), nil
	}
	return time.ParseDuration(texp)
}

// GetROI returns the current readout window as JSON
func GetROI(a camera.AreaController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roi, err := a.GetROI()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		err = json.NewEncoder(w).Encode(roi)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// SetROI applies a readout window from a JSON payload
func SetROI(a camera.AreaController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roi := camera.ROI{}
		err := json.NewDecoder(r.Body).Decode(&roi)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = a.SetROI(roi)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetImage captures a new frame and serves it.
//
// the image format may be specified in the fmt query parameter, one of
// jpg, png, fits; default jpg.
//
// the exposure time may be specified in the exposureTime query
// parameter, either as a bare number of seconds or any valid input to
// time.ParseDuration.  If absent the existing value is used.
//
// fits downloads are teed to the recorder when one is attached and
// enabled.
func (h *HTTP) GetImage(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow() {
		http.Error(w, "capture rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	q := r.URL.Query()
	texp := q.Get("exposureTime")
	if texp != "" {
		d, err := parseExposure(texp)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = h.p.SetExposureTime(d)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	f, err := h.p.Capture(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.serveFrame(w, f, q.Get("fmt"))
}

// GetLastImage serves the most recently captured frame without
// triggering a new exposure.
func (h *HTTP) GetLastImage(w http.ResponseWriter, r *http.Request) {
	f := h.p.LastFrame()
	if f == nil {
		http.Error(w, frame.ErrNoData.Error(), http.StatusNotFound)
		return
	}
	h.serveFrame(w, f, r.URL.Query().Get("fmt"))
}

func (h *HTTP) serveFrame(w http.ResponseWriter, f *frame.Frame, format string) {
	if format == "" {
		format = "jpg"
	}
	switch format {
	case "jpg":
		buf, err := f.JPEG()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
		w.Write(buf)
	case "png":
		pix := f.Data()
		buf := make([]byte, len(pix))
		for idx := 0; idx < len(pix); idx++ {
			buf[idx] = byte(pix[idx] / 256) // scale 16 to 8 bits
		}
		im := &image.Gray{Pix: buf, Stride: f.Width(), Rect: image.Rect(0, 0, f.Width(), f.Height())}
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		png.Encode(w, im)
	case "fits":
		var w2 io.Writer = w
		if h.rec != nil && h.rec.EnabledNow() {
			w2 = io.MultiWriter(w, h.rec)
			defer h.rec.Incr()
		}
		hdr := w.Header()
		hdr.Set("Content-Type", "image/fits")
		hdr.Set("Content-Disposition", "attachment; filename=image.fits")
		err := f.WriteFITS(w2)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	default:
		http.Error(w, "unknown format "+format, http.StatusBadRequest)
	}
}

// GetStats returns summary statistics of the last frame as JSON
func (h *HTTP) GetStats(w http.ResponseWriter, r *http.Request) {
	f := h.p.LastFrame()
	if f == nil {
		http.Error(w, frame.ErrNoData.Error(), http.StatusNotFound)
		return
	}
	s := f.Statistics()
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(struct {
		Min    int     `json:"min"`
		Max    int     `json:"max"`
		Mean   float64 `json:"mean"`
		StdDev float64 `json:"stdDev"`
	}{s.Min, s.Max, s.Mean, s.StdDev})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GetRecommendedExposure runs the auto-exposure advisor over the last
// frame.  Tuning knobs come from query parameters: percentile, target,
// maxExposure (duration), maxBin, trim, uncertainty.
func (h *HTTP) GetRecommendedExposure(w http.ResponseWriter, r *http.Request) {
	f := h.p.LastFrame()
	if f == nil {
		http.Error(w, frame.ErrNoData.Error(), http.StatusNotFound)
		return
	}
	q := r.URL.Query()
	opts := frame.ExposureOptions{}
	var err error
	if s := q.Get("percentile"); s != "" {
		opts.Percentile, err = strconv.ParseFloat(s, 64)
		opts.Percentile = util.Clamp(opts.Percentile, 0, 100)
	}
	if s := q.Get("target"); s != "" && err == nil {
		opts.TargetValue, err = strconv.Atoi(s)
	}
	if s := q.Get("maxExposure"); s != "" && err == nil {
		opts.MaxExposure, err = parseExposure(s)
	}
	if s := q.Get("maxBin"); s != "" && err == nil {
		opts.MaxBin, err = strconv.Atoi(s)
	}
	if s := q.Get("trim"); s != "" && err == nil {
		opts.TrimCount, err = strconv.Atoi(s)
	}
	if s := q.Get("uncertainty"); s != "" && err == nil {
		opts.Uncertainty, err = strconv.Atoi(s)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	exp, bin := f.OptimumExposure(opts)
	w.Header().Set("Content-Type", "application/json")
	err = json.NewEncoder(w).Encode(struct {
		ExposureSec float64 `json:"exposureSec"`
		Bin         int     `json:"bin"`
	}{exp.Seconds(), bin})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GetStatus returns the capture state string
func (h *HTTP) GetStatus(w http.ResponseWriter, r *http.Request) {
	type statuser interface {
		Status() string
	}
	if s, ok := h.p.(statuser); ok {
		hp := generichttp.HumanPayload{T: types.String, String: s.Status()}
		hp.EncodeAndRespond(w, r)
		return
	}
	hp := generichttp.HumanPayload{T: types.Bool, Bool: h.p.Capturing()}
	hp.EncodeAndRespond(w, r)
}

// Cancel aborts an in-progress capture
func (h *HTTP) Cancel(w http.ResponseWriter, r *http.Request) {
	h.p.CancelCapture()
	w.WriteHeader(http.StatusOK)
}
