// Package imgrec contains an image recorder used to automatically save
// frames to disk in dated folders with incrementing filenames.
package imgrec

import (
	"encoding/json"
	"fmt"
	"go/types"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.jpl.nasa.gov/bdube/cameraunit/frame"
	"github.jpl.nasa.gov/bdube/cameraunit/generichttp"
)

// Recorder records image sequences under Root/yyyy-mm-dd/ with
// incrementing filenames.  Safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	// counter is the internally incrementing file number; synced is
	// false until counter has been reconciled against the files already
	// on disk, so a restart never appends to a prior run's file
	counter int
	synced  bool

	// Root is the root path
	Root string

	// Prefix is the prefix for the filenames
	Prefix string

	// Enabled allows consumers to toggle automatic recording without
	// tearing the recorder down
	Enabled bool
}

// New returns a recorder writing under root with the given filename
// prefix, enabled.
func New(root, prefix string) *Recorder {
	return &Recorder{Root: root, Prefix: prefix, Enabled: true}
}

// dateFolder is yyyy-mm-dd for the current day
func dateFolder() string {
	y, m, d := time.Now().Date()
	return fmt.Sprintf("%04d-%02d-%02d", y, int(m), d)
}

func (r *Recorder) mkDirLocked() (string, error) {
	fldr := path.Join(r.Root, dateFolder())
	err := os.MkdirAll(fldr, 0777)
	return fldr, err
}

// Save writes f as a FITS file at the next filename in the sequence and
// advances the counter.  Returns the path written.
func (r *Recorder) Save(f *frame.Frame) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fldr, err := r.mkDirLocked()
	if err != nil {
		return "", err
	}
	r.syncCounterLocked(fldr)
	fn := path.Join(fldr, fmt.Sprintf("%s%06d.fits", r.Prefix, r.counter))
	fid, err := os.Create(fn)
	if err != nil {
		return "", err
	}
	defer fid.Close()
	err = f.WriteFITS(fid)
	if err != nil {
		return "", err
	}
	r.counter++
	return fn, fid.Sync()
}

// Write implements io.Writer; the bytes are appended to the file at the
// current counter position.  Callers streaming one file through
// multiple writes must call Incr once the file is complete.
func (r *Recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fldr, err := r.mkDirLocked()
	if err != nil {
		return 0, err
	}
	if !r.synced {
		r.syncCounterLocked(fldr)
	}
	fn := path.Join(fldr, fmt.Sprintf("%s%06d.fits", r.Prefix, r.counter))
	fid, err := os.OpenFile(fn, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0666)
	if err != nil {
		return 0, err
	}
	defer fid.Close()
	return fid.Write(p)
}

// Incr advances the filename counter past the highest number already on
// disk.  If the folder cannot be scanned the counter is left alone.
func (r *Recorder) Incr() {
	r.mu.Lock()
	defer r.mu.Unlock()
	fldr, err := r.mkDirLocked()
	if err != nil {
		return
	}
	r.syncCounterLocked(fldr)
}

// syncCounterLocked scans the folder and moves the counter past any
// existing files in the sequence, so restarts never overwrite
func (r *Recorder) syncCounterLocked(fldr string) {
	r.synced = true
	entries, err := os.ReadDir(fldr)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fn := entry.Name()
		if !strings.HasSuffix(fn, ".fits") || !strings.HasPrefix(fn, r.Prefix) {
			continue
		}
		bit := strings.TrimSuffix(strings.TrimPrefix(fn, r.Prefix), ".fits")
		n, err := strconv.Atoi(bit)
		if err != nil {
			continue
		}
		if n >= r.counter {
			r.counter = n + 1
		}
	}
}

// setState mutates the recorder under its lock
func (r *Recorder) setState(fn func(*Recorder)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}

// getState reads the recorder under its lock
func (r *Recorder) getState() (string, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Root, r.Prefix, r.Enabled
}

// EnabledNow reports whether automatic recording is currently on.
func (r *Recorder) EnabledNow() bool {
	_, _, e := r.getState()
	return e
}

// HTTPWrapper is an HTTP wrapper around an image recorder that allows
// the folder and prefix to be changed on the fly.
//
// It does not implement generichttp.HTTPer, offering an Inject method
// allowing it to be injected into another HTTPer.
type HTTPWrapper struct {
	*Recorder
}

// NewHTTPWrapper returns an HTTP wrapper around a recorder
func NewHTTPWrapper(r *Recorder) HTTPWrapper {
	return HTTPWrapper{r}
}

// SetRoot updates the root folder of the recorder
func (h HTTPWrapper) SetRoot(w http.ResponseWriter, r *http.Request) {
	str := generichttp.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Recorder.setState(func(rec *Recorder) {
		rec.Root = str.Str
		rec.counter = 0
		rec.synced = false
	})
	w.WriteHeader(http.StatusOK)
}

// GetRoot gets the recorder's root folder and sends it back as JSON
func (h HTTPWrapper) GetRoot(w http.ResponseWriter, r *http.Request) {
	root, _, _ := h.Recorder.getState()
	hp := generichttp.HumanPayload{T: types.String, String: root}
	hp.EncodeAndRespond(w, r)
}

// SetPrefix updates the filename prefix of the recorder
func (h HTTPWrapper) SetPrefix(w http.ResponseWriter, r *http.Request) {
	str := generichttp.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Recorder.setState(func(rec *Recorder) {
		rec.Prefix = str.Str
		rec.counter = 0
		rec.synced = false
	})
	w.WriteHeader(http.StatusOK)
}

// GetPrefix gets the recorder's prefix and sends it back as JSON
func (h HTTPWrapper) GetPrefix(w http.ResponseWriter, r *http.Request) {
	_, prefix, _ := h.Recorder.getState()
	hp := generichttp.HumanPayload{T: types.String, String: prefix}
	hp.EncodeAndRespond(w, r)
}

// GetEnabled returns the Recorder's Enabled field
func (h HTTPWrapper) GetEnabled(w http.ResponseWriter, r *http.Request) {
	_, _, enabled := h.Recorder.getState()
	hp := generichttp.HumanPayload{T: types.Bool, Bool: enabled}
	hp.EncodeAndRespond(w, r)
}

// SetEnabled sets the recorder's Enabled field
func (h HTTPWrapper) SetEnabled(w http.ResponseWriter, r *http.Request) {
	bT := generichttp.BoolT{}
	err := json.NewDecoder(r.Body).Decode(&bT)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Recorder.setState(func(rec *Recorder) {
		rec.Enabled = bT.Bool
	})
	w.WriteHeader(http.StatusOK)
}

// Inject adds GET and POST routes under /autowrite/ to the HTTPer which
// manipulate this wrapper's recorder
func (h HTTPWrapper) Inject(other generichttp.HTTPer) {
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/root"}] = h.SetRoot
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/root"}] = h.GetRoot
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/prefix"}] = h.SetPrefix
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/prefix"}] = h.GetPrefix
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/enabled"}] = h.SetEnabled
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/enabled"}] = h.GetEnabled
}
