package frame

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/snksoft/crc"
)

// Program is the program name recorded in the PROGRAM card of saved
// files.  Binaries may override it at startup.
var Program = "cameraunit"

var crcTable = crc.NewTable(crc.XMODEM)

// headerCards builds the header for a saved frame.  The pixel payload
// checksum lets a reader detect silent corruption without re-reading
// the whole file.
func (f *Frame) headerCardsLocked() []fitsio.Card {
	cards := []fitsio.Card{
		{Name: "BZERO", Value: 32768},
		{Name: "BSCALE", Value: 1.0},
		{Name: "PROGRAM", Value: Program},
		{Name: "CAMERA", Value: f.meta.CameraName},
		{Name: "TIMESTMP", Value: int(f.meta.Timestamp), Comment: "ms since epoch"},
		{Name: "CCDTEMP", Value: f.meta.Temperature, Comment: "Celcius"},
		{Name: "EXPOSURE", Value: int(f.meta.Exposure / time.Microsecond), Comment: "microseconds"},
		{Name: "ORIGIN_X", Value: f.meta.OriginX},
		{Name: "ORIGIN_Y", Value: f.meta.OriginY},
		{Name: "BINX", Value: f.meta.BinX},
		{Name: "BINY", Value: f.meta.BinY},
		{Name: "GAIN", Value: int(f.meta.Gain)},
		{Name: "OFFSET", Value: int(f.meta.Offset)},
		{Name: "GAINMIN", Value: f.meta.MinGain},
		{Name: "GAINMAX", Value: f.meta.MaxGain},
		{Name: "DATACRC", Value: int(f.payloadCRCLocked()), Comment: "CRC-16/XMODEM of pixel payload"},
	}
	// FITS keywords are capped at 8 characters
	for k, v := range f.meta.Extended {
		if len(k) > 8 {
			k = k[:8]
		}
		cards = append(cards, fitsio.Card{Name: strings.ToUpper(k), Value: v})
	}
	return cards
}

func (f *Frame) payloadCRCLocked() uint16 {
	buf := make([]byte, 2*len(f.pix))
	for i, v := range f.pix {
		binary.LittleEndian.PutUint16(buf[2*i:], v)
	}
	c := crcTable.InitCrc()
	c = crcTable.UpdateCrc(c, buf)
	return crcTable.CRC16(c)
}

// WriteFITS streams the frame as a FITS file to w.
func (f *Frame) WriteFITS(w io.Writer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pix == nil {
		return ErrNoData
	}
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(16, []int{f.width, f.height})
	defer im.Close()
	err = im.Header().Append(f.headerCardsLocked()...)
	if err != nil {
		return err
	}
	ints := make([]int16, len(f.pix))
	for i, v := range f.pix {
		// scale uint16 to int16; underflow wraps per the FITS convention
		ints[i] = int16(v - 32768)
	}
	err = im.Write(ints)
	if err != nil {
		return err
	}
	return fits.Write(im)
}

// SaveFITS writes the frame to dir under the given base name, creating
// the directory as needed.  If name is empty, <Program>_<timestamp> is
// used.  When the target file already exists, an incrementing numeric
// suffix is appended before the extension rather than overwriting.
// Returns the path written.
func (f *Frame) SaveFITS(dir, name string) (string, error) {
	if dir == "" {
		dir = "fits"
	}
	err := os.MkdirAll(dir, 0777)
	if err != nil {
		return "", err
	}
	if name == "" {
		name = fmt.Sprintf("%s_%d", Program, f.Metadata().Timestamp)
	}
	fn := path.Join(dir, name+".fits")
	for ctr := 1; ; ctr++ {
		_, err := os.Stat(fn)
		if os.IsNotExist(err) {
			break
		}
		if err != nil {
			return "", err
		}
		fn = path.Join(dir, fmt.Sprintf("%s_%d.fits", name, ctr))
	}
	fid, err := os.Create(fn)
	if err != nil {
		return "", err
	}
	defer fid.Close()
	err = f.WriteFITS(fid)
	if err != nil {
		return "", err
	}
	err = fid.Sync()
	if err != nil {
		return "", err
	}
	return fn, nil
}
