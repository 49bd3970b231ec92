package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.jpl.nasa.gov/bdube/cameraunit/camera"
	"github.jpl.nasa.gov/bdube/cameraunit/frame"
	"github.jpl.nasa.gov/bdube/cameraunit/generichttp"
	camhttp "github.jpl.nasa.gov/bdube/cameraunit/generichttp/camera"
	"github.jpl.nasa.gov/bdube/cameraunit/imgrec"
	"github.jpl.nasa.gov/bdube/cameraunit/usbprobe"
	"github.jpl.nasa.gov/bdube/cameraunit/util"

	"github.com/cenkalti/backoff"
	"github.com/go-chi/chi"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "camsrv.yml"
	k              = koanf.New(".")
)

// openDevice constructs the camera driver.  The simulator is built in;
// vendor SDK drivers replace this hook in their own builds since they
// drag in cgo and the vendor's shared library.
var openDevice = func(cfg config) (camera.Device, error) {
	return camera.NewSim(), nil
}

type recorder struct {
	// Root is the root folder to write to
	Root string `yaml:"Root"`

	// Prefix is the filename prefix to use
	Prefix string `yaml:"Prefix"`
}

type config struct {
	Addr     string   `yaml:"Addr"`
	Root     string   `yaml:"Root"`
	VID      uint16   `yaml:"VID"`
	Exposure string   `yaml:"Exposure"`
	Recorder recorder `yaml:"Recorder"`
}

func setupconfig() {
	k.Load(structs.Provider(config{
		Addr:     ":8000",
		Root:     "/",
		VID:      usbprobe.DefaultVID,
		Exposure: "10ms",
		Recorder: recorder{}}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `camsrv exposes control of astronomy cameras over HTTP
This enables a server-client architecture,
and the clients can leverage the excellent HTTP
libraries for any programming language,
instead of custom socket logic.

Usage:
	camsrv <command>

Commands:
	run
	probe
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `camsrv is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

When no configuration is provided, the defaults are used.  The command mkconf
generates the configuration file with the default values.

The probe command scans the USB bus for cameras with the configured vendor ID
and prints what it finds; run logs the same scan at startup.  If the scan comes
back empty on linux, check that you have a udev rule granting access to the
device, or run as root.

If the files and folders created do not have the permissions you want on linux,
your umask is likely to blame.  camsrv makes them with permission 666, but your
umask is probably the default of 0022 which knocks them down to 444.  Set your
umask to 0000 before running camsrv to solve this.`
	fmt.Println(str)
}

func mkconf() {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	err = yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("camsrv version %v\n", Version)
}

func probe() {
	cfg := config{}
	k.Unmarshal("", &cfg)
	entries, err := usbprobe.Probe(cfg.VID)
	if err != nil && len(entries) == 0 {
		log.Fatal(err)
	}
	if len(entries) == 0 {
		fmt.Println("no cameras found")
		return
	}
	for _, e := range entries {
		fmt.Println(e)
	}
}

func run() {
	cfg := config{}
	k.Unmarshal("", &cfg)
	frame.Program = "camsrv"

	entries, err := usbprobe.Probe(cfg.VID)
	if err != nil && len(entries) == 0 {
		log.Printf("USB scan failed: %v", err)
	}
	for _, e := range entries {
		log.Println("found", e)
	}

	// cameras are briefly busy after a replug while the OS settles,
	// so retry bring-up for a little while before giving up
	var c *camera.Controller
	boff := backoff.NewExponentialBackOff()
	boff.MaxElapsedTime = 30 * time.Second
	err = backoff.Retry(func() error {
		dev, err := openDevice(cfg)
		if err != nil {
			return err
		}
		c, err = camera.New(dev)
		return err
	}, boff)
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()
	log.Println("connected to", c.Name())
	log.Println("supported bins:", util.IntSliceToCSV(c.Properties().SupportedBins))

	if cfg.Exposure != "" {
		d, err := time.ParseDuration(cfg.Exposure)
		if err != nil {
			log.Fatal(err)
		}
		err = c.SetExposureTime(d)
		if err != nil {
			log.Fatal(err)
		}
	}

	var rec *imgrec.Recorder
	if cfg.Recorder.Root != "" {
		rec = imgrec.New(cfg.Recorder.Root, cfg.Recorder.Prefix)
	}
	w := camhttp.NewHTTP(c, rec)

	hndlrS := generichttp.SubMuxSanitize(cfg.Root)
	rootMux := chi.NewRouter()
	mux := chi.NewRouter()
	rootMux.Mount(hndlrS, mux)
	w.RT().Bind(mux)
	addr := cfg.Addr + cfg.Root
	log.Println("now listening for requests at", addr)
	log.Fatal(http.ListenAndServe(cfg.Addr, rootMux))
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	switch strings.ToLower(args[1]) {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "probe":
		probe()
	case "run":
		run()
	case "version":
		pversion()
	default:
		log.Fatal("unknown command")
	}
}
