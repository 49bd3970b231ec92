package camera

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the Controller.
var (
	// ErrNotInitialized is returned when the camera has been closed or
	// never opened
	ErrNotInitialized = errors.New("camera: not initialized")

	// ErrCapturing is returned when an operation cannot run because a
	// capture is in progress
	ErrCapturing = errors.New("camera: capture already in progress")

	// ErrCaptureCancelled is returned from a capture that was stopped
	// before completion
	ErrCaptureCancelled = errors.New("camera: capture cancelled")

	// ErrColorSensor is returned when opening a camera with a Bayer
	// matrix, which this package does not process
	ErrColorSensor = errors.New("camera: color sensors are not supported")

	// ErrNoShutter is returned by shutter operations on cameras
	// without a mechanical shutter
	ErrNoShutter = errors.New("camera: no mechanical shutter")

	// ErrNoCooler is returned by cooling operations on cameras
	// without a TEC
	ErrNoCooler = errors.New("camera: no cooler")
)

// DeviceError is a raw status code from the vendor SDK and has nice
// formatting.
type DeviceError uint

// Device status codes, mirroring the vendor SDK.
const (
	ErrCodeInvalidIndex       DeviceError = 1
	ErrCodeInvalidID          DeviceError = 2
	ErrCodeInvalidControlType DeviceError = 3
	ErrCodeCameraClosed       DeviceError = 4
	ErrCodeCameraRemoved      DeviceError = 5
	ErrCodeInvalidPath        DeviceError = 6
	ErrCodeInvalidFileFormat  DeviceError = 7
	ErrCodeInvalidSize        DeviceError = 8
	ErrCodeInvalidImageType   DeviceError = 9
	ErrCodeOutOfBoundary      DeviceError = 10
	ErrCodeTimeout            DeviceError = 11
	ErrCodeInvalidSequence    DeviceError = 12
	ErrCodeBufferTooSmall     DeviceError = 13
	ErrCodeVideoModeActive    DeviceError = 14
	ErrCodeExposureInProgress DeviceError = 15
	ErrCodeGeneralError       DeviceError = 16
	ErrCodeInvalidMode        DeviceError = 17
)

// ErrCodes maps device status codes to strings.
var ErrCodes = map[DeviceError]string{
	ErrCodeInvalidIndex:       "ASI_ERROR_INVALID_INDEX",
	ErrCodeInvalidID:          "ASI_ERROR_INVALID_ID",
	ErrCodeInvalidControlType: "ASI_ERROR_INVALID_CONTROL_TYPE",
	ErrCodeCameraClosed:       "ASI_ERROR_CAMERA_CLOSED",
	ErrCodeCameraRemoved:      "ASI_ERROR_CAMERA_REMOVED",
	ErrCodeInvalidPath:        "ASI_ERROR_INVALID_PATH",
	ErrCodeInvalidFileFormat:  "ASI_ERROR_INVALID_FILEFORMAT",
	ErrCodeInvalidSize:        "ASI_ERROR_INVALID_SIZE",
	ErrCodeInvalidImageType:   "ASI_ERROR_INVALID_IMGTYPE",
	ErrCodeOutOfBoundary:      "ASI_ERROR_OUTOF_BOUNDARY",
	ErrCodeTimeout:            "ASI_ERROR_TIMEOUT",
	ErrCodeInvalidSequence:    "ASI_ERROR_INVALID_SEQUENCE",
	ErrCodeBufferTooSmall:     "ASI_ERROR_BUFFER_TOO_SMALL",
	ErrCodeVideoModeActive:    "ASI_ERROR_VIDEO_MODE_ACTIVE",
	ErrCodeExposureInProgress: "ASI_ERROR_EXPOSURE_IN_PROGRESS",
	ErrCodeGeneralError:       "ASI_ERROR_GENERAL_ERROR",
	ErrCodeInvalidMode:        "ASI_ERROR_INVALID_MODE",
}

func (e DeviceError) Error() string {
	if s, ok := ErrCodes[e]; ok {
		return fmt.Sprintf("%d - %s", uint(e), s)
	}
	return fmt.Sprintf("%d - UNKNOWN_ERROR_CODE", uint(e))
}

// DevError returns nil if the status code indicates success, otherwise
// an object which prints the code and its string value.
func DevError(code uint) error {
	if code == 0 {
		return nil
	}
	return DeviceError(code)
}
