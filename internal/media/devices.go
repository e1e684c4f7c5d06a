package media

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/Abhishek8642/MindPal-1.3/internal/fault"
)

// LocalDevices claims the host's capture devices. The actual frames flow
// through the browser's embedded session view; the daemon only models the
// exclusive claim so a second session cannot grab the devices mid-call.
type LocalDevices struct {
	videoGlob string
	audioDir  string

	mu    sync.Mutex
	inUse bool
}

// NewLocalDevices creates a device source probing the default Linux device
// nodes.
func NewLocalDevices() *LocalDevices {
	return &LocalDevices{
		videoGlob: "/dev/video*",
		audioDir:  "/dev/snd",
	}
}

// Acquire claims the camera and microphone. Fails with MediaAccessDenied
// when no capture device is present or the devices are already claimed.
func (d *LocalDevices) Acquire(_ context.Context) (*Stream, error) {
	const op = "media.acquire"

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inUse {
		return nil, fault.New(fault.MediaAccessDenied, op, "capture devices already in use")
	}

	cams, _ := filepath.Glob(d.videoGlob)
	if len(cams) == 0 {
		return nil, fault.New(fault.MediaAccessDenied, op, "no camera device found")
	}
	if _, err := os.Stat(d.audioDir); err != nil {
		return nil, fault.New(fault.MediaAccessDenied, op, "no audio device found")
	}

	d.inUse = true
	tracks := []*Track{NewTrack(Video), NewTrack(Audio)}
	return NewStream(tracks, func() {
		d.mu.Lock()
		d.inUse = false
		d.mu.Unlock()
	}), nil
}
