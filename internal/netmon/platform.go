package netmon

import (
	"context"
	"net"
	"time"
)

// SystemPlatform reports local network presence by polling the host's
// interfaces. An interface that is up, not loopback, and has an address
// counts as "online". It emits a value on Events only when the flag flips.
type SystemPlatform struct {
	ch     chan bool
	cancel context.CancelFunc
}

// NewSystemPlatform creates a platform source polling at the given interval.
func NewSystemPlatform(pollInterval time.Duration) *SystemPlatform {
	p := &SystemPlatform{ch: make(chan bool, 4)}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.poll(ctx, pollInterval)
	return p
}

// Online reports whether any usable interface is up right now.
func (p *SystemPlatform) Online() bool {
	return hasUsableInterface()
}

// Events returns the online/offline transition stream.
func (p *SystemPlatform) Events() <-chan bool {
	return p.ch
}

// Close stops the poller.
func (p *SystemPlatform) Close() {
	p.cancel()
}

func (p *SystemPlatform) poll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := p.Online()
	for {
		select {
		case <-ticker.C:
			now := hasUsableInterface()
			if now != last {
				last = now
				select {
				case p.ch <- now:
				default:
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func hasUsableInterface() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}
		return true
	}
	return false
}
