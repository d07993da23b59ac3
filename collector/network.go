package collector

import (
	"context"
	"fmt"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// Pinger measures round-trip time to one target.
type Pinger interface {
	Target() string
	Ping(ctx context.Context) (time.Duration, error)
}

// icmpPinger sends one echo request per call. Unprivileged mode uses
// UDP "ping sockets" and needs net.ipv4.ping_group_range on Linux.
type icmpPinger struct {
	target     string
	privileged bool
	timeout    time.Duration
}

// newICMPPinger resolves target once. An unresolvable target is
// ErrProbeUnavailable.
func newICMPPinger(target string, privileged bool, timeout time.Duration) (*icmpPinger, error) {
	if _, err := probing.NewPinger(target); err != nil {
		return nil, fmt.Errorf("ping %s: %v: %w", target, err, ErrProbeUnavailable)
	}
	return &icmpPinger{target: target, privileged: privileged, timeout: timeout}, nil
}

func (p *icmpPinger) Target() string { return p.target }

func (p *icmpPinger) Ping(ctx context.Context) (time.Duration, error) {
	pinger, err := probing.NewPinger(p.target)
	if err != nil {
		return 0, err
	}
	pinger.Count = 1
	pinger.Timeout = p.timeout
	pinger.SetPrivileged(p.privileged)

	if err := pinger.RunWithContext(ctx); err != nil {
		return 0, err
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, fmt.Errorf("no echo reply from %s within %v", p.target, p.timeout)
	}
	return stats.AvgRtt, nil
}

// rateCounter turns monotonically increasing byte counters into
// per-second rates.
type rateCounter struct {
	sent, recv uint64
	at         time.Time
	primed     bool
}

// update returns tx and rx bytes per second since the previous call.
// The first call and counter resets yield 0.
func (r *rateCounter) update(sent, recv uint64, now time.Time) (txBps, rxBps float64) {
	if r.primed && now.After(r.at) && sent >= r.sent && recv >= r.recv {
		secs := now.Sub(r.at).Seconds()
		txBps = float64(sent-r.sent) / secs
		rxBps = float64(recv-r.recv) / secs
	}
	r.sent, r.recv, r.at, r.primed = sent, recv, now, true
	return txBps, rxBps
}
