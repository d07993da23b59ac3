package collector

import (
	"errors"
	"fmt"
)

// ErrProbeUnavailable means an optional telemetry source (GPU driver,
// Docker daemon, ping target) is not usable on this machine. The
// capability is disabled for the rest of the process lifetime.
var ErrProbeUnavailable = errors.New("probe unavailable")

// TransientProbeError is a single failed sub-read within one tick. The
// previous value of Metric is reused for that tick.
type TransientProbeError struct {
	Metric string
	Err    error
}

func (e *TransientProbeError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Metric, e.Err)
}

func (e *TransientProbeError) Unwrap() error { return e.Err }

// FatalInitError means the OS metrics API itself cannot be used. The
// process must exit before it starts serving.
type FatalInitError struct {
	Err error
}

func (e *FatalInitError) Error() string {
	return fmt.Sprintf("system metrics unavailable: %v", e.Err)
}

func (e *FatalInitError) Unwrap() error { return e.Err }

// FatalProbeError is returned by a source when sampling can not go on.
// It stops the sampler loop.
type FatalProbeError struct {
	Err error
}

func (e *FatalProbeError) Error() string {
	return fmt.Sprintf("fatal probe error: %v", e.Err)
}

func (e *FatalProbeError) Unwrap() error { return e.Err }
