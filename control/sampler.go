package control

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Monitor supplies system pressure readings. Both values are in [0,1].
// Implementations are external collaborators (procfs readers, cgroup stats,
// test fakes); the controller only consumes the samples.
type Monitor interface {
	Usage(ctx context.Context) (cpu, mem float64, err error)
}

// Sampler drives a Controller on a fixed cadence: every tick it reads the
// monitor, converts the Observe() accumulator into a throughput rate, and
// feeds one Sample into the controller.
type Sampler struct {
	ctrl  *Controller
	mon   Monitor
	every time.Duration
	log   *slog.Logger
}

// NewSampler wires a controller to a monitor. every must be > 0.
// A nil logger discards output.
func NewSampler(ctrl *Controller, mon Monitor, every time.Duration, log *slog.Logger) *Sampler {
	if every <= 0 {
		panic("sampler interval must be > 0")
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sampler{ctrl: ctrl, mon: mon, every: every, log: log}
}

// Run blocks until ctx is cancelled, applying one feedback cycle per tick.
// Monitor failures skip the cycle (the budget holds) and are logged.
func (s *Sampler) Run(ctx context.Context) {
	t := time.NewTicker(s.every)
	defer t.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			elapsed := now.Sub(last)
			last = now
			if elapsed <= 0 {
				elapsed = s.every
			}

			cpu, mem, err := s.mon.Usage(ctx)
			if err != nil {
				s.log.Warn("pressure sample failed, holding budget", "error", err)
				continue
			}

			throughput := float64(s.ctrl.drainProcessed()) / elapsed.Seconds()
			s.ctrl.Sample(throughput, cpu, mem)
			s.log.Debug("feedback cycle applied",
				"throughput", throughput,
				"cpu", cpu,
				"mem", mem,
				"limit", s.ctrl.Limit(),
			)
		}
	}
}
