// Package signaler runs the threshold signaling loop against hardware.
// Each cycle asks package logic for its steps and executes them in order:
// pin writes, console lines, and blocking sleeps.
package signaler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/threshold-signaler/internal/adc"
	"github.com/sweeney/threshold-signaler/internal/console"
	"github.com/sweeney/threshold-signaler/internal/gpio"
	"github.com/sweeney/threshold-signaler/internal/logic"
	"github.com/sweeney/threshold-signaler/internal/mqtt"
	"github.com/sweeney/threshold-signaler/internal/status"
)

// Options wires a Runner. Publisher, MQTTStatus, Tracker and Network are optional.
type Options struct {
	Variant logic.Variant
	Analog  logic.AnalogConfig
	Digital logic.DigitalConfig

	Output       gpio.Output
	AnalogInput  adc.Reader // analog variant
	DigitalInput gpio.Input // digital variant
	Console      console.Console

	Publisher  mqtt.Publisher
	MQTTStatus mqtt.ConnectionStatus
	Tracker    *status.Tracker
	Network    func() *status.NetworkInfo
	Heartbeat  time.Duration

	Sleeper Sleeper
	Now     func() time.Time
}

// CycleResult describes one completed cycle.
type CycleResult struct {
	Cycle     int64
	Raw       int
	Voltage   float64
	InputHigh bool
	ReadErr   error
	Triggered bool
	// Period is the sum of the cycle's sleeps; Elapsed is the wall time the
	// cycle took on the runner's clock, side effects included.
	Period  time.Duration
	Elapsed time.Duration
}

// Runner executes signaling cycles. It is not safe for concurrent use; the
// loop owns the pins and the console.
type Runner struct {
	opts  Options
	latch *logic.Latch
	cycle int64
}

// New validates opts for the selected variant and returns a Runner.
func New(opts Options) (*Runner, error) {
	var errs []error
	if opts.Output == nil {
		errs = append(errs, errors.New("output pin is required"))
	}
	if opts.Console == nil {
		errs = append(errs, errors.New("console is required"))
	}
	switch opts.Variant {
	case logic.VariantAnalog:
		if opts.AnalogInput == nil {
			errs = append(errs, errors.New("analog variant requires an analog input"))
		}
		if err := opts.Analog.Validate(); err != nil {
			errs = append(errs, err)
		}
	case logic.VariantDigital:
		if opts.DigitalInput == nil {
			errs = append(errs, errors.New("digital variant requires a digital input"))
		}
		if err := opts.Digital.Validate(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("unknown variant %q", opts.Variant))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("signaler: %w", err)
	}

	if opts.Sleeper == nil {
		opts.Sleeper = TimerSleeper{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Runner{
		opts:  opts,
		latch: logic.NewLatch(opts.Variant, opts.Now()),
	}, nil
}

// Counts returns the cycle and transition counters.
func (r *Runner) Counts() logic.EventCounts {
	return r.latch.EventCountsSnapshot()
}

// Run executes cycles until ctx is cancelled. Cancellation is the normal way
// to stop and is not reported as an error.
func (r *Runner) Run(ctx context.Context) error {
	log.Info().
		Str("variant", string(r.opts.Variant)).
		Dur("heartbeat", r.opts.Heartbeat).
		Msg("signaler started")

	for {
		res, err := r.RunCycle(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Info().Int64("cycle", res.Cycle).Msg("signaler stopped")
				return nil
			}
			return err
		}
	}
}

// RunCycle executes exactly one cycle. The only error it returns is the
// context's, when cancelled mid-cycle; hardware errors are logged.
func (r *Runner) RunCycle(ctx context.Context) (CycleResult, error) {
	if err := ctx.Err(); err != nil {
		return CycleResult{Cycle: r.cycle}, err
	}
	r.cycle++
	res := CycleResult{Cycle: r.cycle}
	start := r.opts.Now()

	var err error
	switch r.opts.Variant {
	case logic.VariantAnalog:
		err = r.analogCycle(ctx, &res)
	case logic.VariantDigital:
		err = r.digitalCycle(ctx, &res)
	}
	if err != nil {
		return res, err
	}

	r.latch.CompleteCycle(res.Triggered)
	log.Debug().
		Int64("cycle", res.Cycle).
		Int("raw", res.Raw).
		Float64("voltage", res.Voltage).
		Bool("triggered", res.Triggered).
		Dur("period", res.Period).
		Msg("cycle complete")

	r.afterCycle(res)
	res.Elapsed = r.opts.Now().Sub(start)
	return res, nil
}

func (r *Runner) analogCycle(ctx context.Context, res *CycleResult) error {
	cfg := r.opts.Analog
	raw, err := r.opts.AnalogInput.Read()
	if err != nil {
		res.ReadErr = err
		log.Error().Err(err).Int64("cycle", res.Cycle).Msg("analog read error")
		return r.execute(ctx, cfg.Idle(), res)
	}
	res.Raw = raw
	res.Voltage = cfg.Voltage(raw)
	res.Triggered = cfg.Triggered(res.Voltage)
	return r.execute(ctx, cfg.Cycle(raw), res)
}

func (r *Runner) digitalCycle(ctx context.Context, res *CycleResult) error {
	cfg := r.opts.Digital
	if err := r.execute(ctx, cfg.Prelude(), res); err != nil {
		return err
	}

	high, err := r.opts.DigitalInput.Read()
	if err != nil {
		// An unreadable input counts as LOW: the output stays HIGH.
		res.ReadErr = err
		log.Error().Err(err).Int64("cycle", res.Cycle).Msg("gpio read error")
	}
	res.InputHigh = high
	res.Triggered = high
	if high {
		res.Raw = 1
	}
	return r.execute(ctx, cfg.Decide(high), res)
}

func (r *Runner) execute(ctx context.Context, steps []logic.Step, res *CycleResult) error {
	for _, s := range steps {
		switch s.Kind {
		case logic.StepWrite:
			r.write(s.Level, res)
		case logic.StepEmit:
			if err := r.opts.Console.WriteLine(s.Line); err != nil {
				log.Warn().Err(err).Str("line", s.Line).Msg("console write error")
			}
		case logic.StepSleep:
			if err := r.opts.Sleeper.Sleep(ctx, s.Duration); err != nil {
				return err
			}
			res.Period += s.Duration
		}
	}
	return nil
}

func (r *Runner) write(level logic.Level, res *CycleResult) {
	if err := r.opts.Output.Set(level); err != nil {
		log.Error().Err(err).Str("level", level.String()).Msg("gpio write error")
	}
	if r.opts.Tracker != nil {
		r.opts.Tracker.SetOutput(level)
	}

	event := r.latch.Apply(level, r.opts.Now(), res.Cycle, res.Raw, res.Voltage)
	if event == nil {
		return
	}
	log.Info().
		Str("event", string(event.Type)).
		Int64("cycle", event.Cycle).
		Int("raw", event.Raw).
		Float64("voltage", event.Voltage).
		Msg("output transition")
	if r.opts.Publisher != nil {
		if err := r.opts.Publisher.Publish(*event); err != nil {
			// Don't stop the loop on publish failure
			log.Warn().Err(err).Msg("publish error")
		}
	}
}

func (r *Runner) afterCycle(res CycleResult) {
	t := r.opts.Now()
	tracker := r.opts.Tracker
	if tracker != nil {
		level, known := r.latch.Level()
		reading := status.Reading{Raw: res.Raw, Voltage: res.Voltage, Time: t, Valid: res.ReadErr == nil}
		tracker.Update(level, known, reading, r.latch.EventCountsSnapshot())
		if r.opts.MQTTStatus != nil {
			tracker.SetMQTTConnected(r.opts.MQTTStatus.IsConnected())
			tracker.SetMQTTBuffered(r.opts.MQTTStatus.Buffered())
		}
	}

	hb := r.latch.CheckHeartbeat(t, r.opts.Heartbeat)
	if hb == nil {
		return
	}
	log.Info().
		Dur("uptime", hb.Uptime).
		Int64("cycles", hb.Counts.Cycles).
		Int64("triggers", hb.Counts.Triggers).
		Int64("high", hb.Counts.High).
		Int64("low", hb.Counts.Low).
		Msg("heartbeat")

	if r.opts.Publisher == nil {
		return
	}
	event := mqtt.SystemEvent{
		Timestamp: hb.Timestamp,
		Event:     "HEARTBEAT",
	}
	if tracker != nil {
		if r.opts.Network != nil {
			if net := r.opts.Network(); net != nil {
				tracker.SetNetwork(net)
			}
		}
		event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "HEARTBEAT", "")
	}
	if err := r.opts.Publisher.PublishSystem(event); err != nil {
		log.Warn().Err(err).Msg("heartbeat publish error")
	}
}
