package telemetry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/wormbot-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/wormbot-core/internal/periphery"
)

// eventBuffer is the number of queued MQTT events before new ones are
// dropped.
const eventBuffer = 64

// Publisher sends JSON messages. Satisfied by *mqtt.Client.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// PointWriter records time-series points. Satisfied by *influxdb.Client.
type PointWriter interface {
	WritePulse(periphery, axis string, pulse int)
	WriteApply(outcome, state string, duration time.Duration)
	WriteCapture(periphery string, bytes int, duration time.Duration)
}

// Logger is the logging interface used by the reporter.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Sinks selects where telemetry goes. Nil fields are disabled.
type Sinks struct {
	MQTT    Publisher
	Influx  PointWriter
	History periphery.HistoryRecorder
}

// PulsePayload is published on wormbot/state/pantilt/<axis>.
type PulsePayload struct {
	Periphery string    `json:"periphery"`
	Axis      string    `json:"axis"`
	PulseUS   int       `json:"pulse_us"`
	Released  bool      `json:"released"`
	Timestamp time.Time `json:"ts"`
}

// RegistryPayload is published retained on wormbot/state/registry.
type RegistryPayload struct {
	State     periphery.State        `json:"state"`
	LastApply *periphery.ApplyRecord `json:"last_apply,omitempty"`
	Timestamp time.Time              `json:"ts"`
}

// CapturePayload is published on wormbot/event/camera/capture.
type CapturePayload struct {
	Periphery  string    `json:"periphery"`
	Bytes      int       `json:"bytes"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"ts"`
}

type event struct {
	topic    string
	payload  any
	retained bool
}

// Reporter fans periphery activity out to MQTT, InfluxDB and the apply
// history.
//
// InfluxDB points are written inline (the client batches). MQTT
// messages are published from Run: pulse updates are coalesced per axis
// so a fast walk publishes the latest value rather than every step, and
// other events are queued.
//
// Thread Safety:
//   - All On* and RecordApply methods are safe for concurrent use.
type Reporter struct {
	pantilt string
	sinks   Sinks
	topics  mqtt.Topics
	logger  Logger
	now     func() time.Time

	mu        sync.Mutex
	pulses    map[string]PulsePayload
	lastApply *periphery.ApplyRecord
	state     periphery.State

	events chan event
	wake   chan struct{}
}

// New creates a reporter. pantilt names the pan-tilt periphery used in
// pulse payloads and tags.
func New(pantilt string, sinks Sinks) *Reporter {
	return &Reporter{
		pantilt: pantilt,
		sinks:   sinks,
		logger:  noopLogger{},
		now:     time.Now,
		pulses:  make(map[string]PulsePayload),
		events:  make(chan event, eventBuffer),
		wake:    make(chan struct{}, 1),
	}
}

// SetLogger sets the reporter logger.
func (r *Reporter) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// OnPulse records a pulse written to a pan-tilt axis.
func (r *Reporter) OnPulse(axis string, pulse int) {
	if r.sinks.Influx != nil {
		r.sinks.Influx.WritePulse(r.pantilt, axis, pulse)
	}
	if r.sinks.MQTT == nil {
		return
	}

	r.mu.Lock()
	r.pulses[axis] = PulsePayload{
		Periphery: r.pantilt,
		Axis:      axis,
		PulseUS:   pulse,
		Released:  pulse == 0,
		Timestamp: r.now(),
	}
	r.mu.Unlock()
	r.signal()
}

// OnCapture records a completed camera capture.
func (r *Reporter) OnCapture(name string, size int, took time.Duration) {
	if r.sinks.Influx != nil {
		r.sinks.Influx.WriteCapture(name, size, took)
	}
	r.enqueue(event{
		topic: r.topics.CameraCapture(),
		payload: CapturePayload{
			Periphery:  name,
			Bytes:      size,
			DurationMS: took.Milliseconds(),
			Timestamp:  r.now(),
		},
	})
}

// OnRegistryState publishes a registry state change.
func (r *Reporter) OnRegistryState(s periphery.State) {
	r.mu.Lock()
	r.state = s
	payload := r.registryPayload()
	r.mu.Unlock()
	r.enqueue(event{topic: r.topics.RegistryState(), payload: payload, retained: true})
}

// RecordApply implements periphery.HistoryRecorder. The record is
// stored in the history sink, if any, and reported to InfluxDB and MQTT.
func (r *Reporter) RecordApply(ctx context.Context, rec *periphery.ApplyRecord) error {
	var err error
	if r.sinks.History != nil {
		err = r.sinks.History.RecordApply(ctx, rec)
	}
	if r.sinks.Influx != nil {
		r.sinks.Influx.WriteApply(string(rec.Outcome), rec.State.String(), rec.FinishedAt.Sub(rec.StartedAt))
	}

	r.mu.Lock()
	copied := *rec
	r.lastApply = &copied
	r.state = rec.State
	payload := r.registryPayload()
	r.mu.Unlock()
	r.enqueue(event{topic: r.topics.RegistryState(), payload: payload, retained: true})

	return err
}

func (r *Reporter) registryPayload() RegistryPayload {
	return RegistryPayload{State: r.state, LastApply: r.lastApply, Timestamp: r.now()}
}

func (r *Reporter) enqueue(ev event) {
	if r.sinks.MQTT == nil {
		return
	}
	select {
	case r.events <- ev:
	default:
		r.logger.Warn("telemetry queue full, dropping event", "topic", ev.topic)
	}
}

func (r *Reporter) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run publishes queued MQTT messages until ctx is cancelled, then
// publishes whatever is still pending and returns.
func (r *Reporter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case ev := <-r.events:
			r.publish(ev)
		case <-r.wake:
			r.publishPulses()
		}
	}
}

func (r *Reporter) drain() {
	for {
		select {
		case ev := <-r.events:
			r.publish(ev)
		default:
			r.publishPulses()
			return
		}
	}
}

func (r *Reporter) publishPulses() {
	r.mu.Lock()
	pending := make([]PulsePayload, 0, len(r.pulses))
	for _, p := range r.pulses {
		pending = append(pending, p)
	}
	clear(r.pulses)
	r.mu.Unlock()

	sort.Slice(pending, func(i, j int) bool { return pending[i].Axis < pending[j].Axis })
	for _, p := range pending {
		r.publish(event{topic: r.topics.PanTiltAxis(p.Axis), payload: p})
	}
}

func (r *Reporter) publish(ev event) {
	if err := r.sinks.MQTT.PublishJSON(ev.topic, ev.payload, ev.retained); err != nil {
		r.logger.Debug("telemetry publish failed", "topic", ev.topic, "error", err)
	}
}
