package engine

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"github.com/mlaggner/vcable/internal/observe"
	"github.com/mlaggner/vcable/pkg/audio"
	"github.com/mlaggner/vcable/pkg/audio/device"
)

// captureSource forwards microphone frames to the remote-service sink,
// substituting a zero buffer of identical byte length while muted so the
// remote link stays alive. onFrame runs on the backend's callback thread and
// performs only bounded work: one state read, one buffer conversion, one
// sink call.
type captureSource struct {
	gate    *MuteGate
	sink    Sink
	metrics *observe.Metrics
	ctx     context.Context

	// Precomputed measurement options; building attribute sets inside the
	// callback would allocate.
	liveAttr  metric.MeasurementOption
	mutedAttr metric.MeasurementOption
}

func newCaptureSource(gate *MuteGate, sink Sink, metrics *observe.Metrics) *captureSource {
	return &captureSource{
		gate:      gate,
		sink:      sink,
		metrics:   metrics,
		ctx:       context.Background(),
		liveAttr:  metric.WithAttributes(observe.Attr("state", "live")),
		mutedAttr: metric.WithAttributes(observe.Attr("state", "muted")),
	}
}

// onFrame is the capture callback. Transient overflow statuses are counted
// and logged at debug level; they never stop capture.
func (c *captureSource) onFrame(in []int16, status device.Status) {
	if status.InputOverflow {
		c.metrics.CaptureOverflows.Add(c.ctx, 1)
		slog.Debug("capture overflow", "samples", len(in))
	}

	if c.gate.Muted() {
		c.metrics.CaptureFrames.Add(c.ctx, 1, c.mutedAttr)
		c.sink(audio.Silence(len(in) * audio.BytesPerSample))
		return
	}

	c.metrics.CaptureFrames.Add(c.ctx, 1, c.liveAttr)
	c.sink(audio.SamplesToBytes(in))
}
