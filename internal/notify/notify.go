// Package notify announces finished runs through shoutrrr services and MQTT.
// Delivery failures are logged and never change the outcome of a run.
package notify

import (
	"context"
	"time"

	"github.com/tphakala/uvotredux/internal/conf"
	"github.com/tphakala/uvotredux/internal/logger"
	"github.com/tphakala/uvotredux/internal/observability/metrics"
)

// Sink delivers a summary to one destination
type Sink interface {
	Name() string
	Send(ctx context.Context, summary *BatchSummary) error
}

// Notifier fans a summary out to every configured sink
type Notifier struct {
	sinks    []Sink
	recorder metrics.Recorder
}

// New creates a Notifier for the given sinks
func New(recorder metrics.Recorder, sinks ...Sink) *Notifier {
	if recorder == nil {
		recorder = metrics.NewNoOpRecorder()
	}
	return &Notifier{sinks: sinks, recorder: recorder}
}

// FromSettings builds the enabled sinks. A sink that cannot be configured is
// logged and left out.
func FromSettings(settings *conf.NotifySettings, recorder metrics.Recorder) *Notifier {
	var sinks []Sink
	if settings.Shoutrrr.Enabled {
		sink, err := NewShoutrrrSink(settings.Shoutrrr.URLs, settings.Shoutrrr.Timeout)
		if err != nil {
			GetLogger().Warn("Shoutrrr notifications disabled", logger.Error(err))
		} else {
			sinks = append(sinks, sink)
		}
	}
	if settings.MQTT.Enabled {
		sinks = append(sinks, NewMQTTSink(NewPahoPublisher(&settings.MQTT), settings.MQTT.Topic))
	}
	return New(recorder, sinks...)
}

// Enabled reports whether any sink is configured
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.sinks) > 0
}

// Notify sends summary to every sink and returns how many accepted it
func (n *Notifier) Notify(ctx context.Context, summary *BatchSummary) int {
	if !n.Enabled() {
		return 0
	}

	delivered := 0
	for _, sink := range n.sinks {
		start := time.Now()
		err := sink.Send(ctx, summary)
		n.recorder.RecordDuration(metrics.OpNotify, time.Since(start).Seconds())
		if err != nil {
			n.recorder.RecordOperation(metrics.OpNotify, metrics.StatusError)
			n.recorder.RecordError(metrics.OpNotify, metrics.ErrorTypeNetwork)
			GetLogger().WithContext(ctx).Warn("Notification failed",
				logger.String("sink", sink.Name()),
				logger.String("target", summary.Target),
				logger.Error(err))
			continue
		}
		n.recorder.RecordOperation(metrics.OpNotify, metrics.StatusSuccess)
		GetLogger().WithContext(ctx).Debug("Notification sent",
			logger.String("sink", sink.Name()),
			logger.String("target", summary.Target))
		delivered++
	}
	return delivered
}
