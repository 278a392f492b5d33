package routing

import (
	"context"

	"github.com/upb/llm-failover/models"
	"go.uber.org/zap"
)

// SwitchSink receives switch events
type SwitchSink interface {
	OnSwitch(ctx context.Context, event *models.SwitchEvent)
}

// SwitchNotifySetting reports the enable_switch_notify flag
type SwitchNotifySetting interface {
	SwitchNotifyEnabled() bool
}

// Notifier turns active-provider changes into switch events and fans them out to sinks.
// It is a no-op while switch notifications are disabled.
type Notifier struct {
	settings SwitchNotifySetting
	sinks    []SwitchSink
	logger   *zap.Logger
}

// NewNotifier creates a notifier. A nil settings source means notifications are always on.
func NewNotifier(settings SwitchNotifySetting, logger *zap.Logger, sinks ...SwitchSink) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		settings: settings,
		sinks:    sinks,
		logger:   logger,
	}
}

// OnRoutingChanged emits one switch event per call
func (n *Notifier) OnRoutingChanged(ctx context.Context, platform models.Platform, previous, next *int64, reason models.SwitchReason) {
	if n.settings != nil && !n.settings.SwitchNotifyEnabled() {
		n.logger.Debug("switch notification suppressed", zap.String("platform", platform.String()))
		return
	}

	event := models.NewSwitchEvent(platform, previous, next, reason)
	for _, sink := range n.sinks {
		sink.OnSwitch(ctx, event)
	}
}

// LogSink writes switch events to the application log
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a log sink
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// OnSwitch logs the event
func (s *LogSink) OnSwitch(_ context.Context, event *models.SwitchEvent) {
	fields := []zap.Field{
		zap.String("event_id", event.ID.String()),
		zap.String("platform", event.Platform.String()),
		zap.String("reason", string(event.Reason)),
	}
	if event.PreviousProviderID != nil {
		fields = append(fields, zap.Int64("previous_provider_id", *event.PreviousProviderID))
	}
	if event.NewProviderID != nil {
		fields = append(fields, zap.Int64("provider_id", *event.NewProviderID))
		s.logger.Info("switched active provider", fields...)
		return
	}
	s.logger.Warn("no eligible provider", fields...)
}

// SinkFunc adapts a function to SwitchSink
type SinkFunc func(ctx context.Context, event *models.SwitchEvent)

// OnSwitch calls f
func (f SinkFunc) OnSwitch(ctx context.Context, event *models.SwitchEvent) {
	f(ctx, event)
}
