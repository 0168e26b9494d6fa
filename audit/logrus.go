package audit

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogrusLogger writes events as structured log entries. It is the default
// sink for deployments without a dedicated audit store.
type LogrusLogger struct {
	log *logrus.Logger
}

func NewLogrusLogger(log *logrus.Logger) *LogrusLogger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogrusLogger{log: log}
}

func (l *LogrusLogger) RecordVerdict(_ context.Context, ev VerdictEvent) error {
	fields := logrus.Fields{
		"feature_key": ev.FeatureKey,
		"actor_ref":   ev.ActorRef,
		"allowed":     ev.Allowed,
	}
	if ev.Reason != "" {
		fields["reason"] = ev.Reason
	}
	for k, v := range ev.Metadata {
		fields["meta_"+k] = v
	}
	l.log.WithFields(fields).Info("entitlement verdict")
	return nil
}

func (l *LogrusLogger) RecordFault(_ context.Context, ev FaultEvent) error {
	fields := logrus.Fields{"fault": ev.Fault}
	if ev.Err != "" {
		fields["error"] = ev.Err
	}
	for k, v := range ev.Metadata {
		fields["meta_"+k] = v
	}
	entry := l.log.WithFields(fields)
	switch ev.Severity {
	case SeverityError:
		entry.Error("entitlement assembly fault")
	case SeverityWarn:
		entry.Warn("entitlement assembly fault")
	default:
		entry.Info("entitlement assembly fault")
	}
	return nil
}
