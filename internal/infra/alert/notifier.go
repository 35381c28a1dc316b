// Package alert fans operator alerts out to e-mail, the message broker and
// the error tracker. Delivery failures are logged, never returned.
package alert

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xavierca1/leadsync/internal/usecase"
)

const defaultDeliveryTimeout = 5 * time.Second

type Sink interface {
	Deliver(ctx context.Context, alert usecase.Alert) error
}

// SinkFunc adapts a plain function, e.g. (*mail.EmailSender).SendAlert.
type SinkFunc func(ctx context.Context, alert usecase.Alert) error

func (f SinkFunc) Deliver(ctx context.Context, alert usecase.Alert) error { return f(ctx, alert) }

type route struct {
	name        string
	sink        Sink
	minSeverity usecase.Severity
}

type Notifier struct {
	routes  []route
	logger  logrus.FieldLogger
	Timeout time.Duration
}

func NewNotifier(logger logrus.FieldLogger) *Notifier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Notifier{logger: logger.WithField("component", "alerts"), Timeout: defaultDeliveryTimeout}
}

// Add registers a sink that receives alerts at or above minSeverity.
func (n *Notifier) Add(name string, sink Sink, minSeverity usecase.Severity) *Notifier {
	n.routes = append(n.routes, route{name: name, sink: sink, minSeverity: minSeverity})
	return n
}

func (n *Notifier) Alert(ctx context.Context, a usecase.Alert) {
	log := n.logger.WithFields(logrus.Fields{"severity": a.Severity, "type": a.Type})
	switch a.Severity {
	case usecase.SeverityCritical:
		log.Error("🚨 " + a.Message)
	case usecase.SeverityWarning:
		log.Warn("⚠️ " + a.Message)
	default:
		log.Info(a.Message)
	}

	for _, r := range n.routes {
		if rank(a.Severity) < rank(r.minSeverity) {
			continue
		}
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.Timeout)
		err := r.sink.Deliver(dctx, a)
		cancel()
		if err != nil {
			log.WithField("sink", r.name).WithError(err).Warn("alert delivery failed")
		}
	}
}

func rank(s usecase.Severity) int {
	switch s {
	case usecase.SeverityCritical:
		return 2
	case usecase.SeverityWarning:
		return 1
	}
	return 0
}
