package host

import (
	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/internal/logger"
	"go.uber.org/zap"
)

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(level algo.NotifyLevel, message string) {
	switch level {
	case algo.NotifyError:
		n.log.Error("notification", zap.String("level", string(level)), zap.String("message", message))
	case algo.NotifyInfo, algo.NotifySuccess:
		n.log.Info("notification", zap.String("level", string(level)), zap.String("message", message))
	default:
		n.log.Info("notification", zap.String("level", string(level)), zap.String("message", message))
	}
}

// MultiNotifier fans a notification out to several notifiers.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(level algo.NotifyLevel, message string) {
	for _, n := range m {
		n.Notify(level, message)
	}
}
