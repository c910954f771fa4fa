package database

import (
	"context"

	"github.com/hbomb79/Marquee/pkg/logger"
	sqldblogger "github.com/simukti/sqldb-logger"
)

// SqlLogger routes sqldb-logger output through the application logger.
type SqlLogger struct {
	logger logger.Logger
}

func (l *SqlLogger) Log(_ context.Context, level sqldblogger.Level, msg string, data map[string]any) {
	switch level {
	case sqldblogger.LevelError:
		l.logger.Errorf("%s: %v\n", msg, data)
	case sqldblogger.LevelTrace:
		l.logger.Verbosef("%s: %v\n", msg, data)
	default:
		if query, ok := data["query"]; ok {
			l.logger.Debugf("%s (%vms) %s\n", msg, data["duration"], query)
			return
		}
		l.logger.Debugf("%s (%vms)\n", msg, data["duration"])
	}
}
