package mainboilerplate

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// LogConfig configures handling of application log events.
type LogConfig struct {
	Level  string `long:"level" env:"LEVEL" default:"info" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" choice:"fatal" description:"Logging level"`
	Format string `long:"format" env:"FORMAT" default:"text" choice:"json" choice:"text" choice:"color" description:"Logging output format"`
	Caller bool   `long:"caller" env:"CALLER" description:"Annotate log entries with their calling function"`
}

// InitLog applies the LogConfig to the standard logger.
func InitLog(cfg LogConfig) {
	Must(configureLogger(log.StandardLogger(), cfg), "invalid log configuration")
}

func configureLogger(l *log.Logger, cfg LogConfig) error {
	var lvl, err = log.ParseLevel(cfg.Level)
	if err != nil {
		return errors.WithMessage(err, "Level")
	}

	// Timestamps keep sub-second precision.
	var text = &log.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339Nano}
	switch cfg.Format {
	case "json":
		l.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	case "color":
		text.ForceColors = true
		l.SetFormatter(text)
	case "text", "":
		l.SetFormatter(text)
	default:
		return errors.Errorf("Format: unknown log format %q", cfg.Format)
	}
	l.SetLevel(lvl)
	l.SetReportCaller(cfg.Caller)
	return nil
}
