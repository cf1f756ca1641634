package opensearch

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the root logger. debug forces the debug level regardless of
// logging.level.
func NewLogger(cfg LoggingConfig, debug bool, out io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(out)

	switch cfg.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl := logrus.InfoLevel
	if cfg.Level != "" {
		var err error
		if lvl, err = logrus.ParseLevel(cfg.Level); err != nil {
			return nil, fmt.Errorf("logging.level: %w", err)
		}
	}
	if debug {
		lvl = logrus.DebugLevel
	}
	log.SetLevel(lvl)
	return log, nil
}
