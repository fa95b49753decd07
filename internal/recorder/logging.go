package recorder

import "github.com/tphakala/streamrecorder/internal/logger"

// GetLogger returns the recorder module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("recorder")
}
