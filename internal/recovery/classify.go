package recovery

import "strings"

var fatalPatterns = []string{
	"not found",
	"404",
	"forbidden",
	"403",
	"unauthorized",
	"401",
	"invalid url",
	"malformed",
	"unsupported format",
	"codec not found",
}

var transientPatterns = []string{
	"broken pipe",
	"connection reset",
	"connection timed out",
	"network is unreachable",
	"temporary failure",
	"connection refused",
	"timeout",
	"connection lost",
	"connection dropped",
	"av_interleaved_write_frame",
	"error writing trailer",
	"input/output error",
	"resource temporarily unavailable",
}

// IsRecoverable classifies a playback failure. Known-fatal patterns win over
// transient ones; anything unrecognised is treated as transient.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range fatalPatterns {
		if strings.Contains(msg, p) {
			return false
		}
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return true
}
