package xlog

const (
	colorReset = "\033[0m"

	colorDebug   = "\033[1;36m"
	colorWarning = "\033[1;33m"
	colorError   = "\033[1;31m"
)

var levelColors = map[string]string{
	"debug":   colorDebug,
	"warn":    colorWarning,
	"warning": colorWarning,
	"error":   colorError,
	"dpanic":  colorError,
	"fatal":   colorError,
}

// FixColor returns the ansi prefix and suffix for a zap level name, info stays uncolored
func FixColor(level string) (string, string) {
	c, ok := levelColors[level]
	if !ok {
		return "", ""
	}
	return c, colorReset
}
