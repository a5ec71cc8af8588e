package xlog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// stdoutWriter turns zap json lines into one short human line per entry
type stdoutWriter struct {
	Color bool
}

func (l *stdoutWriter) Write(p []byte) (n int, err error) {
	entry := map[string]interface{}{}
	if err = json.Unmarshal(p, &entry); err != nil {
		// never fail the multi writer because of the mirror
		return len(p), nil
	}

	fmt.Println(formatEntry(entry, l.Color))
	return len(p), nil
}

func formatEntry(entry map[string]interface{}, color bool) string {
	extra := ""
	for k, v := range entry {
		if strings.HasPrefix(k, "x-") {
			extra += k + ":" + fmt.Sprint(v) + " "
		}
	}
	if len(extra) > 0 {
		extra = "{ " + extra + "}"
	}

	pre, sub := "", ""
	if color {
		pre, sub = FixColor(fmt.Sprint(entry["level"]))
	}

	tStr := fmt.Sprint(entry["time"])
	if t, err := time.Parse("2006-01-02T15:04:05.999Z07:00", tStr); err == nil {
		tStr = t.Format("2006/01/02 15:04:05")
	}

	fname, _ := entry["file"].(string)
	if len(fname) < 20 {
		fname += strings.Repeat(" ", 20-len(fname))
	}
	if len(fname) > 20 {
		fname = fname[len(fname)-20:]
	}

	return fmt.Sprintf(pre+"[%s] %s %s: %s %s"+sub, entry["app"], tStr, fname, entry["msg"], extra)
}
