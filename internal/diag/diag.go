package diag

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Enabled reports whether the named diagnostic flag is switched on via the
// environment ("1" enables it). Flags gate verbosity only; nothing in the
// pipeline depends on them.
func Enabled(name string) bool {
	return os.Getenv(name) == "1"
}

// Section marks the start of a labelled pipeline phase.
func Section(title string) {
	logrus.Infof("===== %s =====", title)
}

// KV logs a single key/value fact.
func KV(key string, value any) {
	logrus.Infof("%s: %v", key, value)
}

// Block dumps a labelled chunk of free-form text (a prompt, a raw model
// response) line by line so it stays readable in the log stream.
func Block(label string, content string) {
	logrus.Infof("-- %s --", label)
	for _, line := range strings.Split(content, "\n") {
		logrus.Info(line)
	}
}

// Trunc shortens long payloads for logging, noting how much was cut.
func Trunc(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + fmt.Sprintf("\n... [truncated %d chars]", len(s)-n)
}
