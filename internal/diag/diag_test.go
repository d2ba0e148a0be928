package diag

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func newTestLogger(buf *bytes.Buffer) *Logger {
	l := New(buf)
	l.now = func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }
	return l
}

func TestErrorfIncludesPrefixAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)

	l.Errorf("%s is not set", "ID_FILE")

	line := buf.String()
	if !strings.Contains(line, "clade") {
		t.Errorf("missing prefix: %q", line)
	}
	if !strings.Contains(line, "ERROR") {
		t.Errorf("missing level: %q", line)
	}
	if !strings.Contains(line, "ID_FILE is not set") {
		t.Errorf("missing message: %q", line)
	}
}

func TestWithFieldsAttachesKeyValues(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)

	l.WithFields("open failed", Field("path", "/etc/passwd"), Field("errno", "13"))

	line := buf.String()
	if !strings.Contains(line, `path="/etc/passwd"`) {
		t.Errorf("missing path field: %q", line)
	}
	if !strings.Contains(line, `errno="13"`) {
		t.Errorf("missing errno field: %q", line)
	}
}

func TestLevelString(t *testing.T) {
	cases := map[Level]string{
		DEBUG: "DEBUG",
		INFO:  "INFO",
		WARN:  "WARN",
		ERROR: "ERROR",
		FATAL: "FATAL",
	}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Errorf("Level(%d).String() = %q, want %q", level, got, want)
		}
	}
}
