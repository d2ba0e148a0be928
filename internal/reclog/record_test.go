package reclog

import "testing"

func TestBuildExecLineRootEmission(t *testing.T) {
	got := BuildExecLine("/build", 0, "/usr/bin/gcc", []string{"-c", "a.c"})
	want := "/build||0||/usr/bin/gcc||-c||a.c\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildExecLineChild(t *testing.T) {
	got := BuildExecLine("/build", 1, "/bin/ld", []string{"a.o"})
	want := "/build||1||/bin/ld||a.o\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildExecLineNoArgs(t *testing.T) {
	got := BuildExecLine("/build", 0, "/bin/true", nil)
	want := "/build||0||/bin/true\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildExecLineEscapesNewlineInArg(t *testing.T) {
	got := BuildExecLine("/build", 0, "/usr/bin/printf", []string{"hello\nworld"})
	want := "/build||0||/usr/bin/printf||hello\\nworld\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildOpenLine(t *testing.T) {
	got := BuildOpenLine(3, true, 0x41, "/etc/passwd")
	want := "3 1 65 /etc/passwd\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildOpenLineNotExists(t *testing.T) {
	got := BuildOpenLine(3, false, 0, "/tmp/out")
	want := "3 0 0 /tmp/out\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEscapeNewlinesLF(t *testing.T) {
	if got := EscapeNewlines("a\nb"); got != `a\nb` {
		t.Errorf("got %q", got)
	}
}

func TestEscapeNewlinesCRLFCollapsesToOne(t *testing.T) {
	if got := EscapeNewlines("a\r\nb"); got != `a\nb` {
		t.Errorf("CRLF should collapse to one escape, got %q", got)
	}
}

func TestEscapeNewlinesLFCRCollapsesToOne(t *testing.T) {
	if got := EscapeNewlines("a\n\rb"); got != `a\nb` {
		t.Errorf("LFCR should collapse to one escape, got %q", got)
	}
}

func TestEscapeNewlinesNoNewlineUnchanged(t *testing.T) {
	if got := EscapeNewlines("plain"); got != "plain" {
		t.Errorf("got %q", got)
	}
}

func TestEscapeNewlinesConsecutivePairsEachCollapse(t *testing.T) {
	got := EscapeNewlines("a\r\n\r\nb")
	want := `a\n\nb`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestUnescapeRoundTrip(t *testing.T) {
	original := "hello\nworld"
	escaped := EscapeNewlines(original)
	if got := UnescapeNewlines(escaped); got != original {
		t.Errorf("round trip: got %q, want %q", got, original)
	}
}

func TestUnescapeRoundTripCRLFCollapsesModuloPairing(t *testing.T) {
	// A decoder cannot distinguish a collapsed CRLF from a lone LF,
	// by construction (modulo the CR/LF-pair collapse).
	escaped := EscapeNewlines("a\r\nb")
	if got := UnescapeNewlines(escaped); got != "a\nb" {
		t.Errorf("got %q, want %q", got, "a\nb")
	}
}

func TestFieldContainsNoLiteralNewlineOrCR(t *testing.T) {
	for _, arg := range []string{"a\nb", "a\rb", "a\r\nb", "a\n\rb"} {
		escaped := EscapeNewlines(arg)
		for _, r := range escaped {
			if r == '\n' || r == '\r' {
				t.Errorf("escaped field %q still contains a raw newline byte", escaped)
			}
		}
	}
}
