// Package reclog assembles the two wire record formats described in
// the wire record formats: the "||"-delimited exec record and the space-delimited
// open record. It has no knowledge of identity allocation, locking,
// or sinks — it is a pure string builder, grounded on
// clade/intercept/unix/data.c's prepare_data, but replacing that
// function's hand-computed buffer-size arithmetic (flagged as an
// off-by-one hazard) with strings.Builder,
// which owns its own growth.
package reclog

import (
	"strconv"
	"strings"
)

// execDelimiter separates fields within one exec record.
const execDelimiter = "||"

// BuildExecLine assembles one exec record: cwd, parentID, exe, then
// one field per argument, each newline-escaped, joined by "||" and
// terminated by a single '\n', in the canonical field order.
func BuildExecLine(cwd string, parentID int, exe string, args []string) string {
	var b strings.Builder

	b.WriteString(cwd)
	b.WriteString(execDelimiter)
	b.WriteString(strconv.Itoa(parentID))
	b.WriteString(execDelimiter)
	b.WriteString(exe)

	for _, arg := range args {
		b.WriteString(execDelimiter)
		b.WriteString(EscapeNewlines(arg))
	}

	b.WriteByte('\n')
	return b.String()
}

// BuildOpenLine assembles one open record:
// "<cmd_id> <exists> <flags> <path>\n". path is written verbatim —
// the path is written verbatim, unescaped.
func BuildOpenLine(cmdID int, exists bool, flags int, path string) string {
	var b strings.Builder

	b.WriteString(strconv.Itoa(cmdID))
	b.WriteByte(' ')
	if exists {
		b.WriteByte('1')
	} else {
		b.WriteByte('0')
	}
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(flags))
	b.WriteByte(' ')
	b.WriteString(path)
	b.WriteByte('\n')
	return b.String()
}

// EscapeNewlines replaces every newline in s with the two-character
// sequence \n, treating a CR+LF or LF+CR pair as a single newline.
// Matches data.c's expand_newlines, including its CR/LF pairing.
func EscapeNewlines(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\n':
			b.WriteString(`\n`)
			if i+1 < len(s) && s[i+1] == '\r' {
				i++
			}
		case '\r':
			b.WriteString(`\n`)
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// UnescapeNewlines reverses EscapeNewlines, recovering the original
// bytes modulo the CR/LF-pair collapse (a decoder cannot tell a
// collapsed CRLF from a lone LF, by construction). Used by tests and
// by any downstream consumer that wants the original argument bytes
// back.
func UnescapeNewlines(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && s[i+1] == 'n' {
			b.WriteByte('\n')
			i++
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

