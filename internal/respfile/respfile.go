// Package respfile expands Windows response files (@name tokens) on
// a command line, the way the Windows debug driver must before
// splitting the line into argv fields.
//
// Grounded on clade/intercept/windows/debugger.cpp's
// ProcessCommandFiles — rewritten here as a pure function over
// strings plus an injected file reader, instead of raw wide-character
// pointer splicing, so it is testable without a real filesystem or a
// Windows target.
package respfile

import (
	"strings"
	"unicode/utf16"
)

// FileReader reads the named response file's raw bytes. In
// production this is os.ReadFile; tests inject an in-memory map.
type FileReader func(name string) ([]byte, bool)

// Expand scans cmdLine left to right for "@name" tokens and splices
// in the named file's content, one space-joined line at a time. A
// "@name" whose file does not exist is left alone — a missing
// response file is not an error, the token is just an
// ordinary argument. Expansion repeats until no "@" remains or the
// remaining ones do not name existing files.
//
// Wherever "/link" appears on a response-file line, it and the rest of
// that line are moved, verbatim, to the end of the overall command
// line (the "/link reordering" rule), after any earlier "/link"
// clauses also pending relocation.
func Expand(cmdLine string, read FileReader) string {
	var linkTail []string
	searchFrom := 0

	for {
		start, name, quoted := findToken(cmdLine, searchFrom)
		if start == -1 {
			break
		}

		tokenLen := len(name) + 1 // '@' + name
		if quoted {
			tokenLen += 2 // surrounding quotes
		}

		raw, ok := read(name)
		if !ok {
			// Not a response file: leave the token as-is and resume
			// scanning past it, so a later legitimate token still matches.
			searchFrom = start + tokenLen
			continue
		}

		content := decode(raw)
		replacement, link := joinLinesExtractingLink(content)
		linkTail = append(linkTail, link...)

		cmdLine = cmdLine[:start] + replacement + cmdLine[start+tokenLen:]
		searchFrom = start // replacement may itself contain "@file" tokens
	}

	if len(linkTail) > 0 {
		cmdLine = strings.TrimRight(cmdLine, " ") + " " + strings.Join(linkTail, " ")
	}
	return cmdLine
}

// findToken locates the next "@name" token at or after from, where
// name is delimited by a closing '"' if the character right after
// '@' is '"', otherwise by the next space or end of string.
func findToken(s string, from int) (start int, name string, quoted bool) {
	if from > len(s) {
		return -1, "", false
	}
	rel := strings.IndexByte(s[from:], '@')
	if rel == -1 {
		return -1, "", false
	}
	idx := from + rel
	rest := s[idx+1:]
	if rest != "" && rest[0] == '"' {
		end := strings.IndexByte(rest[1:], '"')
		if end == -1 {
			return idx, rest[1:], true
		}
		return idx, rest[1 : 1+end], true
	}
	end := strings.IndexByte(rest, ' ')
	if end == -1 {
		return idx, rest, false
	}
	return idx, rest[:end], false
}

// joinLinesExtractingLink splits content into lines, strips a
// trailing lone \r from each (CRLF files), joins the remainder with
// single spaces, and pulls out any "/link ..." suffix encountered on
// a line, to be appended at the very end of the outer command line.
func joinLinesExtractingLink(content string) (joined string, linkTail []string) {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")

	var out []string
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if idx := strings.Index(line, "/link"); idx != -1 {
			linkTail = append(linkTail, line[idx:])
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, " "), linkTail
}

// decode returns content as UTF-8 text, detecting and stripping a
// UTF-16 byte-order mark the way a response file written by an
// MSVC-style toolchain may carry one.
func decode(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xFF && raw[1] == 0xFE {
		return utf16LEToString(raw[2:])
	}
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		return utf16BEToString(raw[2:])
	}
	return string(raw)
}

func utf16LEToString(b []byte) string {
	if len(b)%2 == 1 {
		b = b[:len(b)-1]
	}
	u16 := make([]uint16, len(b)/2)
	for i := range u16 {
		u16[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	return string(utf16.Decode(u16))
}

func utf16BEToString(b []byte) string {
	if len(b)%2 == 1 {
		b = b[:len(b)-1]
	}
	u16 := make([]uint16, len(b)/2)
	for i := range u16 {
		u16[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return string(utf16.Decode(u16))
}
