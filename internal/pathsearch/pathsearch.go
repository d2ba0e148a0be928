// Package pathsearch resolves a bare executable name against a
// delimiter-separated search list, the way clade/intercept/which.c
// resolves "gcc" to "/usr/bin/gcc" before building an exec record.
package pathsearch

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrNotFound is returned when name cannot be resolved against the
// search list.
var ErrNotFound = errors.New("pathsearch: executable not found in search list")

// delimiter is the PATH entry separator: ':' on POSIX, ';' on Windows.
// which.h picks this at compile time with #ifdef _WIN32; Go picks it
// at build time via os.PathListSeparator instead of hardcoding it,
// since that already encodes the same POSIX/Windows split.
const delimiter = string(os.PathListSeparator)

// Which resolves name against the current process's PATH.
func Which(name string) (string, error) {
	return WhichIn(name, os.Getenv("PATH"))
}

// WhichIn resolves name against an explicit search list, iterating
// entries left to right and returning the first match. On POSIX a
// match must be executable (X_OK); Windows has no notion of an
// execute bit on regular files, so a match there only needs to exist
// and be readable, mirroring the R_OK-as-X_OK substitution in
// clade/libinterceptor/compat.h.
func WhichIn(name, searchList string) (string, error) {
	if name == "" {
		return "", ErrNotFound
	}
	for _, dir := range strings.Split(searchList, delimiter) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", ErrNotFound
}

// WhichSkippingFirst resolves name the way a shadow wrapper does: it
// searches PATH starting after the first delimiter, so a wrapper
// installed at the front of PATH never resolves to itself. Mirrors
// wrapper.c's `strstr(path, WHICH_DELIMITER)` trick.
func WhichSkippingFirst(name, searchList string) (string, error) {
	idx := strings.Index(searchList, delimiter)
	if idx == -1 {
		return "", ErrNotFound
	}
	return WhichIn(name, searchList[idx+1:])
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true // readability already implied by a successful Stat
	}
	return info.Mode().Perm()&0o111 != 0
}
