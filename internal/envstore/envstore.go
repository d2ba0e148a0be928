// Package envstore operates on a flat "KEY=VALUE" environment vector,
// the representation exec(2)/CreateProcess demand at the syscall
// boundary. It mirrors clade/intercept/unix/env.c (copy_envp,
// update_envp, update_environ) but keeps the vector as the external
// contract while doing lookups with plain string operations instead
// of raw pointer arithmetic.
package envstore

import (
	"os"
	"strings"
	"sync"

	"github.com/gobwas/glob"

	"github.com/clade-build/clade/internal/envvars"
)

// reference is the "reference environment" snapshot — the process
// environment as it existed at library-load (or process-start) time,
// before any later caller could have stripped a recognized variable.
// Mirrors clade_environ, captured once in interceptor.c's on_load.
var (
	referenceMu sync.RWMutex
	reference   []string
)

// Snapshot records env as the reference environment that Copy
// recovers stripped variables from. Call once, as early as possible —
// clade-preload's init and clade-wrapper's init both call this
// before any hook or exec observation can run. Passing nil clears the
// snapshot.
func Snapshot(env []string) {
	referenceMu.Lock()
	defer referenceMu.Unlock()
	reference = append([]string(nil), env...)
}

func referenceEnv() []string {
	referenceMu.RLock()
	defer referenceMu.RUnlock()
	return reference
}

// Get returns the value of key in envp and whether it was present.
// Matches find_key_index's "key followed by '='" rule.
func Get(envp []string, key string) (string, bool) {
	prefix := key + "="
	for _, entry := range envp {
		if strings.HasPrefix(entry, prefix) {
			return entry[len(prefix):], true
		}
	}
	return "", false
}

// Set replaces key's entry in envp if present, otherwise appends it.
// Returns a new slice; envp is not mutated in place, since callers
// hold onto the original vector (e.g. to pass to the real execve).
func Set(envp []string, key, value string) []string {
	prefix := key + "="
	entry := prefix + value
	for i, e := range envp {
		if strings.HasPrefix(e, prefix) {
			out := append([]string(nil), envp...)
			out[i] = entry
			return out
		}
	}
	return append(append([]string(nil), envp...), entry)
}

// Unset removes key's entry from envp, if present.
func Unset(envp []string, key string) []string {
	prefix := key + "="
	out := make([]string, 0, len(envp))
	for _, e := range envp {
		if strings.HasPrefix(e, prefix) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Copy duplicates envp, then appends every recognized clade variable
// that is present in the reference environment (see Snapshot) but
// absent from envp — recovering variables a caller (for example a
// sanitizer runtime) stripped before calling exec. Recovery reads the
// snapshot taken at load time, not the live process environment,
// since the live environment may by now have lost the very variable
// this exists to recover. Matches copy_envp in env.c.
//
// If allowListSource is set (the ENV_VARS extension point, see
// allowList), variables outside the fixed recognized set that match
// one of its globs are propagated too, also read from the snapshot.
func Copy(envp []string, allowListSource string) []string {
	out := append([]string(nil), envp...)
	ref := referenceEnv()

	for _, key := range envvars.Recognized {
		if _, present := Get(out, key); present {
			continue
		}
		if value, ok := Get(ref, key); ok {
			out = append(out, key+"="+value)
		}
	}

	if allowListSource == "" {
		return out
	}
	al, err := newAllowList(allowListSource)
	if err != nil {
		return out
	}
	for _, entry := range ref {
		k, _, found := strings.Cut(entry, "=")
		if !found {
			continue
		}
		if _, present := Get(out, k); present {
			continue
		}
		if al.Match(k) {
			out = append(out, entry)
		}
	}
	return out
}

// PropagateParentID overwrites envp's PARENT_ID entry with the value
// currently held in the calling process's real environment, so a
// child about to be exec'd sees this process's freshly rotated id
// rather than whatever stale value envp was built with. Matches
// update_environ's write direction reversed: here we push process
// environ -> envp, since rotate_parent has already updated process
// environ by the time this runs.
func PropagateParentID(envp []string) []string {
	value, ok := os.LookupEnv(envvars.ParentID)
	if !ok {
		return envp
	}
	return Set(envp, envvars.ParentID, value)
}

// allowList wraps the comma-separated glob patterns named by
// ENV_VARS.
type allowList struct {
	globs []glob.Glob
}

// allowListCache avoids recompiling the same ENV_VARS pattern set on
// every Copy call within one process, keyed by source since a test
// process may exercise more than one pattern set.
var (
	allowListCacheMu sync.Mutex
	allowListCache   = map[string]*allowList{}
)

func newAllowList(source string) (*allowList, error) {
	allowListCacheMu.Lock()
	defer allowListCacheMu.Unlock()

	if al, ok := allowListCache[source]; ok {
		return al, nil
	}

	al := &allowList{}
	for _, pattern := range strings.Split(source, ",") {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if g, err := glob.Compile(pattern); err == nil {
			al.globs = append(al.globs, g)
		}
	}
	allowListCache[source] = al
	return al, nil
}

func (al *allowList) Match(key string) bool {
	for _, g := range al.globs {
		if g.Match(key) {
			return true
		}
	}
	return false
}
