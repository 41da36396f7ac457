package pstool

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/BerejikB/LmsPs/internal/toolutil"
)

const (
	maxEnvKeyBytes   = 256
	maxEnvValueBytes = 32 << 10
	maxEnvVars       = 256
)

// State holds the working directory and the session-local environment
// overlay shared by all tools. All access goes through the lock so an
// in-flight run never races a concurrent cd or env_set.
type State struct {
	mu      sync.RWMutex
	cwd     string
	overlay map[string]string
}

type envEntry struct {
	key string
	val string
}

// NewState anchors the working directory at initialDir, falling back to the
// process working directory when it is empty or not a directory.
func NewState(initialDir string) *State {
	dir := strings.TrimSpace(initialDir)
	if dir != "" {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			dir = ""
		}
	}
	if dir == "" {
		if cwd, err := os.Getwd(); err == nil {
			dir = cwd
		} else {
			dir = "."
		}
	}
	return &State{
		cwd:     filepath.Clean(dir),
		overlay: map[string]string{},
	}
}

// Cwd returns the current working directory.
func (st *State) Cwd() string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.cwd
}

// ChangeDir resolves path (relative paths against the current directory),
// verifies it is an existing directory and commits it. Returns the new
// absolute path.
func (st *State) ChangeDir(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("path is empty")
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	next := path
	if !filepath.IsAbs(next) {
		next = filepath.Join(st.cwd, next)
	}
	next = filepath.Clean(next)

	info, err := os.Stat(next)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", next)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", next)
	}

	st.cwd = next
	return next, nil
}

// SetEnv stores a session-local override. The real process environment is
// never mutated.
func (st *State) SetEnv(key, value string) error {
	if err := validateEnvKV(key, value); err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if len(st.overlay) >= maxEnvVars {
		if _, exists := st.overlay[canonicalEnvKey(strings.TrimSpace(key))]; !exists {
			return fmt.Errorf("too many env overrides (max %d)", maxEnvVars)
		}
	}
	st.overlay[canonicalEnvKey(strings.TrimSpace(key))] = value
	return nil
}

// EnvValue reads key from the merged view (overlay wins over the process
// environment). Unset keys yield "".
func (st *State) EnvValue(key string) string {
	k := strings.TrimSpace(key)
	if k == "" {
		return ""
	}

	st.mu.RLock()
	v, ok := st.overlay[canonicalEnvKey(k)]
	st.mu.RUnlock()
	if ok {
		return v
	}

	// Windows env lookups are case-insensitive; mirror that here.
	if runtime.GOOS == toolutil.GOOSWindows {
		for _, kv := range os.Environ() {
			ek, ev, ok := strings.Cut(kv, "=")
			if ok && strings.EqualFold(ek, k) {
				return ev
			}
		}
		return ""
	}
	return os.Getenv(k)
}

// Overlay returns a copy of the session-local overrides only.
func (st *State) Overlay() map[string]string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return maps.Clone(st.overlay)
}

// EffectiveEnv merges the process environment with the overlay into the
// KEY=value form os/exec wants, overlay entries taking precedence. Keys are
// canonicalized on Windows to avoid case-insensitive duplicates making the
// merge nondeterministic.
func (st *State) EffectiveEnv() []string {
	envMap := map[string]envEntry{}

	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		kk := strings.TrimSpace(k)
		if kk == "" || strings.ContainsRune(kk, '\x00') || strings.ContainsRune(v, '\x00') {
			continue
		}
		envMap[canonicalEnvKey(kk)] = envEntry{key: kk, val: v}
	}

	st.mu.RLock()
	overlay := maps.Clone(st.overlay)
	st.mu.RUnlock()
	for k, v := range overlay {
		envMap[canonicalEnvKey(k)] = envEntry{key: k, val: v}
	}

	// Stable ordering, deterministic across runs.
	entries := make([]envEntry, 0, len(envMap))
	for _, e := range envMap {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return canonicalEnvKey(entries[i].key) < canonicalEnvKey(entries[j].key)
	})
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.key+"="+e.val)
	}
	return out
}

func validateEnvKV(k, v string) error {
	kk := strings.TrimSpace(k)
	if kk == "" {
		return errors.New("empty name")
	}
	if len(kk) > maxEnvKeyBytes {
		return fmt.Errorf("name too long (%d bytes; max %d)", len(kk), maxEnvKeyBytes)
	}
	if len(v) > maxEnvValueBytes {
		return fmt.Errorf("value too long (%d bytes; max %d)", len(v), maxEnvValueBytes)
	}
	if strings.ContainsRune(kk, '\x00') || strings.ContainsRune(v, '\x00') {
		return errors.New("contains NUL byte")
	}
	if strings.Contains(kk, "=") {
		return errors.New("name contains '='")
	}
	return nil
}

func canonicalEnvKey(k string) string {
	if runtime.GOOS == toolutil.GOOSWindows {
		return strings.ToUpper(k)
	}
	return k
}
