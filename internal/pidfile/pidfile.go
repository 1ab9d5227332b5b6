// Package pidfile keeps a single serving instance per PID file.
package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/syncinterval/internal/errors"
)

const defaultName = "syncinterval.pid"

// DefaultPath is the PID file used when none is configured.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), defaultName)
}

// Write records the current process ID at path. It fails with
// already_running when the file names a live process; stale or unreadable
// files are replaced.
func Write(path string) error {
	errFactory := errors.New()

	if pid, ok := read(path); ok && pid != os.Getpid() && alive(pid) {
		return errFactory.WithData(errors.ErrAlreadyRunning, struct {
			Path string
			PID  int
		}{path, pid})
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}
	return nil
}

// Remove deletes path if it still names this process.
func Remove(path string) error {
	pid, ok := read(path)
	if !ok || pid != os.Getpid() {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}
	return nil
}

func read(path string) (int, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func alive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
