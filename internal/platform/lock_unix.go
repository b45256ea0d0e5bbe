//go:build unix

package platform

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

type fileLock struct {
	file *os.File
	path string
}

func acquireInstanceLock(id string) (InstanceLock, error) {
	path, err := lockPath(id)
	if err != nil {
		return nil, err
	}

	// #nosec G304 -- path is built from the runtime dir and a sanitized id.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open instance lock: %w", err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		holder := readHolder(file)
		_ = file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			if holder > 0 {
				return nil, fmt.Errorf("%w (pid %d)", ErrInstanceAlreadyRunning, holder)
			}
			return nil, ErrInstanceAlreadyRunning
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	if err := writeHolder(file, os.Getpid()); err != nil {
		_ = unix.Flock(int(file.Fd()), unix.LOCK_UN)
		_ = file.Close()
		return nil, err
	}

	return &fileLock{file: file, path: path}, nil
}

func (l *fileLock) Path() string {
	return l.path
}

func (l *fileLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	_ = l.file.Truncate(0)
	unlockErr := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil && !errors.Is(unlockErr, unix.EBADF) {
		return fmt.Errorf("unlock instance lock: %w", unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close instance lock: %w", closeErr)
	}

	return nil
}

// lockPath prefers $XDG_RUNTIME_DIR and falls back to a per-uid directory
// under the temp dir.
func lockPath(id string) (string, error) {
	dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "bblink-"+strconv.Itoa(os.Getuid()))
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create lock dir: %w", err)
	}

	return filepath.Join(dir, id+".lock"), nil
}

func writeHolder(file *os.File, pid int) error {
	if err := file.Truncate(0); err != nil {
		return fmt.Errorf("truncate instance lock: %w", err)
	}
	if _, err := file.WriteAt([]byte(strconv.Itoa(pid)+"\n"), 0); err != nil {
		return fmt.Errorf("write instance lock: %w", err)
	}

	return nil
}

func readHolder(file *os.File) int {
	raw, err := io.ReadAll(io.NewSectionReader(file, 0, 32))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0
	}

	return pid
}
