//go:build unix

package power

import "golang.org/x/sys/unix"

func syncFilesystems() {
	unix.Sync()
}
