//go:build !unix

package logging

import "os"

func fileIdentity(os.FileInfo) (dev, ino uint64, ok bool) {
	return 0, 0, false
}
