//go:build !linux

package file

import "errors"

func volumeUsage(dir string) (Usage, error) {
	return Usage{}, errors.New("volume usage not supported on this platform")
}
