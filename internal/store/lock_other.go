//go:build !unix

package store

import "os"

// lockFile on platforms without flock keeps the file open as a best-effort
// marker; builds there rely on the caller not sharing one store.
func lockFile(path string) (func() error, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return f.Close, nil
}
