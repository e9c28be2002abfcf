// Package env resolves kiln's on-disk locations.
package env

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// StoreEnv overrides the store location when set.
const StoreEnv = "KILN_STORE"

// WorkEnv overrides the working tree root when set.
const WorkEnv = "KILN_WORK"

// StoreDir returns the directory holding built package outputs and build
// metadata.
func StoreDir() string {
	if dir := os.Getenv(StoreEnv); dir != "" {
		return dir
	}
	return filepath.Join(xdg.DataHome, "kiln", "store")
}

// WorkRoot returns the directory under which fresh working trees are
// created. Builds never reuse a working tree; a retry starts from a new one.
func WorkRoot() string {
	if dir := os.Getenv(WorkEnv); dir != "" {
		return dir
	}
	return filepath.Join(xdg.CacheHome, "kiln", "work")
}
