// Package testing contains fixture and assertion helpers for tests that build whole sites
// on disk.
package testing

const (
	testDirPermissions  = 0o755
	testFilePermissions = 0o644
)
