// Package adbtest provides a stand-in adb binary for tests that drive a real
// adb.Runner.
package adbtest

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// Binary writes an executable shell script that answers `adb [-s serial]
// shell <args>` invocations and returns its path. cases is the body of a
// POSIX `case "$*" in ... esac` over the shell arguments; unmatched commands
// print a shell-style "not found" and exit 127. Each invocation is appended
// to the file returned by Calls.
func Binary(t testing.TB, cases string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake adb needs a POSIX shell")
	}
	dir := t.TempDir()
	script := `#!/bin/sh
echo "$*" >> "` + filepath.Join(dir, "calls") + `"
if [ "$1" = "-s" ]; then shift 2; fi
[ "$1" = "shell" ] && shift
case "$*" in
` + cases + `
*) echo "/system/bin/sh: $1: not found" >&2; exit 127 ;;
esac
`
	path := filepath.Join(dir, "adb")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// Calls returns the number of times the binary at path was invoked.
func Calls(t testing.TB, path string) int {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(filepath.Dir(path), "calls"))
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Count(string(data), "\n")
}
