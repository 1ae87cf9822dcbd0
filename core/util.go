package core

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// NowFunc is mockable.
var NowFunc = time.Now

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// EpochMillis converts t to milliseconds since the Unix epoch.
func EpochMillis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

// NowMillis is EpochMillis(NowFunc()).
func NowMillis() int64 {
	return EpochMillis(NowFunc())
}

// Getwd tries to find the project root, i.e. the closest directory holding a go.mod.
// go-test changes the working directory to the test package being run, relative config paths must not depend on it.
// Deployed binaries have no go.mod around them: the working directory is returned as is.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}
