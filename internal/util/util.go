package util

import (
	"flag"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	projectRootDir     string
	projectRootDirOnce sync.Once
)

// GetProjectRootDir returns the path as string to the project_root.
// PROJECT_ROOT_DIR env takes precedence, otherwise the path is derived from this source file.
func GetProjectRootDir() string {
	projectRootDirOnce.Do(func() {
		if dir, ok := os.LookupEnv("PROJECT_ROOT_DIR"); ok {
			projectRootDir = dir
			return
		}

		_, b, _, _ := runtime.Caller(0)
		projectRootDir = filepath.Join(filepath.Dir(b), "../..")
	})

	return projectRootDir
}

// RunningInTest returns true if the current binary was built by "go test".
func RunningInTest() bool {
	return flag.Lookup("test.v") != nil || strings.HasSuffix(os.Args[0], ".test")
}

// LogLevelFromString parses a zerolog level, falling back to info.
func LogLevelFromString(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
