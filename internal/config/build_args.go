package config

import "fmt"

// 构建时通过 -ldflags "-X github.com/SafeMPC/card-bridge/internal/config.BuildVersion=..." 注入
var (
	ModuleName   = "github.com/SafeMPC/card-bridge"
	BuildDate    = "-"
	BuildCommit  = "-"
	BuildVersion = "-"
)

// GetFormattedBuildArgs 版本信息，用于 --version
func GetFormattedBuildArgs() string {
	return fmt.Sprintf("%v @ %v (%v)", BuildVersion, BuildCommit, BuildDate)
}
