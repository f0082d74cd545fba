package health

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/joho/godotenv"
)

type BuildInfo struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit"`
	BuildTime time.Time `json:"build_time"`
	GoVersion string    `json:"go_version"`
}

var buildInfoPaths = []string{"build.info", "/app/build.info"}

// readBuildInfo merges, lowest priority first: module vcs stamps, a build.info dotenv file, BUILD_* env.
func readBuildInfo(version string) BuildInfo {
	info := BuildInfo{
		Version:   version,
		GitCommit: "unknown",
		GoVersion: runtime.Version(),
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				info.GitCommit = setting.Value
			case "vcs.time":
				if t, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					info.BuildTime = t
				}
			}
		}
	}

	values := make(map[string]string)
	for _, path := range buildInfoPaths {
		if fileValues, err := godotenv.Read(path); err == nil {
			values = fileValues
			break
		}
	}
	for _, key := range []string{"BUILD_VERSION", "BUILD_COMMIT", "BUILD_TIME"} {
		if v := os.Getenv(key); v != "" {
			values[key] = v
		}
	}

	info.apply(values)
	return info
}

func (b *BuildInfo) apply(values map[string]string) {
	if v := values["BUILD_VERSION"]; v != "" {
		b.Version = v
	}
	if v := values["BUILD_COMMIT"]; v != "" {
		b.GitCommit = v
	}
	if v := values["BUILD_TIME"]; v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			b.BuildTime = t
		}
	}
}

func (b BuildInfo) String() string {
	commit := b.GitCommit
	if len(commit) > 7 {
		commit = commit[:7]
	}

	if b.BuildTime.IsZero() {
		return fmt.Sprintf("%s-%s", b.Version, commit)
	}
	return fmt.Sprintf("%s-%s (%s)", b.Version, commit, b.BuildTime.Format(time.DateOnly))
}
