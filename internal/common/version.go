package common

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Version variables injected at build time via ldflags
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// BuildInfo is the machine-readable form of the version variables
type BuildInfo struct {
	Version   string `json:"version"`
	Build     string `json:"build"`
	GitCommit string `json:"git_commit"`
}

// GetBuildInfo returns the current version variables
func GetBuildInfo() BuildInfo {
	return BuildInfo{Version: Version, Build: Build, GitCommit: GitCommit}
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("%s (build: %s, commit: %s)", b.Version, b.Build, b.GitCommit)
}

// LoadVersionFromFile fills version variables still at their defaults from a
// .version file next to the binary. Missing files are ignored.
func LoadVersionFromFile() {
	exe, err := os.Executable()
	if err != nil {
		return
	}
	f, err := os.Open(filepath.Join(filepath.Dir(exe), ".version"))
	if err != nil {
		return
	}
	defer f.Close()

	info := parseVersionFile(f)
	if Version == "dev" && info.Version != "" {
		Version = info.Version
	}
	if Build == "unknown" && info.Build != "" {
		Build = info.Build
	}
	if GitCommit == "unknown" && info.GitCommit != "" {
		GitCommit = info.GitCommit
	}
}

// parseVersionFile reads "key: value" lines (version, build, commit).
// Blank lines and # comments are skipped.
func parseVersionFile(r io.Reader) BuildInfo {
	var info BuildInfo
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		switch strings.TrimSpace(key) {
		case "version":
			info.Version = val
		case "build":
			info.Build = val
		case "commit":
			info.GitCommit = val
		}
	}
	return info
}
