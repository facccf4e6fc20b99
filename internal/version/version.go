package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
)

// Set at build time with -ldflags "-X inkwell/internal/version.Version=...".
var (
	Version   = "dev"
	Built     = ""
	GitCommit = ""
)

type Info struct {
	Version   string `json:"version"`
	Major     int    `json:"major"`
	Minor     int    `json:"minor"`
	Patch     int    `json:"patch"`
	Built     string `json:"built,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
	GoVersion string `json:"go_version"`
}

// Get reports the linked version. When the commit was not stamped through
// ldflags, the VCS revision recorded by the Go toolchain is used instead.
func Get() Info {
	info := Info{
		Version:   Version,
		Built:     Built,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
	}
	info.Major, info.Minor, info.Patch = parseSemver(Version)
	if info.GitCommit == "" {
		info.GitCommit = buildRevision()
	}
	return info
}

func (i Info) String() string {
	var details []string
	if i.GitCommit != "" {
		commit := i.GitCommit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		details = append(details, commit)
	}
	if i.Built != "" {
		details = append(details, "built "+i.Built)
	}
	if len(details) == 0 {
		return "inkwell " + i.Version
	}
	return fmt.Sprintf("inkwell %s (%s)", i.Version, strings.Join(details, ", "))
}

func parseSemver(value string) (int, int, int) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "v")
	if cut := strings.IndexAny(trimmed, "-+"); cut >= 0 {
		trimmed = trimmed[:cut]
	}
	parts := strings.SplitN(trimmed, ".", 3)
	numbers := [3]int{}
	for i, part := range parts {
		parsed, err := strconv.Atoi(part)
		if err != nil {
			return 0, 0, 0
		}
		numbers[i] = parsed
	}
	return numbers[0], numbers[1], numbers[2]
}

func buildRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			return setting.Value
		}
	}
	return ""
}
