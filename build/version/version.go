// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package version provides information about seriesly client version and build configuration.
//
// # Extra files
//
// The following text files may be present in this (`build/version`) directory during building:
//   - version.txt (required) contains the client version in a format
//     similar to `git describe` output: `v<major>.<minor>.<patch>`.
//   - commit.txt (optional) contains the source git commit.
//   - branch.txt (optional) contains the source git branch.
//
// # Go build tags
//
//	seriesly_dev - enables development build (implied by builds with race detector)
package version

import (
	"embed"
	"regexp"
	"runtime"
	runtimedebug "runtime/debug"
	"strings"
)

//go:embed *.txt
var gen embed.FS

// Info provides details about the current build.
type Info struct {
	Version          string
	Commit           string
	Branch           string
	Dirty            bool
	DevBuild         bool
	BuildEnvironment map[string]string
}

// info singleton instance set by init().
var info *Info

// unknown is a placeholder for unknown version, commit, and branch values.
const unknown = "unknown"

// module is the module path from go.mod.
const module = "github.com/FerretDB/seriesly"

// semVerTag is a semantic version with a leading `v`.
var semVerTag = regexp.MustCompile(`^v(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?$`)

// Get returns current build's info.
//
// It returns a shared instance without any synchronization.
func Get() *Info {
	return info
}

// UserAgent returns the value of User-Agent header sent by the client.
func UserAgent() string {
	return "seriesly-go/" + info.Version
}

func init() {
	info = &Info{
		Version:  unknown,
		Commit:   unknown,
		Branch:   unknown,
		DevBuild: devBuild,
		BuildEnvironment: map[string]string{
			"go.runtime": runtime.Version(),
		},
	}

	for f, sp := range map[string]*string{
		"version.txt": &info.Version,
		"commit.txt":  &info.Commit,
		"branch.txt":  &info.Branch,
	} {
		b, _ := gen.ReadFile(f)
		if s := strings.TrimSpace(string(b)); s != "" {
			*sp = s
		}
	}

	if !semVerTag.MatchString(info.Version) {
		panic("invalid version.txt: " + info.Version)
	}

	readBuildInfo()
}

// readBuildInfo updates info from the Go build info, if it is available.
// VCS settings are used only when this module is the main one.
func readBuildInfo() {
	buildInfo, ok := runtimedebug.ReadBuildInfo()
	if !ok {
		return
	}

	info.BuildEnvironment["go.version"] = buildInfo.GoVersion

	if buildInfo.Main.Path != module {
		return
	}

	for _, s := range buildInfo.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == unknown {
				info.Commit = s.Value
			}

		case "vcs.modified":
			info.Dirty = s.Value == "true"

		default:
			if s.Value != "" {
				info.BuildEnvironment[s.Key] = s.Value
			}
		}
	}
}
