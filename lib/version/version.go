// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the build identity of Atelier binaries.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time via -ldflags, for example:
//
//	go build -ldflags "-X github.com/atelier-dev/atelier/lib/version.commit=$(git rev-parse --short HEAD)"
var (
	release = "0.1.0-dev"
	commit  = ""
	dirty   = ""
)

// String returns the one-line version suitable for --version output,
// e.g. "atelier 0.1.0-dev (3f2a91c)". When the build carried no ldflags
// the commit is recovered from the module build info if available.
func String() string {
	c := commit
	if c == "" {
		c = vcsRevision()
	}
	if c == "" {
		return release
	}
	if dirty == "true" {
		c += "+dirty"
	}
	return fmt.Sprintf("%s (%s)", release, c)
}

// Detailed returns a multi-line report including the Go toolchain and
// target platform, for bug reports.
func Detailed() string {
	return fmt.Sprintf("%s\n  go: %s\n  platform: %s/%s",
		String(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
			return setting.Value[:7]
		}
	}
	return ""
}
