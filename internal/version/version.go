// Package version carries the build version, overridden at link time via
// -ldflags "-X github.com/karatal/video-quiz-cli/internal/version.Version=...".
package version

var Version = "dev"
