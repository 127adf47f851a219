package main

import (
	"os"

	"github.com/karatal/video-quiz-cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
