package main

import (
	"os"

	"github.com/SanJoeng/ChatLab/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
