package main

import (
	"os"

	"github.com/hyeonsu-k/saju-matcher/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
