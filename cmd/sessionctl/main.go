package main

import (
	"os"

	tool "github.com/sandeepkv93/social-realtime-backend/internal/tools/sessionctl"
)

func main() {
	if err := tool.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
