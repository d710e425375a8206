package main

import (
	"os"

	"github.com/joho/godotenv"
)

// version is set during build with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load .env from CWD (env vars override)
	_ = godotenv.Load(".env")

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
