package main

import (
	"os"

	// Load .env files automatically so AWS credentials and tool settings
	// can live next to the working directory.
	_ "github.com/joho/godotenv/autoload"

	"github.com/coldvault/vaultup/internal/cli"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "v1.0.0-dev"

func main() {
	cli.Version = version
	os.Exit(cli.Execute())
}
