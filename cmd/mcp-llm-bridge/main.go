package main

import (
	"os"

	"github.com/malbeclabs/mcp-llm-bridge/internal/cli"
)

func main() {
	os.Exit(int(cli.Run()))
}
