package main

import (
	"fmt"
	"os"

	"github.com/lucasspain13/out-sports-qc-sub001/internal/cli"
)

const appVersion = "dev"

func main() {
	if os.Getenv("SKIP_SERVER_RUN") == "1" {
		return
	}

	if err := cli.NewRootCommand(appVersion).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
