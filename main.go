package main

import (
	"os"

	"github.com/john/prayerlog/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
