package main

import (
	"fmt"
	"os"

	"github.com/suPer8Hu/adforge/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "adforge:", err)
		os.Exit(1)
	}
}
