package main

import (
	"fmt"
	"os"

	"github.com/spaceboi21/ai-professor-backend-sub006/apps/cli/root"
)

func main() {
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
