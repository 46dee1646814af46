package main

import (
	"context"
	"os"

	"github.com/michaelpento.lv/flasharb/cmd"
)

func main() {
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
