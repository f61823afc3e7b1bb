package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hitoshi/checkinlog/internal/app"
)

func main() {
	if err := app.Run(context.Background(), app.StdStreams(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
