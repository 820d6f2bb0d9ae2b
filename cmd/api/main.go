package main

import (
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/Additional-Code/canteen/internal/app"
)

// main serves the HTTP API and gRPC health endpoint without the cli wrapper.
func main() {
	application := fx.New(app.HTTP)
	if err := application.Err(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	application.Run()
}
