package main

import (
	"go.uber.org/fx"

	"github.com/Abhishek8642/MindPal-1.3/internal/daemon"
)

func main() {
	app := fx.New(
		daemon.Module(daemon.Params{}),
	)

	app.Run()
}
