package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/clinic/internal/config"
	"github.com/matheus3301/clinic/internal/daemon"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "", "config file (default $CLINIC_HOME/config.toml)")
	flag.Parse()

	cfg, err := config.Resolve(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(cfg),
		fx.StopTimeout(cfg.Server.ShutdownTimeout.D()),
	)

	app.Run()
}
