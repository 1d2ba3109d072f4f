/*
Landing Trajectory: a rotating cube rendered through an explicit GPU API,
built around the frame lifecycle and fence synchronization.
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/trajectory/engine"
	"github.com/spaghettifunk/trajectory/engine/core"
	"github.com/spaghettifunk/trajectory/testbed"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.toml", "path to the TOML configuration")
	flag.Parse()

	config, err := engine.LoadConfig(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			core.LogError("failed to load configuration: %s", err)
			return 1
		}
		core.LogWarn("%s not found, using defaults", *configPath)
		config = engine.DefaultConfig()
	}

	tb := testbed.NewTestGame(config)

	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogError("failed to create engine: %s", err)
		return 1
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	go func() {
		// capture sigterm and other system call here
		sig, ok := <-sigCh
		if !ok {
			return
		}
		core.LogInfo("received %s, shutting down", sig)
		e.Stop()
	}()

	code := 0
	if err := e.Initialize(); err != nil {
		core.LogError("initialization failed: %s", err)
		code = 1
	} else if err := e.Run(); err != nil {
		core.LogError("render loop stopped: %s", err)
		code = 1
	}

	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %s", err)
		if code == 0 {
			code = 1
		}
	}
	return code
}
