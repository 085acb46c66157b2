// Command pbcoind is the node supervisor binary: it parses flags, wires
// the composition root, starts the network and mining tasks, and waits
// for a shutdown signal. Grounded on the teacher's cli/cli.go subcommand
// shape and network/network.go's github.com/vrecan/death wiring.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pbcoin/pbcoin/internal/app"
	"github.com/pbcoin/pbcoin/internal/config"
	"github.com/vrecan/death/v3"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, showedHelp, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if showedHelp {
		return 0
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pbcoind: logger:", err)
		return 2
	}
	defer logger.Sync() //nolint:errcheck

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Errorw("startup failed", "error", err)
		return 2
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	d := death.NewDeath(syscallSignals()...)
	doneCh := make(chan struct{})
	go func() {
		d.WaitForDeath(a)
		cancel()
		close(doneCh)
	}()

	select {
	case err := <-runErr:
		cancel()
		<-doneCh
		if err != nil {
			logger.Errorw("node stopped with error", "error", err)
			return 2
		}
		return 0
	case <-doneCh:
		return 1
	}
}

func buildLogger(cfg *config.Config) (*zap.SugaredLogger, error) {
	if cfg.NoLogging {
		return zap.NewNop().Sugar(), nil
	}
	if cfg.Debug {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		return l.Sugar(), nil
	}
	if cfg.LoggingFile != "" {
		zapCfg := zap.NewProductionConfig()
		zapCfg.OutputPaths = []string{cfg.LoggingFile}
		l, err := zapCfg.Build()
		if err != nil {
			return nil, err
		}
		return l.Sugar(), nil
	}
	l, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
