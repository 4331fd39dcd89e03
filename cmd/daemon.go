package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	cmdCommon "github.com/wanpull/wanpull/cmd/common"
	"github.com/wanpull/wanpull/internal/config"
	"github.com/wanpull/wanpull/internal/daemon"
)

var (
	envFile string

	daemonFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "env-file, e",
			Usage:       "read configuration from this file instead of ./.env",
			Destination: &envFile,
		},
	}
)

func loadConfig() (*config.Config, error) {
	if envFile != "" {
		return config.LoadFile(envFile)
	}
	return config.Load()
}

func daemonAction(ctx *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "daemon", "config", err)
		return err
	}
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := daemon.New(cfg, daemon.BuildInfo{
		Version:   buildArgs.Version,
		Commit:    buildArgs.Commit,
		BuildType: buildArgs.BuildType,
	}, nil)
	return r.Start(sigCtx)
}
