package cmd

import (
	"github.com/urfave/cli"

	"github.com/wanpull/wanpull/common"
	"github.com/wanpull/wanpull/internal/config"
	"github.com/wanpull/wanpull/pkg/wancli"
)

var (
	daemonAddr string
	rpcSecret  string

	clientFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "addr",
			Usage:       "address of the wanpull daemon",
			Value:       config.DEF_LISTEN_ADDR,
			EnvVar:      common.ListenAddrEnv,
			Destination: &daemonAddr,
		},
		cli.StringFlag{
			Name:        "secret",
			Usage:       "bearer token of the daemon RPC endpoint",
			EnvVar:      common.RPCSecretEnv,
			Destination: &rpcSecret,
		},
	}
)

// withClientFlags appends the connection flags to a command's own flags.
func withClientFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags, clientFlags...)
}

var newClient = func() *wancli.Client {
	return wancli.NewClient(daemonAddr, rpcSecret)
}
