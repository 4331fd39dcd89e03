package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli"

	cmdCommon "github.com/wanpull/wanpull/cmd/common"
	"github.com/wanpull/wanpull/common"
	"github.com/wanpull/wanpull/pkg/wanlib"
)

var (
	addInterfaceIP   string
	addInterfaceName string
	addOutput        string
	addRate          string
	addStart         bool

	addFlags = withClientFlags(
		cli.StringFlag{
			Name:        "interface, i",
			Usage:       "source ip of the interface to download through",
			Destination: &addInterfaceIP,
		},
		cli.StringFlag{
			Name:        "name, n",
			Usage:       "interface name, looked up by the daemon when omitted",
			Destination: &addInterfaceName,
		},
		cli.StringFlag{
			Name:        "output, o",
			Usage:       "destination file or directory (default: download dir)",
			Destination: &addOutput,
		},
		cli.StringFlag{
			Name:        "rate, r",
			Usage:       "rate limit such as 512KB or 2MB per second (default: daemon setting)",
			Destination: &addRate,
		},
		cli.BoolFlag{
			Name:        "start, s",
			Usage:       "start the queue right after adding",
			Destination: &addStart,
		},
	)
)

func add(ctx *cli.Context) error {
	url := ctx.Args().First()
	switch {
	case url == "":
		return cmdCommon.PrintErrWithCmdHelp(ctx, errors.New("no url provided"))
	case url == "help":
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	case addInterfaceIP == "":
		return cmdCommon.PrintErrWithCmdHelp(ctx, errors.New("no interface provided, see \"wanpull interfaces\""))
	}
	if _, err := wanlib.ParseRate(addRate); err != nil {
		return cmdCommon.PrintErrWithCmdHelp(ctx, err)
	}
	client := newClient()
	defer client.Close()

	res, err := client.Add(context.Background(), &common.AddParams{
		URL:             url,
		InterfaceIP:     addInterfaceIP,
		InterfaceName:   addInterfaceName,
		DestinationPath: addOutput,
		RateLimit:       addRate,
	})
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "add", "enqueue", err)
		return nil
	}
	req := res.Request
	fmt.Printf("queued %s via %s (%s) -> %s\n", res.ID, req.InterfaceID, req.InterfaceName, req.DestinationPath)
	if !addStart {
		return nil
	}
	ids, err := client.StartAll(context.Background())
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "add", "start", err)
		return nil
	}
	fmt.Printf("started %d transfer(s)\n", len(ids))
	return nil
}
