package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli"

	cmdCommon "github.com/wanpull/wanpull/cmd/common"
)

var (
	ifAll bool

	ifFlags = withClientFlags(
		cli.BoolFlag{
			Name:        "all, a",
			Usage:       "include interfaces that are down, virtual or unreachable",
			Destination: &ifAll,
		},
	)
)

func interfaces(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	client := newClient()
	defer client.Close()
	list, err := client.Interfaces(context.Background(), ifAll)
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "interfaces", "list", err)
		return nil
	}
	if len(list) == 0 {
		fmt.Println("wanpull: no usable interfaces found")
		return nil
	}
	fmt.Printf("%-20s %-15s %-4s %s\n", "NAME", "SOURCE IP", "UP", "REACHABLE")
	for _, iface := range list {
		reach := yesNo(iface.Reachable)
		if ifAll {
			// --all lists without probing
			reach = "-"
		}
		fmt.Printf("%-20s %-15s %-4s %s\n", iface.Name, iface.SourceIP, yesNo(iface.Up), reach)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
