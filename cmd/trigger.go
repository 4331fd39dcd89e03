package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli"

	cmdCommon "github.com/wanpull/wanpull/cmd/common"
)

var triggerCmd = cli.Command{
	Name:               "trigger",
	Usage:              "schedule start_all / pause_all",
	Description:        TriggerDescription,
	CustomHelpTemplate: CMD_HELP_TEMPL,
	Subcommands: []cli.Command{
		{
			Name:      "add",
			Usage:     "add a one-shot or cron trigger",
			ArgsUsage: "<start_all|pause_all> <RFC3339 time | cron expression>",
			Action:    triggerAdd,
			Flags:     clientFlags,
		},
		{
			Name:   "list",
			Usage:  "show pending triggers, soonest first",
			Action: triggerList,
			Flags:  clientFlags,
		},
		{
			Name:      "remove",
			Usage:     "delete a trigger",
			ArgsUsage: "<id>",
			Action:    triggerRemove,
			Flags:     clientFlags,
		},
	},
	Action: triggerList,
	Flags:  clientFlags,
}

func triggerAdd(ctx *cli.Context) error {
	if ctx.NArg() < 2 {
		return cmdCommon.PrintErrWithCmdHelp(ctx, errors.New("expected an action and a time or cron expression"))
	}
	action := ctx.Args().First()
	// unquoted cron fields arrive as separate arguments
	expr := strings.Join(ctx.Args().Tail(), " ")
	client := newClient()
	defer client.Close()
	info, err := client.TriggerAdd(context.Background(), action, expr)
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "trigger add", "add", err)
		return nil
	}
	fmt.Printf("trigger %s: %s next at %s\n", info.ID, info.Action, info.NextFire.Local().Format(time.RFC3339))
	return nil
}

func triggerList(ctx *cli.Context) error {
	client := newClient()
	defer client.Close()
	list, err := client.TriggerList(context.Background())
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "trigger", "list", err)
		return nil
	}
	if len(list) == 0 {
		fmt.Println("wanpull: no triggers")
		return nil
	}
	fmt.Printf("%-8s %-9s %-25s %s\n", "ID", "ACTION", "NEXT", "WHEN")
	for _, t := range list {
		fmt.Printf("%-8s %-9s %-25s %s\n", t.ID, t.Action, t.NextFire.Local().Format(time.RFC3339), t.Expr)
	}
	return nil
}

func triggerRemove(ctx *cli.Context) error {
	id := ctx.Args().First()
	if id == "" {
		return cmdCommon.PrintErrWithCmdHelp(ctx, errors.New("no trigger id provided"))
	}
	client := newClient()
	defer client.Close()
	if err := client.TriggerRemove(context.Background(), id); err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "trigger remove", "remove", err)
		return nil
	}
	fmt.Printf("removed trigger %s\n", id)
	return nil
}
