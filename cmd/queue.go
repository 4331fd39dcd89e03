package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/urfave/cli"

	cmdCommon "github.com/wanpull/wanpull/cmd/common"
	"github.com/wanpull/wanpull/pkg/wanlib"
)

var queueCmd = cli.Command{
	Name:  "queue",
	Usage: "inspect and reorder the transfer queue",
	Subcommands: []cli.Command{
		{
			Name:   "list",
			Usage:  "show queued transfers in admission order",
			Action: queueList,
			Flags:  clientFlags,
		},
		{
			Name:      "move",
			Usage:     "move the entry at <from> to position <to>",
			ArgsUsage: "<from> <to>",
			Action:    queueMove,
			Flags:     clientFlags,
		},
		{
			Name:      "remove",
			Usage:     "drop a queued transfer",
			ArgsUsage: "<id>",
			Action:    queueRemove,
			Flags:     clientFlags,
		},
		{
			Name:   "start",
			Usage:  "admit queued transfers on every idle interface",
			Action: queueStart,
			Flags:  clientFlags,
		},
		{
			Name:   "pause",
			Usage:  "pause every active transfer",
			Action: queuePause,
			Flags:  clientFlags,
		},
	},
	Action: queueList,
	Flags:  clientFlags,
}

func queueList(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	client := newClient()
	defer client.Close()
	entries, err := client.Queue(context.Background())
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "queue", "get_queue", err)
		return nil
	}
	if len(entries) == 0 {
		fmt.Println("wanpull: queue is empty")
		return nil
	}
	for i, e := range entries {
		fmt.Printf("%3d. %-*s %-15s %s\n", i, idWidth, e.Request.ID, e.Request.InterfaceID, e.Request.URL)
	}
	return nil
}

func queueMove(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return cmdCommon.PrintErrWithCmdHelp(ctx, errors.New("expected <from> <to>"))
	}
	from, err := strconv.Atoi(ctx.Args().Get(0))
	if err != nil {
		return cmdCommon.PrintErrWithCmdHelp(ctx, fmt.Errorf("invalid position: %w", err))
	}
	to, err := strconv.Atoi(ctx.Args().Get(1))
	if err != nil {
		return cmdCommon.PrintErrWithCmdHelp(ctx, fmt.Errorf("invalid position: %w", err))
	}
	client := newClient()
	defer client.Close()
	if err := client.QueueMove(context.Background(), from, to); err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "queue move", "move", err)
		return nil
	}
	fmt.Printf("moved entry %d to %d\n", from, to)
	return nil
}

func queueRemove(ctx *cli.Context) error {
	id := ctx.Args().First()
	if id == "" {
		return cmdCommon.PrintErrWithCmdHelp(ctx, errors.New("no transfer id provided"))
	}
	client := newClient()
	defer client.Close()
	if err := client.QueueRemove(context.Background(), wanlib.TransferID(id)); err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "queue remove", "remove", err)
		return nil
	}
	fmt.Printf("removed %s\n", id)
	return nil
}

func queueStart(ctx *cli.Context) error {
	client := newClient()
	defer client.Close()
	ids, err := client.StartAll(context.Background())
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "queue start", "start_all", err)
		return nil
	}
	printIDs("started", ids)
	return nil
}

func queuePause(ctx *cli.Context) error {
	client := newClient()
	defer client.Close()
	ids, err := client.PauseAll(context.Background())
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "queue pause", "pause_all", err)
		return nil
	}
	printIDs("paused", ids)
	return nil
}

func printIDs(verb string, ids []wanlib.TransferID) {
	fmt.Printf("%s %d transfer(s)\n", verb, len(ids))
	for _, id := range ids {
		fmt.Printf("  %s\n", id)
	}
}
