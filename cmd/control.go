package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli"

	cmdCommon "github.com/wanpull/wanpull/cmd/common"
	"github.com/wanpull/wanpull/pkg/wancli"
	"github.com/wanpull/wanpull/pkg/wanlib"
)

type controlFunc func(c *wancli.Client, ctx context.Context, id wanlib.TransferID) (wanlib.TransferState, error)

// controlAction builds the action of a single-id lifecycle command.
func controlAction(name string, op controlFunc) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		id := ctx.Args().First()
		switch id {
		case "":
			return cmdCommon.PrintErrWithCmdHelp(ctx, errors.New("no transfer id provided"))
		case "help":
			return cli.ShowCommandHelp(ctx, ctx.Command.Name)
		}
		client := newClient()
		defer client.Close()
		st, err := op(client, context.Background(), wanlib.TransferID(id))
		if err != nil {
			cmdCommon.PrintRuntimeErr(ctx, name, name, err)
			return nil
		}
		fmt.Printf("%s: %s\n", id, cmdCommon.ColorState(st, 0))
		return nil
	}
}

var (
	pauseAction   = controlAction("pause", (*wancli.Client).Pause)
	resumeAction  = controlAction("resume", (*wancli.Client).Resume)
	cancelAction  = controlAction("cancel", (*wancli.Client).Cancel)
	requeueAction = controlAction("requeue", (*wancli.Client).Requeue)
)
