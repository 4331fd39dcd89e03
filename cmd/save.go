package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli"

	cmdCommon "github.com/wanpull/wanpull/cmd/common"
)

func save(ctx *cli.Context) error {
	client := newClient()
	defer client.Close()
	res, err := client.SaveState(context.Background())
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "save", "save_state", err)
		return nil
	}
	fmt.Printf("saved %d active and %d queued transfer(s) to %s\n", res.Active, res.Queued, res.Path)
	return nil
}
