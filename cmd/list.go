package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli"

	cmdCommon "github.com/wanpull/wanpull/cmd/common"
	"github.com/wanpull/wanpull/pkg/wanlib"
)

const (
	idWidth    = 10
	stateWidth = 9
)

func list(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	client := newClient()
	defer client.Close()
	recs, err := client.List(context.Background())
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "list", "get_list", err)
		return nil
	}
	if len(recs) == 0 {
		fmt.Println("wanpull: no transfers")
		return nil
	}
	fmt.Print(transferTable(recs))
	return nil
}

func transferTable(recs []wanlib.TransferRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-*s %-*s %-22s %6s %10s %12s  %s\n",
		idWidth, "ID", stateWidth, "STATE", "INTERFACE", "DONE", "SIZE", "RATE", "DESTINATION")
	for _, r := range recs {
		iface := r.Request.InterfaceID
		if r.Request.InterfaceName != "" {
			iface = r.Request.InterfaceName + "/" + iface
		}
		rate := "-"
		if r.State == wanlib.StateActive {
			rate = cmdCommon.Rate(int64(r.RateBytesPerSec))
		}
		fmt.Fprintf(&b, "%-*s %s %-22s %6s %10s %12s  %s\n",
			idWidth, cmdCommon.Truncate(string(r.Request.ID), idWidth),
			cmdCommon.ColorState(r.State, stateWidth),
			cmdCommon.Truncate(iface, 22),
			cmdCommon.Percent(r.BytesTransferred, r.TotalBytes),
			cmdCommon.Bytes(r.TotalBytes),
			rate,
			r.Request.DestinationPath,
		)
	}
	return b.String()
}

func status(ctx *cli.Context) error {
	id := ctx.Args().First()
	switch id {
	case "":
		return cmdCommon.PrintErrWithCmdHelp(ctx, errors.New("no transfer id provided"))
	case "help":
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	client := newClient()
	defer client.Close()
	r, err := client.Status(context.Background(), wanlib.TransferID(id))
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "status", "get_status", err)
		return nil
	}
	fmt.Printf("ID\t\t: %s\n", r.Request.ID)
	fmt.Printf("State\t\t: %s\n", cmdCommon.ColorState(r.State, 0))
	fmt.Printf("URL\t\t: %s\n", r.Request.URL)
	fmt.Printf("Interface\t: %s %s\n", r.Request.InterfaceID, r.Request.InterfaceName)
	fmt.Printf("Destination\t: %s\n", r.Request.DestinationPath)
	fmt.Printf("Progress\t: %s of %s (%s)\n",
		cmdCommon.Bytes(r.BytesTransferred), cmdCommon.Bytes(r.TotalBytes),
		cmdCommon.Percent(r.BytesTransferred, r.TotalBytes))
	fmt.Printf("Rate limit\t: %s\n", cmdCommon.Rate(r.Request.RateLimit))
	if r.State == wanlib.StateActive {
		fmt.Printf("Speed\t\t: %s\n", cmdCommon.Rate(int64(r.RateBytesPerSec)))
	}
	if r.Err != "" {
		fmt.Printf("Error\t\t: %s\n", r.Err)
	}
	return nil
}
