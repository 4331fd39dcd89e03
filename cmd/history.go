package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli"

	cmdCommon "github.com/wanpull/wanpull/cmd/common"
	"github.com/wanpull/wanpull/internal/history"
)

var (
	histLimit int
	histCSV   string
	histClear bool

	histFlags = withClientFlags(
		cli.IntFlag{
			Name:        "limit, n",
			Usage:       "number of entries to show, 0 for all",
			Value:       20,
			Destination: &histLimit,
		},
		cli.StringFlag{
			Name:        "csv",
			Usage:       "write the entries to this csv file instead of printing them",
			Destination: &histCSV,
		},
		cli.BoolFlag{
			Name:        "clear",
			Usage:       "delete the whole history",
			Destination: &histClear,
		},
	)
)

func historyAction(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	client := newClient()
	defer client.Close()
	if histClear {
		if err := client.HistoryClear(context.Background()); err != nil {
			cmdCommon.PrintRuntimeErr(ctx, "history", "clear", err)
			return nil
		}
		fmt.Println("wanpull: history cleared")
		return nil
	}
	entries, err := client.History(context.Background(), histLimit)
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "history", "get_history", err)
		return nil
	}
	if histCSV != "" {
		f, err := os.Create(histCSV)
		if err != nil {
			cmdCommon.PrintRuntimeErr(ctx, "history", "create_csv", err)
			return nil
		}
		defer f.Close()
		if err := history.ExportCSV(f, entries); err != nil {
			cmdCommon.PrintRuntimeErr(ctx, "history", "write_csv", err)
			return nil
		}
		fmt.Printf("wrote %d entries to %s\n", len(entries), histCSV)
		return nil
	}
	if len(entries) == 0 {
		fmt.Println("wanpull: history is empty")
		return nil
	}
	fmt.Printf("%-19s %-10s %-10s %-15s %10s  %s\n", "FINISHED", "ID", "OUTCOME", "INTERFACE", "BYTES", "URL")
	for _, e := range entries {
		fmt.Printf("%-19s %-10s %-10s %-15s %10s  %s\n",
			e.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			cmdCommon.Truncate(e.ID, idWidth),
			e.Outcome,
			e.InterfaceIP,
			cmdCommon.Bytes(e.Bytes),
			e.URL,
		)
		if e.Reason != "" {
			fmt.Printf("%19s reason: %s\n", "", e.Reason)
		}
	}
	return nil
}
