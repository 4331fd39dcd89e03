package cmd

import (
	"context"
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	cmdCommon "github.com/wanpull/wanpull/cmd/common"
)

const sparkWidth = 30

var sparkRunes = []rune(" ▁▂▃▄▅▆▇█")

func stats(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	client := newClient()
	defer client.Close()
	st, err := client.Bandwidth(context.Background())
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "stats", "bandwidth", err)
		return nil
	}
	fmt.Printf("bandwidth over the last %s\n", st.Window)
	fmt.Printf("%-24s %-12s %-12s %-12s %s\n", "INTERFACE", "CURRENT", "PEAK", "AVERAGE", "HISTORY")
	for _, ib := range st.Interfaces {
		name := fmt.Sprintf("%s (%s)", ib.InterfaceName, ib.InterfaceID)
		fmt.Printf("%-24s %-12s %-12s %-12s %s\n", cmdCommon.Truncate(name, 24),
			speed(ib.Current), speed(ib.Peak), speed(ib.Average), sparkline(ib.History, sparkWidth))
	}
	fmt.Printf("%-24s %-12s %-12s %-12s %s\n", "total",
		speed(st.Total.Current), speed(st.Total.Peak), speed(st.Total.Average), sparkline(st.TotalHistory, sparkWidth))
	return nil
}

func speed(bps float64) string {
	if bps <= 0 {
		return "0 B/s"
	}
	return humanize.Bytes(uint64(bps)) + "/s"
}

// sparkline renders the last width points scaled to their maximum.
func sparkline(pts []float64, width int) string {
	if len(pts) > width {
		pts = pts[len(pts)-width:]
	}
	var top float64
	for _, v := range pts {
		top = math.Max(top, v)
	}
	out := make([]rune, len(pts))
	for i, v := range pts {
		idx := 0
		if top > 0 && v > 0 {
			idx = 1 + int(v/top*float64(len(sparkRunes)-2))
		}
		out[i] = sparkRunes[idx]
	}
	return string(out)
}
