// Package common holds the helpers shared by the wanpull commands: help and
// error printing, table cell formatting and the watch progress bars.
package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/wanpull/wanpull/pkg/wancli"
	"github.com/wanpull/wanpull/pkg/wanlib"
)

// VersionCmdStr is printed by the version command. Execute fills it in.
var VersionCmdStr string

var (
	showAppHelpAndExit = cli.ShowAppHelpAndExit
	showCommandHelp    = cli.ShowCommandHelp
)

var stateColors = map[wanlib.TransferState]*color.Color{
	wanlib.StateQueued:    color.New(color.FgCyan),
	wanlib.StateActive:    color.New(color.FgBlue, color.Bold),
	wanlib.StatePaused:    color.New(color.FgYellow),
	wanlib.StateCompleted: color.New(color.FgGreen),
	wanlib.StateFailed:    color.New(color.FgRed, color.Bold),
	wanlib.StateCancelled: color.New(color.FgMagenta),
}

// ColorState renders st padded to width, coloured when stdout is a terminal.
func ColorState(st wanlib.TransferState, width int) string {
	s := fmt.Sprintf("%-*s", width, st.String())
	if c, ok := stateColors[st]; ok {
		return c.Sprint(s)
	}
	return s
}

// Bytes formats n as a human size, "-" when unknown.
func Bytes(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(n))
}

// Rate formats a bytes per second figure, "unlimited" for zero.
func Rate(bps int64) string {
	if bps <= 0 {
		return "unlimited"
	}
	return humanize.Bytes(uint64(bps)) + "/s"
}

// Percent is done/total as "42%", or "?" without a total.
func Percent(done, total int64) string {
	if total <= 0 {
		return "?"
	}
	return fmt.Sprintf("%d%%", done*100/total)
}

// Truncate shortens s to n characters with a trailing ellipsis.
func Truncate(s string, n int) string {
	if len(s) <= n || n < 4 {
		return s
	}
	return s[:n-3] + "..."
}

// NewTransferBar adds a bar for one transfer to p. The total can grow
// later through SetTotal, and SetTotal(-1, true) completes the bar.
func NewTransferBar(p *mpb.Progress, name string, total, current int64) *mpb.Bar {
	barStyle := mpb.BarStyle().Lbound("╢").Filler("█").Tip("█").Padding("░").Rbound("╟")
	bar := p.New(0,
		barStyle,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
			decor.OnComplete(
				decor.AverageETA(decor.ET_STYLE_GO, decor.WC{W: 4}), "done",
			),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f", decor.WC{W: 20}),
			decor.AverageSpeed(decor.SizeB1024(0), " % .2f"),
		),
	)
	if total > 0 {
		bar.SetTotal(total, false)
	}
	if current > 0 {
		bar.SetCurrent(current)
	}
	return bar
}

// Help displays the application help, or the help of the named command.
func Help(ctx *cli.Context) error {
	arg := ctx.Args().First()
	if arg == "" || arg == "help" {
		fmt.Printf("%s %s\n", ctx.App.Name, ctx.App.Version)
		showAppHelpAndExit(ctx, 0)
		return nil
	}
	err := showCommandHelp(ctx, arg)
	if err != nil {
		return PrintErrWithHelp(ctx, err)
	}
	return nil
}

func GetVersion(ctx *cli.Context) error {
	fmt.Println(VersionCmdStr)
	return nil
}

// PrintRuntimeErr prints "<app>: <cmd>[<action>]: <message>". Daemon
// errors are shown with their plain message.
func PrintRuntimeErr(ctx *cli.Context, cmd, action string, err error) {
	if err == nil {
		fmt.Println("err is nil", "[", cmd, "|", action, "]")
		return
	}
	var name string
	if ctx != nil {
		name = ctx.App.HelpName
	} else {
		name = os.Args[0]
	}
	fmt.Printf("%s: %s[%s]: %s\n", name, cmd, action, wancli.ErrorMessage(err))
}

// PrintErrWithCmdHelp prints err followed by the current command's help.
func PrintErrWithCmdHelp(ctx *cli.Context, err error) error {
	return printErrWithCallback(
		ctx,
		err,
		func() {
			err := showCommandHelp(ctx, ctx.Command.Name)
			if err != nil {
				fmt.Println(err.Error())
			}
		},
	)
}

// PrintErrWithHelp prints err followed by the application help and exits
// with status 1.
func PrintErrWithHelp(ctx *cli.Context, err error) error {
	return printErrWithCallback(
		ctx,
		err,
		func() {
			showAppHelpAndExit(ctx, 1)
		},
	)
}

func printErrWithCallback(ctx *cli.Context, err error, callback func()) error {
	if err == nil {
		return nil
	}
	estr := strings.ToLower(err.Error())
	if estr == "flag: help requested" {
		return Help(ctx)
	}
	fmt.Printf("%s: %s\n\n", ctx.App.HelpName, err.Error())
	callback()
	return nil
}

// UsageErrorCallback is the OnUsageError hook of the app and its commands.
func UsageErrorCallback(ctx *cli.Context, err error, _ bool) error {
	if ctx.Command.Name != "" {
		return PrintErrWithCmdHelp(ctx, err)
	}
	return PrintErrWithHelp(ctx, err)
}

// Beaut centers s in a field of width n.
func Beaut(s string, n int) (b string) {
	x := n - len(s)
	if x <= 0 {
		return s
	}
	w := strings.Repeat(" ", x/2)
	b = w + s + w
	if x%2 != 0 {
		b += " "
	}
	return
}
