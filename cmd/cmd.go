package cmd

import (
	"fmt"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/urfave/cli"

	cmdCommon "github.com/wanpull/wanpull/cmd/common"
)

type BuildArgs struct {
	Version   string
	BuildType string
	Date      string
	Commit    string
}

var buildArgs BuildArgs

func Execute(args []string, bArgs BuildArgs) error {
	// client commands pick up WANPULL_LISTEN_ADDR / WANPULL_RPC_SECRET
	// from the same .env the daemon reads
	_ = godotenv.Load()
	buildArgs = bArgs

	idCommand := func(name, usage string, action cli.ActionFunc) cli.Command {
		return cli.Command{
			Name:               name,
			Usage:              usage,
			ArgsUsage:          "<id>",
			Action:             action,
			OnUsageError:       cmdCommon.UsageErrorCallback,
			CustomHelpTemplate: CMD_HELP_TEMPL,
			Flags:              clientFlags,
		}
	}

	app := cli.App{
		Name:                  "wanpull",
		HelpName:              "wanpull",
		Usage:                 "A multi-WAN download manager.",
		Version:               fmt.Sprintf("%s-%s", bArgs.Version, bArgs.BuildType),
		UsageText:             "wanpull <command> [arguments...]",
		Description:           DESCRIPTION,
		CustomAppHelpTemplate: HELP_TEMPL,
		OnUsageError:          cmdCommon.UsageErrorCallback,
		Commands: []cli.Command{
			{
				Name:               "daemon",
				Usage:              "run the download daemon",
				Description:        DaemonDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             daemonAction,
				Flags:              daemonFlags,
			},
			{
				Name:                   "add",
				Aliases:                []string{"a"},
				Usage:                  "queue a download on an interface",
				ArgsUsage:              "<url>",
				Description:            AddDescription,
				CustomHelpTemplate:     CMD_HELP_TEMPL,
				OnUsageError:           cmdCommon.UsageErrorCallback,
				Action:                 add,
				Flags:                  addFlags,
				UseShortOptionHandling: true,
			},
			{
				Name:               "list",
				Aliases:            []string{"l"},
				Usage:              "show active, paused and queued transfers",
				Description:        ListDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       cmdCommon.UsageErrorCallback,
				Action:             list,
				Flags:              clientFlags,
			},
			idCommand("status", "show one transfer", status),
			idCommand("pause", "pause an active transfer, keeping its partial file", pauseAction),
			idCommand("resume", "resume a paused transfer from its partial file", resumeAction),
			idCommand("cancel", "cancel a transfer and delete its partial file", cancelAction),
			idCommand("requeue", "move a paused transfer back to the queue", requeueAction),
			queueCmd,
			{
				Name:               "interfaces",
				Aliases:            []string{"if"},
				Usage:              "list usable network interfaces",
				Description:        InterfacesDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       cmdCommon.UsageErrorCallback,
				Action:             interfaces,
				Flags:              ifFlags,
			},
			{
				Name:                   "history",
				Usage:                  "show finished transfers",
				Description:            HistoryDescription,
				CustomHelpTemplate:     CMD_HELP_TEMPL,
				OnUsageError:           cmdCommon.UsageErrorCallback,
				Action:                 historyAction,
				Flags:                  histFlags,
				UseShortOptionHandling: true,
			},
			triggerCmd,
			{
				Name:               "watch",
				Aliases:            []string{"w"},
				Usage:              "show live progress bars",
				Description:        WatchDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       cmdCommon.UsageErrorCallback,
				Action:             watch,
				Flags:              watchFlags,
			},
			{
				Name:               "stats",
				Usage:              "show per-interface bandwidth statistics",
				Description:        StatsDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       cmdCommon.UsageErrorCallback,
				Action:             stats,
				Flags:              clientFlags,
			},
			{
				Name:   "save",
				Usage:  "persist the queue now",
				Action: save,
				Flags:  clientFlags,
			},
			{
				Name:    "help",
				Aliases: []string{"h"},
				Usage:   "prints the help message",
				Action:  cmdCommon.Help,
			},
			{
				Name:               "version",
				Aliases:            []string{"v"},
				Usage:              "prints installed version of wanpull",
				UsageText:          " ",
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             cmdCommon.GetVersion,
			},
		},
		HideHelp:    true,
		HideVersion: true,
	}
	cmdCommon.VersionCmdStr = fmt.Sprintf("%s %s (%s_%s)\nBuild: %s=%s\n",
		app.Name,
		app.Version,
		runtime.GOOS,
		runtime.GOARCH,
		bArgs.Date, bArgs.Commit,
	)
	return app.Run(args)
}
