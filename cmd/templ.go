package cmd

const HELP_TEMPL = `Usage: {{if .UsageText}}{{.UsageText}}{{else}}{{.HelpName}} {{if .VisibleFlags}}[global options]{{end}}{{if .Commands}} command [command options]{{end}} {{if .ArgsUsage}}{{.ArgsUsage}}{{else}}[arguments...]{{end}}{{end}}
{{.Description}}{{if .VisibleCommands}}
Commands:{{range .VisibleCategories}}{{if .Name}}

{{.Name}}:{{range .VisibleCommands}}
  {{join .Names ", "}}{{"\t"}}{{.Usage}}{{end}}{{else}}{{range .VisibleCommands}}
{{"\t"}}{{index .Names 0}}{{"\t:\t"}}{{.Usage}}{{end}}{{end}}{{end}}{{end}}

Use "{{.HelpName}} help <command>" for more information about any command.

`

const CMD_HELP_TEMPL = `{{if .Description}}{{.Description}}{{else}}{{.HelpName}} - {{.Usage}}

{{end}}Usage:
        {{.HelpName}} {{if .UsageText}}{{.UsageText}}{{else}}[arguments...]{{end}}{{if .VisibleFlags}}

Supported Flags:{{range .VisibleFlags}}
  {{.}}{{end}}{{end}}

`

const DESCRIPTION = `
wanpull downloads files over several internet uplinks at once. Every
transfer is pinned to the source address of one interface, at most one
transfer runs per interface, and the queue survives daemon restarts.
`

const (
	AddDescription = `The add command queues a transfer bound to the interface
owning the given source address. Queued transfers start with
"wanpull queue start", or right away with --start.

Example:
        wanpull add https://domain.com/file.iso -i 192.168.1.20 -r 2MB

`
	ListDescription = `The list command shows every active, paused and queued
transfer with its interface and progress.

Example:
        wanpull list

`
	InterfacesDescription = `The interfaces command lists the interfaces that can reach
the internet. With --all every IPv4 interface is shown,
including the ones that are down or filtered out.

Example:
        wanpull interfaces --all

`
	HistoryDescription = `The history command shows finished transfers, newest first.
Use --csv to export them and --clear to forget them.

Example:
        wanpull history -n 20 --csv finished.csv

`
	TriggerDescription = `Triggers run "start_all" or "pause_all" at a time, given as
an RFC 3339 timestamp, or repeatedly on a five field cron
expression.

Example:
        wanpull trigger add pause_all "0 8 * * 1-5"
        wanpull trigger add start_all 2026-01-02T01:00:00Z

`
	WatchDescription = `The watch command draws a progress bar per active transfer
until interrupted.

Example:
        wanpull watch --until-done

`
	StatsDescription = `The stats command shows the current, peak and average
throughput of every interface and of all of them together over the last
minute. Peak and average ignore idle samples.

Example:
        wanpull stats

`
	DaemonDescription = `The daemon command runs the download engine and its RPC
endpoint in the foreground. Configuration is read from
WANPULL_* environment variables and an optional .env file.

Example:
        WANPULL_RPC_SECRET=s3cret wanpull daemon

`
)
