package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Show version"`
	Server  ServerCmd        `cmd:"" help:"Run the El Dorado game server"`
	Replay  ReplayCmd        `cmd:"" help:"Replay a game's event log and print the outcome"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("eldorado"),
		kong.Description("Authoritative server for the El Dorado trick-taking game"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
