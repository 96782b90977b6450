package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"orgfhir/cmd/orgfhir/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Download commands.DownloadCmd `cmd:"" help:"Download source tables from object storage into the data directory"`
		Clean    commands.CleanCmd    `cmd:"" help:"Normalize source tables and save them as cleaned CSV"`
		Upload   commands.UploadCmd   `cmd:"" help:"Upload every CSV in the data directory to object storage"`
		Push     commands.PushCmd     `cmd:"" help:"Derive FHIR resources and submit them as one transaction"`
		Generate commands.GenerateCmd `cmd:"" help:"Derive FHIR resources and write them as a collection bundle"`
		Mock     commands.MockCmd     `cmd:"" help:"Replace contact columns with generated mock contacts"`
		Contacts commands.ContactsCmd `cmd:"" help:"Upsert department contacts into the contact database"`
		Watch    commands.WatchCmd    `cmd:"" help:"Periodically download, clean and regenerate resources"`
		Runs     commands.RunsCmd     `cmd:"" help:"Show recent runs from the local run log"`
		Debug    bool                 `help:"Enable debug mode."`
		Dir      string               `help:"Data directory (defaults to DATA_DIR or ./current)." type:"path"`
		Version  kong.VersionFlag
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("orgfhir"),
		kong.Description("Normalize department process tables and publish them as FHIR resources."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Dir: cli.Dir, Version: version})
	cmd.FatalIfErrorf(err)
}
