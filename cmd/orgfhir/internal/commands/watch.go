package commands

import (
	"context"

	"orgfhir/internal/fhir"
	"orgfhir/internal/watcher"
)

type WatchCmd struct {
	Push bool `help:"Submit a transaction whenever the generated resources change (defaults to WATCH_PUSH)."`
	Once bool `help:"Run a single cycle and exit."`
}

func (c *WatchCmd) Run(ctx context.Context, globals *Globals) (err error) {
	rt, err := setup(globals)
	if err != nil {
		return err
	}
	counts := map[string]int{}
	defer func() { rt.finish(ctx, "watch", counts, err) }()

	var submit watcher.Submitter
	if c.Push || rt.cfg.WatchPush {
		client, err := fhir.NewClient(ctx, rt.cfg)
		if err != nil {
			return err
		}
		submit = client
	}
	var meta watcher.MetadataStore
	if rt.db != nil {
		meta = rt.db
	}

	svc := watcher.NewService(rt.cfg, rt.dir, rt.syncService(), submit, meta, rt.log)
	if !c.Once {
		rt.log.Info().Int("interval_sec", rt.cfg.WatchIntervalSec).Bool("push", submit != nil).Msg("watching object storage")
		return svc.Run(ctx)
	}

	res, err := svc.RunCycle(ctx)
	counts["downloaded"], counts["resources"] = res.Downloaded, res.Resources
	if res.Pushed {
		counts["pushed"] = 1
	}
	if err != nil {
		return err
	}
	rt.log.Info().Int("resources", res.Resources).Bool("changed", res.Changed).Bool("pushed", res.Pushed).Msg("watch cycle done")
	return nil
}
