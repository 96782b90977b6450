package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"orgfhir/internal/fhir"
)

type PushCmd struct {
	DryRun bool `help:"Build the transaction bundle and print it instead of submitting it."`
}

func (c *PushCmd) Run(ctx context.Context, globals *Globals) (err error) {
	rt, err := setup(globals)
	if err != nil {
		return err
	}
	counts := map[string]int{}
	defer func() { rt.finish(ctx, "push", counts, err) }()

	if err := rt.ensureData(ctx); err != nil {
		return err
	}
	entities, err := rt.service().Entities(rt.dir)
	if err != nil {
		return err
	}
	bundle := fhir.NewTransactionBundle(fhir.FromEntities(entities), fhir.NewUUID)
	counts["entries"] = len(bundle.Entry)

	if c.DryRun {
		return bundle.WriteJSON(os.Stdout)
	}

	client, err := fhir.NewClient(ctx, rt.cfg)
	if err != nil {
		return err
	}
	rt.log.Info().Int("entries", len(bundle.Entry)).Str("server", client.BaseURL()).Msg("uploading transaction bundle")
	if _, err := client.SubmitTransaction(ctx, bundle); err != nil {
		return fmt.Errorf("failed to upload bundle: %w", err)
	}
	rt.log.Info().Msg("upload successful")
	return nil
}

type GenerateCmd struct {
	Output string `help:"Output file (defaults to GENERATED_FILE)." type:"path"`
}

func (c *GenerateCmd) Run(ctx context.Context, globals *Globals) (err error) {
	rt, err := setup(globals)
	if err != nil {
		return err
	}
	counts := map[string]int{}
	defer func() { rt.finish(ctx, "generate", counts, err) }()

	if err := rt.ensureData(ctx); err != nil {
		return err
	}
	entities, err := rt.service().Entities(rt.dir)
	if err != nil {
		return err
	}
	resources := fhir.FromEntities(entities)
	counts["resources"] = len(resources)

	output := c.Output
	if output == "" {
		output = rt.cfg.GeneratedFile
	}
	if err := writeBundle(output, fhir.NewCollectionBundle(resources)); err != nil {
		return err
	}
	rt.log.Info().Int("resources", len(resources)).Str("path", output).Msg("resources saved")
	return nil
}

func writeBundle(path string, bundle fhir.Bundle) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := bundle.WriteJSON(f); err != nil {
		return err
	}
	return f.Close()
}
