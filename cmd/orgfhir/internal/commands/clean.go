package commands

import (
	"context"
	"fmt"

	"orgfhir/internal/pipeline"
)

type CleanCmd struct {
	Xlsx string `help:"Also write all cleaned tables into this workbook, one sheet per source." type:"path"`
}

func (c *CleanCmd) Run(ctx context.Context, globals *Globals) (err error) {
	rt, err := setup(globals)
	if err != nil {
		return err
	}
	counts := map[string]int{}
	defer func() { rt.finish(ctx, "clean", counts, err) }()

	if err := rt.ensureData(ctx); err != nil {
		return err
	}

	res, err := rt.service().Clean(rt.dir)
	if err != nil {
		return fmt.Errorf("clean failed: %w", err)
	}
	counts["tables"] = len(res.Tables)
	for _, t := range res.Tables {
		counts["rows"] += len(t.Rows)
	}

	if c.Xlsx != "" {
		if err := pipeline.ExportXLSX(res.Tables, c.Xlsx); err != nil {
			return fmt.Errorf("workbook export failed: %w", err)
		}
		rt.log.Info().Str("path", c.Xlsx).Msg("workbook written")
	}

	rt.log.Info().Int("tables", counts["tables"]).Int("rows", counts["rows"]).Str("dir", rt.dir).Msg("clean complete")
	return nil
}
