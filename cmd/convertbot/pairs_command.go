package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"convertbot/internal/catalog"
)

type pairView struct {
	Key     string `json:"key"`
	From    string `json:"from"`
	To      string `json:"to"`
	Enabled bool   `json:"enabled"`
}

func newPairsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pairs",
		Short: "List conversion pairs and whether the bot offers them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			enabled, err := catalog.New(cfg.Conversion.EnabledPairs)
			if err != nil {
				return err
			}
			views := pairViews(catalog.Builtin(), enabled)
			if ctx.JSONMode() {
				return writeJSON(cmd, views)
			}
			rows := make([][]string, 0, len(views))
			for _, v := range views {
				rows = append(rows, []string{v.Key, v.From, v.To, yesNo(v.Enabled)})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"Pair", "From", "To", "Enabled"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func pairViews(pairs []catalog.Pair, enabled *catalog.Catalog) []pairView {
	upper := cases.Upper(language.Und)
	views := make([]pairView, 0, len(pairs))
	for _, p := range pairs {
		views = append(views, pairView{
			Key:     string(p.Key),
			From:    upper.String(strings.TrimPrefix(p.SourceExt, ".")),
			To:      upper.String(strings.TrimPrefix(p.TargetExt, ".")),
			Enabled: enabled.Enabled(p.Key),
		})
	}
	return views
}
