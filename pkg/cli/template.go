package cli

import (
	"fmt"

	"github.com/mchmarny/credscore/pkg/features"
	"github.com/mchmarny/credscore/pkg/table"
	"github.com/urfave/cli/v2"
)

var (
	csvFlag = &cli.BoolFlag{
		Name:  "csv",
		Usage: "Print the template row as CSV instead of the encoded template",
	}

	templateCmd = &cli.Command{
		Name:    "template",
		Aliases: []string{"t"},
		Usage:   "Show the feature columns and the template row built from the reference table",
		Action:  cmdTemplate,
		Flags: []cli.Flag{
			csvFlag,
		},
	}
)

// TemplateInfo is the printable form of a feature template.
type TemplateInfo struct {
	Label    string                 `json:"label" yaml:"label"`
	Columns  []string               `json:"columns" yaml:"columns"`
	Template map[string]table.Value `json:"template" yaml:"template"`
	Filled   []string               `json:"filled,omitempty" yaml:"filled,omitempty"`
}

func newTemplateInfo(t *features.Template) *TemplateInfo {
	cols := t.Columns()
	info := &TemplateInfo{
		Label:    t.Label(),
		Columns:  cols,
		Template: make(map[string]table.Value, len(cols)),
		Filled:   t.Filled(),
	}
	for _, c := range cols {
		info.Template[c], _ = t.Value(c)
	}
	return info
}

func cmdTemplate(c *cli.Context) error {
	svc, err := getService(c)
	if err != nil {
		return fmt.Errorf("loading model: %w", err)
	}

	if c.Bool(csvFlag.Name) {
		return table.WriteCSV(stdout, svc.Template().Row(), false)
	}
	return encode(newTemplateInfo(svc.Template()))
}
