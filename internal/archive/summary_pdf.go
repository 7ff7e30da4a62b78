package archive

import (
	"fmt"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var headerColor = &props.Color{Red: 0, Green: 70, Blue: 127}

func summaryPDF(bundle Bundle) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("Resumo DARE", true).
		Build()

	m := maroto.New(cfg)
	m.AddRows(
		text.NewRow(10, "Resumo de DAREs", props.Text{Style: fontstyle.Bold, Size: 13, Color: headerColor}),
		text.NewRow(6, fmt.Sprintf(
			"%s   |   %s   |   empresas: %d   falhas: %d   documentos: %d",
			bundle.Tenant,
			bundle.GeneratedAt.Format("02/01/2006 15:04"),
			bundle.Entities,
			bundle.Failed,
			bundle.Artifacts(),
		), props.Text{Size: 8}),
		line.NewRow(2, props.Line{Color: headerColor, Thickness: 0.4}),
		tableRow(true, "Código", "Empresa", "Documentos", "Total", "Erros"),
	)

	for _, entry := range bundle.Entries {
		m.AddRows(tableRow(
			false,
			entry.Code,
			entry.LegalName,
			fmt.Sprintf("%d", len(entry.Artifacts)),
			entryTotal(entry).StringFixed(2),
			strings.Join(entry.Errors, "; "),
		))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("summary pdf: %w", err)
	}
	return doc.GetBytes(), nil
}

func tableRow(header bool, code, name, files, total, errs string) core.Row {
	style := props.Text{Size: 8, Top: 1}
	if header {
		style.Style = fontstyle.Bold
		style.Color = headerColor
	}
	right := style
	right.Align = align.Right

	return row.New(7).Add(
		col.New(1).Add(text.New(code, style)),
		col.New(4).Add(text.New(name, style)),
		col.New(2).Add(text.New(files, right)),
		col.New(2).Add(text.New(total, right)),
		col.New(3).Add(text.New(errs, style)),
	)
}
