package report

import (
	"bytes"
	"context"
	"fmt"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// Markdown renders the summary of runID (latest when empty) as Markdown,
// with artifacts linked as file:// URLs.
func Markdown(ctx context.Context, src Source, runID string) (string, error) {
	sum, err := buildSummary(ctx, src, runID, fileLinks)
	if err != nil {
		return "", fmt.Errorf("report: summary: %w", err)
	}
	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, sum); err != nil {
		return "", fmt.Errorf("report: render: %w", err)
	}
	md, err := mdConverter.ConvertString(buf.String())
	if err != nil {
		return "", fmt.Errorf("report: markdown: %w", err)
	}
	return md, nil
}
