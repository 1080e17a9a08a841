// Package report renders staged rows as CSV, Markdown or HTML.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/greenledger/ghgstage/pkg/ghg"
	"github.com/greenledger/ghgstage/pkg/staging"
)

var printer = message.NewPrinter(language.English)

var csvHeader = []string{
	"scope", "database", "main_category", "sub_category", "activity",
	"selection1", "selection2", "unit", "frequency", "emission_factor", "subcategory_id",
}

// WriteCSV writes one record per row under a header line. Unresolved rows
// carry an empty factor.
func WriteCSV(w io.Writer, rows []staging.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		factor := ""
		if r.Resolved {
			factor = r.EmissionFactor.String()
		}
		rec := []string{
			fmt.Sprint(int(r.Scope)), string(r.Database), r.MainCategory, r.SubCategory, r.Activity,
			r.Selection1, r.Selection2, r.Unit, r.Frequency, factor, r.SubcategoryID,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Markdown renders rows grouped by scope, one table per scope that has rows.
func Markdown(title string, rows []staging.Row) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)

	byScope := make(map[ghg.Scope][]staging.Row)
	for _, r := range rows {
		byScope[r.Scope] = append(byScope[r.Scope], r)
	}
	if len(rows) == 0 {
		b.WriteString("No staged rows.\n")
		return b.String()
	}
	for _, scope := range ghg.AllScopes {
		list := byScope[scope]
		if len(list) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n", scope)
		b.WriteString("| Activity | Category | Selection | Unit | Frequency | Factor |\n")
		b.WriteString("|---|---|---|---|---|---:|\n")
		for _, r := range list {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
				cell(r.Activity),
				cell(r.MainCategory+" / "+r.SubCategory),
				cell(selection(r)),
				cell(r.Unit),
				cell(r.Frequency),
				factorCell(r),
			)
		}
		fmt.Fprintf(&b, "\n%s row(s), %s pending sync.\n\n", printer.Sprintf("%d", len(list)), printer.Sprintf("%d", pending(list)))
	}
	return b.String()
}

// HTML renders the Markdown report as a standalone HTML page.
func HTML(title string, rows []staging.Row) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Title: title,
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.ToHTML([]byte(Markdown(title, rows)), p, renderer)
}

// FormatFactor prints a factor with thousand separators, keeping every
// decimal place.
func FormatFactor(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	s := d.String()
	frac := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		frac = s[i:]
	}
	return sign + printer.Sprintf("%d", d.IntPart()) + frac
}

func factorCell(r staging.Row) string {
	if !r.Resolved {
		return ghg.Placeholder
	}
	return FormatFactor(r.EmissionFactor)
}

func selection(r staging.Row) string {
	var parts []string
	for _, v := range []string{r.Selection1, r.Selection2} {
		if v != "" && v != ghg.NotApplicableLabel {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return ghg.NotApplicableLabel
	}
	return strings.Join(parts, ", ")
}

func pending(rows []staging.Row) int {
	n := 0
	for _, r := range rows {
		if r.Pending() {
			n++
		}
	}
	return n
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// Write renders rows in format ("csv", "md" or "html") to w.
func Write(w io.Writer, format, title string, rows []staging.Row) error {
	switch strings.ToLower(format) {
	case "csv", "":
		return WriteCSV(w, rows)
	case "md", "markdown":
		_, err := io.WriteString(w, Markdown(title, rows))
		return err
	case "html":
		_, err := io.Copy(w, bytes.NewReader(HTML(title, rows)))
		return err
	default:
		return fmt.Errorf("unknown report format %q (want csv, md or html)", format)
	}
}
