package staging

import (
	"fmt"
	"io"
	"strings"

	"github.com/greenledger/ghgstage/pkg/ghg"
)

// DefaultOutputFlags prints id, path, factor, unit and frequency.
const DefaultOutputFlags = "ipfuq"

// PrintRows writes one line per row, with the fields picked by outputFlags:
//
//	i  row id
//	p  path (main > sub > activity > selection 1 > selection 2)
//	a  activity
//	f  emission factor
//	u  unit
//	q  frequency
//	s  subcategory id
//	c  scope
//	y  sync state
func PrintRows(w io.Writer, rows []Row, outputFlags, delimiter string) error {
	for _, r := range rows {
		line, err := FormatRow(r, outputFlags, delimiter)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func FormatRow(r Row, outputFlags, delimiter string) (string, error) {
	fields := make([]string, 0, len(outputFlags))
	for _, f := range outputFlags {
		switch f {
		case 'i':
			fields = append(fields, r.ID)
		case 'p':
			fields = append(fields, rowPath(r))
		case 'a':
			fields = append(fields, r.Activity)
		case 'f':
			fields = append(fields, factorText(r))
		case 'u':
			fields = append(fields, r.Unit)
		case 'q':
			fields = append(fields, r.Frequency)
		case 's':
			fields = append(fields, r.SubcategoryID)
		case 'c':
			fields = append(fields, r.Scope.String())
		case 'y':
			fields = append(fields, syncState(r))
		default:
			return "", fmt.Errorf("invalid print flag %q", f)
		}
	}
	return strings.Join(fields, delimiter), nil
}

func rowPath(r Row) string {
	parts := []string{r.MainCategory}
	for _, v := range []string{r.SubCategory, r.Activity, r.Selection1, r.Selection2} {
		if v == "" {
			break
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, " > ")
}

func factorText(r Row) string {
	if !r.Resolved {
		return ghg.Placeholder
	}
	return r.EmissionFactor.String()
}

func syncState(r Row) string {
	switch {
	case !r.Resolved:
		return "unresolved"
	case !r.Synced():
		return "local"
	case r.Pending():
		return "pending"
	default:
		return "synced"
	}
}
