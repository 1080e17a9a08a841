package storage

import (
	"fmt"

	"github.com/greenledger/ghgstage/pkg/staging"
)

// fingerprint covers every stored field of a row except its position.
func fingerprint(r staging.Row) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%s|%s|%s|%s|%s|%s|%d",
		r.ServerID, r.Database, r.MainCategoryID, r.MainCategory, r.SubCategory, r.Activity,
		r.Selection1, r.Selection2, r.Unit, r.Frequency, r.EmissionFactor.String(),
		r.SubcategoryID, r.RemoteSubcategoryID, boolToInt(r.Resolved))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
