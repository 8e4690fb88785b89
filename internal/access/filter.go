package access

import (
	"fmt"

	"github.com/notepid/twilight_forum/internal/domain"
)

// VisibleAreas returns a SQL condition, with its arguments, that holds for
// rows of the areas table (referenced as alias) that p may read. Listings and
// searches filter with it up front instead of checking rows afterwards; it
// encodes the same rule Decide applies to ReadArea.
func VisibleAreas(p domain.Principal, alias string) (string, []any) {
	switch {
	case !p.Authenticated():
		return "1 = 0", nil
	case p.IsAdmin():
		return "1 = 1", nil
	default:
		return fmt.Sprintf(`(%[1]s.is_secret = 0 OR EXISTS (
			SELECT 1 FROM secret_area_privileges sap
			WHERE sap.area_id = %[1]s.id AND sap.user_id = ?))`, alias), []any{p.UserID}
	}
}
