package postgres

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// listQuery appends the ListOpts filters and paging to base, which must end
// in a WHERE clause (use "WHERE 1=1" when there is nothing to filter on).
// args are the arguments already bound in base.
func listQuery(base, timeCol, order string, opts domain.ListOpts, args ...any) (string, []any) {
	var b strings.Builder
	b.WriteString(base)
	if opts.Since != nil {
		args = append(args, *opts.Since)
		fmt.Fprintf(&b, " AND %s >= $%d", timeCol, len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		fmt.Fprintf(&b, " AND %s <= $%d", timeCol, len(args))
	}
	fmt.Fprintf(&b, " ORDER BY %s %s", timeCol, order)
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}
