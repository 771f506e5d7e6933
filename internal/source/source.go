// Package source provides the measurement sources feeding the aggregator:
// a Withings CSV export reader and the remote measure API. Both yield the
// same raw record shape, so the aggregation pipeline does not care where the
// data came from.
package source

import (
	"context"

	"w2wcli/internal/aggregate"
)

// Source yields raw measurement records for a configured range or file.
// Fetch returns the complete record set in one batch; it never streams.
type Source interface {
	Fetch(ctx context.Context) ([]aggregate.RawRecord, error)
}
