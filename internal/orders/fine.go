package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	FreeStorageDays   = 3
	StorageFinePerDay = 500
)

// StorageFine charges every full day an item waited at the destination
// beyond the free period.
func StorageFine(arrivedAt, now time.Time) decimal.Decimal {
	days := int(now.Sub(arrivedAt).Hours() / 24)
	if days <= FreeStorageDays {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64((days - FreeStorageDays) * StorageFinePerDay))
}
