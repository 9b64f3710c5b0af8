package domain

import "time"

// UniqueFlag is the high bit of the token identifier space. Identifiers with
// the bit set are unique items (quantity fixed at 1); identifiers with the bit
// clear are fungible item types with a registry-tracked supply. Within each
// half the registry assigns identifiers sequentially at mint time.
const UniqueFlag uint64 = 1 << 63

// IsUnique reports whether tokenID falls in the unique (non-fungible) space.
func IsUnique(tokenID uint64) bool {
	return tokenID&UniqueFlag != 0
}

type Item struct {
	TokenID   uint64
	URI       string
	Supply    uint64
	CreatedAt time.Time
}
