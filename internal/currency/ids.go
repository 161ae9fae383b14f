package currency

import "github.com/google/uuid"

// Reserved system identities. They are provisioned before the first
// transfer that references them.
var (
	BankerID      = uuid.MustParse("6d0f6a1c-3b1e-4c4e-9a0a-000000000b4e")
	MarketplaceID = uuid.MustParse("6d0f6a1c-3b1e-4c4e-9a0a-0000000004a7")
)

// IsSystem reports whether id is the Banker or the Marketplace.
func IsSystem(id uuid.UUID) bool {
	return id == BankerID || id == MarketplaceID
}
