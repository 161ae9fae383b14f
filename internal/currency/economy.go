package currency

// EconomyData is the fee table sent to a viewer that asks for it.
type EconomyData struct {
	EnergyEfficiency       float32 `json:"energy_efficiency"`
	ObjectCapacity         int     `json:"object_capacity"`
	ObjectCount            int     `json:"object_count"`
	PriceEnergyUnit        int64   `json:"price_energy_unit"`
	PriceGroupCreate       int64   `json:"price_group_create"`
	PriceObjectClaim       int64   `json:"price_object_claim"`
	PriceObjectRent        float32 `json:"price_object_rent"`
	PriceObjectScaleFactor float32 `json:"price_object_scale_factor"`
	PriceParcelClaim       int64   `json:"price_parcel_claim"`
	PriceParcelClaimFactor float32 `json:"price_parcel_claim_factor"`
	PriceParcelRent        int64   `json:"price_parcel_rent"`
	PricePublicObjectDecay int64   `json:"price_public_object_decay"`
	PricePublicObjectDel   int64   `json:"price_public_object_delete"`
	PriceRentLight         int64   `json:"price_rent_light"`
	PriceUpload            int64   `json:"price_upload"`
	TeleportMinPrice       int64   `json:"teleport_min_price"`
	TeleportPriceExponent  float32 `json:"teleport_price_exponent"`
}

// EconomyFor builds the economy data for a region. With no configuration
// every fee is zero. Only the group-create and upload fees are priced.
// Viewers expect ObjectCount to carry the capacity as well.
func EconomyFor(cfg *Config, objectCapacity int) EconomyData {
	d := EconomyData{
		ObjectCapacity: objectCapacity,
		ObjectCount:    objectCapacity,
	}
	if cfg != nil {
		d.PriceGroupCreate = cfg.PriceGroupCreate
		d.PriceUpload = cfg.PriceUpload
	}
	return d
}
