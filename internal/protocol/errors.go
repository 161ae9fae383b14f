package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Region routing/state.
	ErrRegionNotFound = "E_REGION_NOT_FOUND"
	ErrSessionTaken   = "E_SESSION_TAKEN"

	// Request layer.
	ErrBadRequest     = "E_BAD_REQUEST"
	ErrInvalidTarget  = "E_INVALID_TARGET"
	ErrNoParcel       = "E_NO_PARCEL"
	ErrLandNotForSale = "E_LAND_NOT_FOR_SALE"
	ErrParcelChanged  = "E_PARCEL_CHANGED"
	ErrInternal       = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrRegionNotFound:  {},
	ErrSessionTaken:    {},
	ErrBadRequest:      {},
	ErrInvalidTarget:   {},
	ErrNoParcel:        {},
	ErrLandNotForSale:  {},
	ErrParcelChanged:   {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
