package currency

import "strconv"

// Kind is the transaction kind. Values match the viewer money codes.
type Kind int32

const (
	KindGroupCreate  Kind = 1002
	KindGroupJoin    Kind = 1004
	KindUploadCharge Kind = 1101
	KindDirectoryFee Kind = 2006
	KindObjectSale   Kind = 5000
	KindGift         Kind = 5001
	KindLandSale     Kind = 5002
	KindPayObject    Kind = 5008
	KindObjectPays   Kind = 5009
	KindStipend      Kind = 10000
	KindSystemCharge Kind = 10001
)

var kindNames = map[Kind]string{
	KindGroupCreate:  "group_create",
	KindGroupJoin:    "group_join",
	KindUploadCharge: "upload_charge",
	KindDirectoryFee: "directory_fee",
	KindObjectSale:   "object_sale",
	KindGift:         "gift",
	KindLandSale:     "land_sale",
	KindPayObject:    "pay_object",
	KindObjectPays:   "object_pays",
	KindStipend:      "stipend",
	KindSystemCharge: "system_charge",
}

func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// ParseKind accepts either a kind name or its numeric code.
func ParseKind(s string) (Kind, bool) {
	for k, n := range kindNames {
		if n == s {
			return k, true
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	k := Kind(n)
	return k, k.Valid()
}

// PurchaseKinds are the kinds counted as purchases by the history queries.
var PurchaseKinds = []Kind{KindObjectSale, KindLandSale, KindPayObject}
