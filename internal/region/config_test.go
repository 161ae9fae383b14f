package region

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestLoadConfig_RepoFile(t *testing.T) {
	cfg, err := LoadConfig("../../configs/regions.yaml")
	if err != nil {
		t.Fatalf("load regions.yaml: %v", err)
	}
	if len(cfg.Regions) != 2 {
		t.Fatalf("regions: got %d want 2", len(cfg.Regions))
	}
	scenes := cfg.Build(nil)
	harbor := scenes[0]
	if harbor.ID() != "harbor" || harbor.ObjectCapacity() != 20000 {
		t.Fatalf("harbor: id=%s cap=%d", harbor.ID(), harbor.ObjectCapacity())
	}
	if scenes[1].ObjectCapacity() != 15000 {
		t.Fatalf("meadow should inherit default capacity, got %d", scenes[1].ObjectCapacity())
	}
	p, ok := harbor.Parcel(2)
	if !ok || !p.Offer().ForSale() || p.SalePrice != 1000 || p.ID == uuid.Nil {
		t.Fatalf("dockside parcel: %+v", p)
	}
	if _, ok := harbor.Object(uuid.MustParse("3b4f8a62-1d2e-4f5a-8b9c-0d1e2f3a4b5c")); !ok {
		t.Fatalf("tip jar object missing")
	}
	if owners := cfg.Owners(); len(owners) != 1 || owners[0] != p.OwnerID {
		t.Fatalf("owners: %v", owners)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"empty":            "regions: []\n",
		"duplicate region": "regions:\n  - id: a\n  - id: a\n",
		"bad parcel":       "regions:\n  - id: a\n    parcels:\n      - local_id: 0\n        max: [1, 1]\n",
		"empty bounds":     "regions:\n  - id: a\n    parcels:\n      - local_id: 1\n",
		"bad uuid":         "regions:\n  - id: a\n    objects:\n      - id: nope\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "regions.yaml")
			if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := LoadConfig(p); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
