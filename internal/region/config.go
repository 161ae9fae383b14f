package region

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"gridbank.ai/internal/currency"
)

type Config struct {
	DefaultObjectCapacity int          `yaml:"default_object_capacity"`
	Regions               []RegionSpec `yaml:"regions"`
}

type RegionSpec struct {
	ID             string       `yaml:"id"`
	ObjectCapacity int          `yaml:"object_capacity"`
	Parcels        []ParcelSpec `yaml:"parcels,omitempty"`
	Objects        []ObjectSpec `yaml:"objects,omitempty"`
}

type ParcelSpec struct {
	LocalID    int        `yaml:"local_id"`
	ID         uuid.UUID  `yaml:"id"`
	Name       string     `yaml:"name"`
	Owner      uuid.UUID  `yaml:"owner"`
	AuthBuyer  uuid.UUID  `yaml:"auth_buyer"`
	SalePrice  int64      `yaml:"sale_price"`
	ForSale    bool       `yaml:"for_sale"`
	SellObject bool       `yaml:"sell_objects"`
	Min        [2]float64 `yaml:"min"`
	Max        [2]float64 `yaml:"max"`
}

type ObjectSpec struct {
	ID       uuid.UUID `yaml:"id"`
	Name     string    `yaml:"name"`
	Owner    uuid.UUID `yaml:"owner"`
	Position Vec3      `yaml:"position"`
}

// LoadConfig reads regions.yaml. An empty path yields one default region.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	if strings.TrimSpace(path) == "" {
		cfg = defaults()
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("regions.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("regions.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		DefaultObjectCapacity: 15000,
		Regions: []RegionSpec{{
			ID:      "sandbox",
			Parcels: []ParcelSpec{{LocalID: 1, Name: "Sandbox", Max: [2]float64{256, 256}}},
		}},
	}
}

func (c *Config) Normalize() {
	if c.DefaultObjectCapacity <= 0 {
		c.DefaultObjectCapacity = 15000
	}
	for i := range c.Regions {
		r := &c.Regions[i]
		r.ID = strings.TrimSpace(r.ID)
		if r.ObjectCapacity <= 0 {
			r.ObjectCapacity = c.DefaultObjectCapacity
		}
		for j := range r.Parcels {
			p := &r.Parcels[j]
			if p.ID == uuid.Nil {
				p.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("parcel:"+r.ID+":"+fmt.Sprint(p.LocalID)))
			}
		}
	}
}

func (c Config) Validate() error {
	if len(c.Regions) == 0 {
		return fmt.Errorf("regions must not be empty")
	}
	seen := map[string]bool{}
	for _, r := range c.Regions {
		if r.ID == "" {
			return fmt.Errorf("region id must not be empty")
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate region id: %s", r.ID)
		}
		seen[r.ID] = true
		parcels := map[int]bool{}
		for _, p := range r.Parcels {
			if p.LocalID <= 0 {
				return fmt.Errorf("region %s: parcel local_id must be positive", r.ID)
			}
			if parcels[p.LocalID] {
				return fmt.Errorf("region %s: duplicate parcel local_id %d", r.ID, p.LocalID)
			}
			parcels[p.LocalID] = true
			if p.SalePrice < 0 {
				return fmt.Errorf("region %s: parcel %d sale_price must not be negative", r.ID, p.LocalID)
			}
			if p.Max[0] <= p.Min[0] || p.Max[1] <= p.Min[1] {
				return fmt.Errorf("region %s: parcel %d has empty bounds", r.ID, p.LocalID)
			}
		}
		for _, o := range r.Objects {
			if o.ID == uuid.Nil {
				return fmt.Errorf("region %s: object id must not be empty", r.ID)
			}
		}
	}
	return nil
}

func (p ParcelSpec) parcel() Parcel {
	var flags currency.ParcelFlags
	if p.ForSale {
		flags |= currency.ParcelForSale
	}
	if p.SellObject {
		flags |= currency.ParcelSellParcelObjects
	}
	return Parcel{
		LocalID:     p.LocalID,
		ID:          p.ID,
		Name:        p.Name,
		OwnerID:     p.Owner,
		AuthBuyerID: p.AuthBuyer,
		SalePrice:   p.SalePrice,
		Flags:       flags,
		MinX:        p.Min[0],
		MinY:        p.Min[1],
		MaxX:        p.Max[0],
		MaxY:        p.Max[1],
	}
}

// Build creates a Scene per configured region, in config order.
func (c Config) Build(logger *zap.Logger) []*Scene {
	out := make([]*Scene, 0, len(c.Regions))
	for _, rs := range c.Regions {
		s := NewScene(rs.ID, rs.ObjectCapacity, logger)
		for _, p := range rs.Parcels {
			s.SetParcel(p.parcel())
		}
		for _, o := range rs.Objects {
			s.AddObject(Object{ID: o.ID, Name: o.Name, OwnerID: o.Owner, Position: o.Position})
		}
		out = append(out, s)
	}
	return out
}

// Owners lists the distinct non-nil parcel and object owners, in config
// order.
func (c Config) Owners() []uuid.UUID {
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	add := func(id uuid.UUID) {
		if id != uuid.Nil && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, r := range c.Regions {
		for _, p := range r.Parcels {
			add(p.Owner)
		}
		for _, o := range r.Objects {
			add(o.Owner)
		}
	}
	return out
}
