package model

// Node type names used to address the snapshot store.
const (
	NodeFacility     = "facility"
	NodeStorage      = "storage"
	NodeDistribution = "distribution"
	NodeProduct      = "product"
	NodeSeller       = "seller"
	NodeConsumer     = "consumer"
	NodeManufacture  = "manufacture"
)

// Summary is the engine's static node mapping, produced once at reset.
type Summary struct {
	// AgentTypes is ordered; an agent's AgentType indexes into it.
	AgentTypes []string
	// UnitMapping lists every unit the engine created, keyed by unit id.
	// Optional: when empty, unit references are not cross-checked.
	UnitMapping map[int]UnitMapping
	// Skus is the catalogue in global order.
	Skus       []Sku
	Facilities map[int]FacilitySummary
}

// UnitMapping records where the engine placed one unit.
type UnitMapping struct {
	NodeType   string
	NodeIndex  int
	FacilityID int
}

// FacilitySummary is the static description of one facility.
type FacilitySummary struct {
	ID        int
	Name      string
	NodeIndex int
	Configs   map[string]any
	Upstreams map[int][]int
	Skus      map[int]FacilitySku
	Units     FacilityUnits
}

// FacilityUnits holds the unit summaries of a facility. Nil pointers mark
// absent optional units.
type FacilityUnits struct {
	Storage      *UnitSummary
	Distribution *UnitSummary
	Products     map[int]ProductSummary
}

// UnitSummary is the construction-time view of a unit.
type UnitSummary struct {
	ID        int
	NodeIndex int
	Config    map[string]any
	Attrs     map[string]any
}

// Ref converts the summary into a handle.
func (u *UnitSummary) Ref() *UnitRef {
	if u == nil {
		return nil
	}
	return &UnitRef{ID: u.ID, NodeIndex: u.NodeIndex, Config: u.Config, Summary: u.Attrs}
}

// ProductSummary is the construction-time view of a product unit and its
// optional sub-units.
type ProductSummary struct {
	UnitSummary
	SkuID       int
	Seller      *UnitSummary
	Consumer    *UnitSummary
	Manufacture *UnitSummary
}
