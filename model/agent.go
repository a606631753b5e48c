package model

// AgentInfo describes one controllable entity. Facility-level agents carry
// the facility id as their ID; product agents carry the product unit id and
// the SKU they manage.
type AgentInfo struct {
	ID         int  `json:"id"`
	FacilityID int  `json:"facility_id"`
	AgentType  int  `json:"agent_type"`
	IsFacility bool `json:"is_facility"`
	Sku        *Sku `json:"sku,omitempty"`
}
