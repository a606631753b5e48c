package model

import "fmt"

// Action is a typed simulation action produced from a flat policy output.
type Action interface {
	Agent() int
	Kind() string
}

const (
	ActionKindConsumer    = "consumer"
	ActionKindManufacture = "manufacture"
)

// ConsumerAction asks a consumer unit to order Quantity*Multiplier units of
// ProductID from facility SourceID.
type ConsumerAction struct {
	AgentID    int     `json:"agent_id"`
	ProductID  int     `json:"product_id"`
	SourceID   int     `json:"source_id"`
	Quantity   float64 `json:"quantity"`
	Multiplier int     `json:"multiplier"`
}

func (a ConsumerAction) Agent() int   { return a.AgentID }
func (a ConsumerAction) Kind() string { return ActionKindConsumer }

func (a ConsumerAction) String() string {
	return fmt.Sprintf("consumer(agent=%d product=%d source=%d qty=%g x%d)",
		a.AgentID, a.ProductID, a.SourceID, a.Quantity, a.Multiplier)
}

// ManufactureAction sets the production rate of a manufacture unit.
type ManufactureAction struct {
	AgentID        int     `json:"agent_id"`
	ProductionRate float64 `json:"production_rate"`
}

func (a ManufactureAction) Agent() int   { return a.AgentID }
func (a ManufactureAction) Kind() string { return ActionKindManufacture }

func (a ManufactureAction) String() string {
	return fmt.Sprintf("manufacture(agent=%d rate=%g)", a.AgentID, a.ProductionRate)
}
