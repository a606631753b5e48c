package model

// UnitRef is a handle on one dynamic sub-unit of a facility. It never owns
// simulation state; NodeIndex is the unit's row in the snapshot store.
type UnitRef struct {
	ID        int
	NodeIndex int
	Config    map[string]any
	Summary   map[string]any
}

// ConfigFloat returns the numeric config value for key, or def when the key
// is absent or not numeric.
func (u *UnitRef) ConfigFloat(key string, def float64) float64 {
	if u == nil {
		return def
	}
	return lookupFloat(u.Config, key, def)
}

// SummaryFloat returns the numeric construction-time attribute for key, or
// def when the key is absent or not numeric.
func (u *UnitRef) SummaryFloat(key string, def float64) float64 {
	if u == nil {
		return def
	}
	return lookupFloat(u.Summary, key, def)
}

func lookupFloat(m map[string]any, key string, def float64) float64 {
	v, ok := m[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case uint64:
		return float64(n)
	case uint32:
		return float64(n)
	default:
		return def
	}
}
