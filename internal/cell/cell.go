package cell

// State is the opaque visual state of one cell (color, height, model
// placement, ...). Only top-level keys are interpreted, and only by Merge.
type State map[string]any

// Cells maps a cell id (e.g. "3,-1") to its state.
type Cells map[string]State

// Merge applies partial on top of current key by key: keys in partial
// overwrite, keys absent from partial are kept. current is not modified.
func Merge(current, partial State) State {
	out := make(State, len(current)+len(partial))
	for k, v := range current {
		out[k] = cloneValue(v)
	}
	for k, v := range partial {
		out[k] = cloneValue(v)
	}
	return out
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

// Clone returns a deep copy of every cell, so a snapshot handed to one
// client can never alias the room's live state.
func (c Cells) Clone() Cells {
	out := make(Cells, len(c))
	for id, s := range c {
		out[id] = s.Clone()
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(State(t).Clone())
	case State:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		// scalars (string, float64, bool, json.Number, nil)
		return v
	}
}
