package svm

// Receipt describes a committed transaction.
type Receipt struct {
	Slot         uint64
	Instructions []Record
}

// Events returns the events of every instruction in order.
func (r *Receipt) Events() []Event {
	var out []Event
	for _, rec := range r.Instructions {
		out = append(out, rec.Events...)
	}
	return out
}

// Units returns the compute units the transaction consumed.
func (r *Receipt) Units() uint64 {
	var total uint64
	for _, rec := range r.Instructions {
		total += rec.Units
	}
	return total
}

// Record is the trace entry of one top-level instruction. Err is empty
// for committed instructions.
type Record struct {
	Slot        uint64  `json:"slot"`
	Index       int     `json:"index"`
	Program     string  `json:"program"`
	Instruction string  `json:"instruction"`
	Units       uint64  `json:"units"`
	Events      []Event `json:"events,omitempty"`
	Err         string  `json:"error,omitempty"`
}

// Event is a record logged by a program. Values are rendered as text:
// integers in decimal, keys in base58.
type Event struct {
	Program string       `json:"program"`
	Name    string       `json:"name"`
	Fields  []EventField `json:"fields"`
}

// EventField is one value of an event.
type EventField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Field returns the value of the named field.
func (e Event) Field(name string) (string, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}
