package contact

import (
	"encoding/json"
	"slices"

	"github.com/invopop/jsonschema"
)

// StateSet is a list of state byte values. It encodes as a JSON array of
// numbers rather than the base64 string encoding/json uses for []uint8.
type StateSet []uint8

func (s StateSet) MarshalJSON() ([]byte, error) {
	ints := make([]int, len(s))
	for i, v := range s {
		ints[i] = int(v)
	}
	return json.Marshal(ints)
}

func (StateSet) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:  "array",
		Items: &jsonschema.Schema{Type: "integer"},
	}
}

// Codes are the raw values of a fighter's primary state byte that the
// tracker distinguishes.
type Codes struct {
	Idle       uint8    `json:"idle" jsonschema:"description=Fully neutral state"`
	Engaged    uint8    `json:"engaged" jsonschema:"description=Able to act or block"`
	Attacking  StateSet `json:"attacking" jsonschema:"description=Startup or active attack states"`
	Locked     StateSet `json:"locked" jsonschema:"description=Hit or block stun states"`
	SpecialEnd uint8    `json:"specialEnd" jsonschema:"description=Actionable state after a special move"`
	Movement   StateSet `json:"movement,omitempty" jsonschema:"description=Free movement states after a normal recovers"`
}

func DefaultCodes() Codes {
	return Codes{
		Idle:       160,
		Engaged:    168,
		Attacking:  StateSet{0, 32},
		Locked:     StateSet{8, 40, 168},
		SpecialEnd: 128,
	}
}

func (c Codes) IsAttacking(v uint8) bool { return slices.Contains(c.Attacking, v) }

func (c Codes) IsLocked(v uint8) bool { return slices.Contains(c.Locked, v) }

// Recovery marks a state as actionable for one side.
type Recovery struct {
	Tag   string
	Match func(uint8) bool
}

// FirstMatch returns the tag of the first entry matching v.
func FirstMatch(table []Recovery, v uint8) (string, bool) {
	for _, r := range table {
		if r.Match(v) {
			return r.Tag, true
		}
	}
	return "", false
}

func equals(code uint8) func(uint8) bool {
	return func(v uint8) bool { return v == code }
}

func oneOf(codes StateSet) func(uint8) bool {
	codes = slices.Clone(codes)
	return func(v uint8) bool { return slices.Contains(codes, v) }
}

// AttackerRecovery orders the states in which an attacker can act again.
func AttackerRecovery(c Codes) []Recovery {
	return []Recovery{
		{Tag: "special_end", Match: equals(c.SpecialEnd)},
		{Tag: "movement", Match: oneOf(c.Movement)},
		{Tag: "engaged", Match: equals(c.Engaged)},
		{Tag: "idle", Match: equals(c.Idle)},
	}
}

// VictimRecovery orders the states in which a victim can act again.
func VictimRecovery(c Codes) []Recovery {
	return []Recovery{
		{Tag: "engaged", Match: equals(c.Engaged)},
		{Tag: "movement", Match: oneOf(c.Movement)},
		{Tag: "idle", Match: equals(c.Idle)},
	}
}
