package ir

// DefaultEntityKey is the input field used to identify the entity an
// invocation mutates when the concept catalog does not name one.
const DefaultEntityKey = "id"

// ConceptSpec describes one concept in the catalog: the actions it
// exposes, the outcome variants each action may produce, and the input
// field identifying the entity an invocation targets. The catalog is
// optional; without it the engine dispatches to any concept/action.
type ConceptSpec struct {
	URI       string              `json:"uri"`
	Actions   map[string][]string `json:"actions"` // action name -> variants
	EntityKey string              `json:"entity_key,omitempty"`
}

// HasAction reports whether the concept exposes the named action.
func (c *ConceptSpec) HasAction(action string) bool {
	_, ok := c.Actions[action]
	return ok
}

// Entity returns the entity key, falling back to DefaultEntityKey.
func (c *ConceptSpec) Entity() string {
	if c == nil || c.EntityKey == "" {
		return DefaultEntityKey
	}
	return c.EntityKey
}
