package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validSync() *Sync {
	return &Sync{
		Name: "order-reserve",
		When: []WhenClause{{
			Concept: "urn:weft/Order",
			Action:  "place",
			Variant: "ok",
			Output:  map[string]string{"order_id": "id"},
		}},
		Then: []ThenClause{{
			Concept: "urn:weft/Inventory",
			Action:  "reserve",
			Args:    map[string]string{"order": "bound.order_id"},
		}},
	}
}

func TestSyncValidate_Valid(t *testing.T) {
	assert.Empty(t, validSync().Validate())
}

func TestSyncValidate_MissingClauses(t *testing.T) {
	s := &Sync{Name: "empty"}
	issues := s.Validate()

	fields := make([]string, 0, len(issues))
	for _, i := range issues {
		fields = append(fields, i.Field)
	}
	assert.Contains(t, fields, "when")
	assert.Contains(t, fields, "then")
}

func TestSyncValidate_EmptyThenRejected(t *testing.T) {
	s := validSync()
	s.Then = nil
	issues := s.Validate()
	assert.Len(t, issues, 1)
	assert.Equal(t, "then", issues[0].Field)
}

func TestSyncValidate_VariantRequired(t *testing.T) {
	s := validSync()
	s.When[0].Variant = ""
	issues := s.Validate()
	assert.Len(t, issues, 1)
	assert.Equal(t, "when[0].variant", issues[0].Field)
}

func TestSyncValidate_UnresolvableThenReference(t *testing.T) {
	s := validSync()
	s.Then[0].Args = map[string]string{"order": "bound.missing"}
	issues := s.Validate()
	assert.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, "missing")
}

func TestSyncValidate_WhereIntroducesVariables(t *testing.T) {
	s := validSync()
	s.Where = []WhereClause{{
		Concept:  "urn:weft/Inventory",
		Relation: "stock",
		Args:     map[string]string{"order": "bound.order_id"},
		Bindings: map[string]string{"sku": "sku"},
	}}
	s.Then[0].Args = map[string]string{"sku": "bound.sku"}
	assert.Empty(t, s.Validate())
}

func TestSyncValidate_WhereArgUnbound(t *testing.T) {
	s := validSync()
	s.Where = []WhereClause{{
		Concept:  "urn:weft/Inventory",
		Relation: "stock",
		Args:     map[string]string{"order": "bound.nope"},
	}}
	issues := s.Validate()
	assert.Len(t, issues, 1)
	assert.Equal(t, "where[0].args.order", issues[0].Field)
}

func TestBoundVar(t *testing.T) {
	v, ok := BoundVar("bound.order_id")
	assert.True(t, ok)
	assert.Equal(t, "order_id", v)

	_, ok = BoundVar("literal")
	assert.False(t, ok)
}

func TestSyncAnnotations(t *testing.T) {
	s := validSync()
	assert.False(t, s.Eager())

	s.Annotations = []string{"eager", "audit"}
	assert.True(t, s.Eager())
	assert.True(t, s.Annotated("audit"))
	assert.False(t, s.Annotated("lazy"))
}
