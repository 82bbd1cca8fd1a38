package blocking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func record(id string, fields map[string]string) models.EntityRecord {
	values := make(map[string]models.FieldValue, len(fields))
	for k, v := range fields {
		values[k] = models.StringValue(v)
	}
	return models.EntityRecord{ID: id, Fields: values}
}

func TestIndexer_Keys(t *testing.T) {
	ix := NewIndexer()
	keys := ix.Keys(record("p1", map[string]string{
		"name":  "John Smith",
		"email": "JOHN@Example.com",
		"phone": "(555) 123-4567",
	}))

	assert.ElementsMatch(t, []string{
		"|n1:j",
		"|n2:jo",
		"|sx:J525",
		"|em:example.com",
		"|ph:555",
	}, keys)
}

func TestIndexer_KeysSkipEmptyValues(t *testing.T) {
	ix := NewIndexer()
	assert.Empty(t, ix.Keys(record("p1", map[string]string{"name": "", "email": "nobody@", "phone": "12"})))
	assert.Empty(t, ix.Keys(models.EntityRecord{ID: "p2"}))
}

func TestIndexer_KeysAreScopedByType(t *testing.T) {
	ix := NewIndexer()
	person := record("p1", map[string]string{"name": "Acme"})
	person.Type = "person"
	org := record("o1", map[string]string{"name": "Acme"})
	org.Type = "organization"

	blocks, _ := ix.Build([]models.EntityRecord{person, org})
	assert.Empty(t, blocks)
}

func TestIndexer_BuildDropsSingletonBlocks(t *testing.T) {
	ix := NewIndexer()
	blocks, oversized := ix.Build([]models.EntityRecord{
		record("p1", map[string]string{"name": "John Smith"}),
		record("p2", map[string]string{"name": "Jon Smith"}),
		record("p3", map[string]string{"name": "Mary Jones"}),
	})
	assert.Equal(t, 0, oversized)

	for _, b := range blocks {
		assert.GreaterOrEqual(t, len(b.Members), 2)
		assert.NotContains(t, b.Members, "p3")
	}

	keys := make([]string, 0, len(blocks))
	for _, b := range blocks {
		keys = append(keys, b.Key)
	}
	// "jo" is shared, soundex J525 vs J525 is shared, first letter is shared
	assert.Equal(t, []string{"|n1:j", "|n2:jo", "|sx:J525"}, keys)
}

func TestIndexer_MaxBlockSize(t *testing.T) {
	ix := NewIndexer(WithMaxBlockSize(2))
	blocks, oversized := ix.Build([]models.EntityRecord{
		record("a", map[string]string{"email": "a@x.com"}),
		record("b", map[string]string{"email": "b@x.com"}),
		record("c", map[string]string{"email": "c@x.com"}),
		record("d", map[string]string{"email": "d@y.com"}),
		record("e", map[string]string{"email": "e@y.com"}),
	})
	assert.Equal(t, 1, oversized)
	require.Len(t, blocks, 1)
	assert.Equal(t, []string{"d", "e"}, blocks[0].Members)
}

func TestAssignPairs_DeduplicatesAcrossBlocks(t *testing.T) {
	blocks := []Block{
		{Key: "a", Members: []string{"p1", "p2", "p3"}},
		{Key: "b", Members: []string{"p1", "p2"}},
		{Key: "c", Members: []string{"p2", "p4"}},
	}

	assigned := AssignPairs(blocks)
	require.Len(t, assigned, 3)
	assert.Equal(t, []Pair{{"p1", "p2"}, {"p1", "p3"}, {"p2", "p3"}}, assigned[0])
	assert.Empty(t, assigned[1])
	assert.Equal(t, []Pair{{"p2", "p4"}}, assigned[2])
}

func TestNewPair_OrdersIDs(t *testing.T) {
	assert.Equal(t, Pair{A: "a", B: "b"}, NewPair("b", "a"))
	assert.Equal(t, Pair{A: "a", B: "b"}, NewPair("a", "b"))
}

func TestNameKeys_AccentedNameSharesSoundex(t *testing.T) {
	plain := NameKeys(record("p1", map[string]string{"name": "Emile Zola"}))
	accented := NameKeys(record("p2", map[string]string{"name": "Émile Zola"}))

	assert.Contains(t, plain, "sx:E542")
	assert.Contains(t, accented, "sx:E542")
}
