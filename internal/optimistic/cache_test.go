package optimistic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/homeinv/internal/domain"
)

func TestCacheKeepsOrderAndCopies(t *testing.T) {
	c := NewCache()
	c.Load(domain.EntityItem, []domain.Snapshot{
		domain.ItemSnapshot{Item: domain.Item{ID: "b", Name: "Beans"}},
		domain.ItemSnapshot{Item: domain.Item{ID: "a", Name: "Apples", CustomFields: domain.Fields{"k": "v"}}},
	})
	c.Put(domain.ItemSnapshot{Item: domain.Item{ID: "c", Name: "Corn"}})
	c.Put(domain.ItemSnapshot{Item: domain.Item{ID: "b", Name: "Black Beans"}})

	items := c.Items()
	require.Len(t, items, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{items[0].ID, items[1].ID, items[2].ID})
	assert.Equal(t, "Black Beans", items[0].Name)

	items[1].CustomFields["k"] = "mutated"
	assert.Equal(t, "v", c.Items()[1].CustomFields["k"])

	c.Remove(domain.EntityItem, "a")
	c.Remove(domain.EntityItem, "zzz")
	assert.Len(t, c.Items(), 2)
	assert.Empty(t, c.Tags())
}

func TestCacheInsertAtPosition(t *testing.T) {
	c := NewCache()
	c.Load(domain.EntityTag, []domain.Snapshot{
		domain.TagSnapshot{Tag: domain.Tag{ID: "a"}},
		domain.TagSnapshot{Tag: domain.Tag{ID: "b"}},
		domain.TagSnapshot{Tag: domain.Tag{ID: "c"}},
	})

	pos := c.Remove(domain.EntityTag, "b")
	assert.Equal(t, 1, pos)
	assert.Equal(t, -1, c.Remove(domain.EntityTag, "b"))

	c.Insert(domain.TagSnapshot{Tag: domain.Tag{ID: "b", Name: "Back"}}, pos)
	c.Insert(domain.TagSnapshot{Tag: domain.Tag{ID: "d"}}, 99)
	c.Insert(domain.TagSnapshot{Tag: domain.Tag{ID: "a", Name: "Same place"}}, 3)

	tags := c.Tags()
	require.Len(t, tags, 4)
	assert.Equal(t, []string{"a", "b", "c", "d"}, []string{tags[0].ID, tags[1].ID, tags[2].ID, tags[3].ID})
	assert.Equal(t, "Same place", tags[0].Name)
	assert.Equal(t, "Back", tags[1].Name)
}
