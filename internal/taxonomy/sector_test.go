package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSectorLookup(t *testing.T) {
	table := DefaultSectorTable()

	code, ok := table.Lookup("23311")
	assert.True(t, ok)
	assert.Equal(t, "2.A.1", code)

	// leading zero lost by a spreadsheet export
	code, ok = table.Lookup("7110")
	assert.True(t, ok)
	assert.Equal(t, "2.A.3", code)

	_, ok = table.Lookup("99999")
	assert.False(t, ok)
	assert.Equal(t, 14, table.Len())
}

func TestSectorCategories(t *testing.T) {
	table := DefaultSectorTable()

	assert.Equal(t, []string{"2.A", "2.A.1"}, table.Categories("23311"))
	assert.Equal(t, []string{"2.B"}, table.Categories("19101"))
	assert.Equal(t, []string{"2.B", "2.B.8"}, table.Categories(" 20111 "))
	assert.Nil(t, table.Categories("00000"))
}
