package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValid(t *testing.T) {
	valid := []string{"1.0", "0.1", "1.2.0", "10.20.30", "0.0.0"}
	for _, v := range valid {
		assert.True(t, IsValid(v), v)
	}

	invalid := []string{
		"", "1", "v1.2.0", "1.2.0-rc1", "1.2.3.4", "1.a", "1.2.", ".1.2", "1 .2",
	}
	for _, v := range invalid {
		assert.False(t, IsValid(v), v)
	}
}

func TestSortDesc(t *testing.T) {
	versions := []string{"1.2.0", "10.0.0", "1.10.0", "2.0", "1.2.1"}
	SortDesc(versions)
	assert.Equal(t, []string{"10.0.0", "2.0", "1.10.0", "1.2.1", "1.2.0"}, versions)
}
