package sqlexec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCatalog(t *testing.T) {
	c := NewCatalog("mimiciv_hosp", []TableInfo{
		{Schema: "mimiciv_hosp", Name: "patients", Columns: []string{"subject_id", "gender"}},
		{Schema: "mimiciv_icu", Name: "icustays", Columns: []string{"stay_id", "subject_id"}},
	})

	name, ok := c.Canonical("GENDER")
	assert.True(t, ok)
	assert.Equal(t, "gender", name)

	_, ok = c.Canonical("nope")
	assert.False(t, ok)

	assert.Equal(t, "mimiciv_icu", c.SchemaFor("ICUSTAYS"))
	assert.Equal(t, "mimiciv_hosp", c.SchemaFor("unknown"))
	assert.True(t, c.HasTables())
	assert.True(t, c.IsTable("Patients"))
	assert.False(t, c.IsTable("subject_id"))
}

func TestCatalog_Nil(t *testing.T) {
	var c *Catalog
	assert.Equal(t, "", c.DefaultSchema())
	assert.Zero(t, c.Len())
	assert.False(t, c.HasTables())
	_, ok := c.Canonical("x")
	assert.False(t, ok)
}
