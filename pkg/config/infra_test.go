package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveEnvValue(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")

	input := map[string]interface{}{
		"host": "${DB_HOST}",
		"port": float64(5432),
		"tags": []interface{}{"${DB_HOST}", "static"},
		"nested": map[string]interface{}{
			"missing": "${UNSET_VAR}",
		},
	}

	resolved := ResolveEnvValue(input).(map[string]interface{})
	assert.Equal(t, "db.internal", resolved["host"])
	assert.Equal(t, float64(5432), resolved["port"])
	assert.Equal(t, []interface{}{"db.internal", "static"}, resolved["tags"])

	nested := resolved["nested"].(map[string]interface{})
	assert.Equal(t, "", nested["missing"])
}

func TestResolveEnvStringMissingClosingBrace(t *testing.T) {
	assert.Equal(t, "prefix ${UNCLOSED", resolveEnvString("prefix ${UNCLOSED"))
}
