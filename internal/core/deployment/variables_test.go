package deployment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// SubstituteVariables Tests
// =============================================================================

func TestSubstituteVariables(t *testing.T) {
	vars := map[string]string{"HOST": "db", "PORT": "5432", "EMPTY": ""}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "${HOST}", "db"},
		{"default unused", "${PORT:-8080}", "5432"},
		{"default used", "${MISSING:-8080}", "8080"},
		{"empty default", "x${MISSING:-}y", "xy"},
		{"missing kept", "${MISSING}", "${MISSING}"},
		{"multiple", "postgres://${HOST}:${PORT}", "postgres://db:5432"},
		{"set but empty", "[${EMPTY:-fallback}]", "[]"},
		{"no placeholders", "plain", "plain"},
		{"bare dollar untouched", "$HOST", "$HOST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SubstituteVariables(tt.input, vars))
		})
	}
}

func TestSubstituteVariables_NilMap(t *testing.T) {
	assert.Equal(t, "${A}", SubstituteVariables("${A}", nil))
	assert.Equal(t, "b", SubstituteVariables("${A:-b}", nil))
}

// =============================================================================
// ExpandProbeArgs Tests
// =============================================================================

func TestExpandProbeArgs(t *testing.T) {
	env := map[string]string{"DATABASE_URL": "postgres://u:p@localhost/app", "PORT": "8080"}

	assert.Equal(t,
		[]string{"POSTGRES", "postgres://u:p@localhost/app"},
		ExpandProbeArgs([]string{"POSTGRES", "${DATABASE_URL}"}, env))
	assert.Equal(t,
		[]string{"HTTP", "http://localhost:8080/health"},
		ExpandProbeArgs([]string{"HTTP", "http://localhost:${PORT}/health"}, env))
	assert.Nil(t, ExpandProbeArgs(nil, env))
}
