package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "loaders": [{"name": "native", "type": "native-dynamic"}],
  "modules": [
    {"name": "A", "loader": "native", "entrypoint": "libA.so"},
    {"name": "B", "loader": "native", "entrypoint": "libB.so"}
  ],
  "links": [{"source": "A", "sink": "B"}, {"source": "*", "sink": "B"}]
}`

func TestParseJSON(t *testing.T) {
	doc, err := Parse([]byte(sampleJSON))
	require.NoError(t, err)
	require.Len(t, doc.Loaders, 1)
	require.Len(t, doc.Modules, 2)
	require.Len(t, doc.Links, 2)
	require.Equal(t, "*", doc.Links[1].Source)
}

func TestParseRejectsDuplicateModuleNames(t *testing.T) {
	const dup = `{"modules": [{"name": "A", "loader": "x"}, {"name": "A", "loader": "y"}]}`
	_, err := Parse([]byte(dup))
	require.Error(t, err)
}

func TestParseIgnoresUnknownFields(t *testing.T) {
	const withExtra = `{"modules": [{"name": "A", "loader": "x", "unknown_field": 123}], "unknown_top": true}`
	doc, err := Parse([]byte(withExtra))
	require.NoError(t, err)
	require.Len(t, doc.Modules, 1)
}

func TestParseYAML(t *testing.T) {
	const y = `
loaders:
  - name: native
    type: native-dynamic
modules:
  - name: A
    loader: native
links:
  - source: "*"
    sink: A
`
	doc, err := ParseYAML([]byte(y))
	require.NoError(t, err)
	require.Len(t, doc.Modules, 1)
	require.Equal(t, "*", doc.Links[0].Source)
}

func TestParseOOPEntryDefaults(t *testing.T) {
	e, err := ParseOOPEntry(map[string]interface{}{
		"activation.type": "none",
		"control.id":      "chan-1",
	})
	require.NoError(t, err)
	require.Equal(t, ActivationNone, e.Activation)
	require.Equal(t, defaultTimeout, e.Timeout)
}

func TestParseOOPEntryLaunchRequiresPath(t *testing.T) {
	_, err := ParseOOPEntry(map[string]interface{}{
		"activation.type": "launch",
		"control.id":      "chan-1",
	})
	require.Error(t, err)
}

func TestParseOOPEntryLaunchFull(t *testing.T) {
	e, err := ParseOOPEntry(map[string]interface{}{
		"activation.type":        "launch",
		"control.id":             "chan-1",
		"launch.path":            "/bin/true",
		"launch.args":            []interface{}{"--flag", "value"},
		"launch.grace.period.ms": float64(500),
	})
	require.NoError(t, err)
	require.Equal(t, "/bin/true", e.LaunchPath)
	require.Equal(t, []string{"--flag", "value"}, e.LaunchArgs)
	require.Equal(t, 500, int(e.GracePeriod.Milliseconds()))
}

func TestParseOOPEntryRejectsUnknownActivation(t *testing.T) {
	_, err := ParseOOPEntry(map[string]interface{}{
		"activation.type": "bogus",
		"control.id":      "chan-1",
	})
	require.Error(t, err)
}

func TestParseOOPEntryRequiresControlID(t *testing.T) {
	_, err := ParseOOPEntry(map[string]interface{}{
		"activation.type": "none",
	})
	require.Error(t, err)
}
