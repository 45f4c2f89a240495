package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	path := writeScenario(t, `
name: basic
devices:
  - id: sn-1
    name: Perdix 2
    dives:
      - fingerprint: "01"
        start: 2024-06-01T10:00:00Z
        max_depth: 18.0
imports:
  - target: Perdix 2
`)
	sc, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "basic", sc.Name)
	require.Len(t, sc.Devices, 1)
	assert.Equal(t, "sn-1", sc.Devices[0].ID)
	require.Len(t, sc.Imports, 1)
}

func TestLoadScenario_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
devices:
  - id: sn-1
    dives:
      - fingerprint: "01"
        start: 2024-06-01T10:00:00Z
imports:
  - target: sn-1
`,
			wantErr: "no name",
		},
		{
			name: "no devices",
			content: `
name: empty
imports:
  - target: sn-1
`,
			wantErr: "no devices",
		},
		{
			name: "no imports",
			content: `
name: idle
devices:
  - id: sn-1
    dives: []
`,
			wantErr: "no imports",
		},
		{
			name: "non-hex fingerprint",
			content: `
name: badfp
devices:
  - id: sn-1
    dives:
      - fingerprint: "zz"
        start: 2024-06-01T10:00:00Z
imports:
  - target: sn-1
`,
			wantErr: "not hex",
		},
		{
			name: "missing start",
			content: `
name: nostart
devices:
  - id: sn-1
    dives:
      - fingerprint: "01"
imports:
  - target: sn-1
`,
			wantErr: "missing start",
		},
		{
			name: "corrupt index out of range",
			content: `
name: badcorrupt
devices:
  - id: sn-1
    corrupt: [3]
    dives:
      - fingerprint: "01"
        start: 2024-06-01T10:00:00Z
imports:
  - target: sn-1
`,
			wantErr: "out of range",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, tt.content)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenarios_SortedByFilename(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []struct{ file, name string }{
		{"b_second.yaml", "second"},
		{"a_first.yaml", "first"},
	} {
		content := `
name: ` + f.name + `
devices:
  - id: sn-1
    dives: []
imports:
  - target: sn-1
`
		require.NoError(t, os.WriteFile(filepath.Join(dir, f.file), []byte(content), 0o644))
	}

	scenarios, err := LoadScenarios(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "first", scenarios[0].Name)
	assert.Equal(t, "second", scenarios[1].Name)
}
