package openapi

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/crmflow/types"
)

func TestParse_JSONKeepsDocumentOrder(t *testing.T) {
	doc := mustParse(t, crmSpecJSON)

	assert.Equal(t, "Mock CRM", doc.Title())
	assert.Equal(t, []string{"/leads", "/leads/{id}", "/accounts", "/notes"}, doc.Paths())
	assert.Equal(t,
		[]string{"Id", "Create Lead", "Name", "Alias", "Account", "Node", "LoopA", "LoopB"},
		doc.SchemaNames(),
	)
}

func TestParse_YAML(t *testing.T) {
	src := `
openapi: 3.0.0
info:
  title: YAML CRM
paths:
  /zeta:
    get:
      responses:
        200:
          description: ok
  /alpha:
    post:
      operationId: create_alpha
components:
  schemas:
    Zed: {type: string}
    Able: {type: integer}
`
	doc, err := Parse([]byte(src), "crm.yaml")
	require.NoError(t, err)

	assert.Equal(t, "YAML CRM", doc.Title())
	assert.Equal(t, []string{"/zeta", "/alpha"}, doc.Paths())
	assert.Equal(t, []string{"Zed", "Able"}, doc.SchemaNames())

	responses := asMap(asMap(doc.PathItem("/zeta")["get"])["responses"])
	assert.Contains(t, responses, "200")
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", "   "},
		{"broken json", `{"paths": `},
		{"scalar yaml", "just a string"},
		{"bad yaml", "a: [1, 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "x")
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrSpec))
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Equal(t, types.ErrSpecParse, types.GetErrorCode(err))
}

func TestLoad_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crm.json")
	require.NoError(t, os.WriteFile(path, []byte(crmSpecJSON), 0o600))

	doc, err := Load(path)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(doc.Source))
	assert.Len(t, doc.Paths(), 4)
}

func TestNewDocument_LexicalOrder(t *testing.T) {
	doc := NewDocument("mem", map[string]any{
		"paths": map[string]any{"/b": map[string]any{}, "/a": map[string]any{}},
	})
	assert.Equal(t, []string{"/a", "/b"}, doc.Paths())
	assert.Empty(t, doc.SchemaNames())
}
