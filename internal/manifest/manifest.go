// Package manifest loads and validates the Manifest document of spec.md
// §6 — the frozen JSON format the external build system produces — and
// converts it into the core's own model.TestNode slice.
package manifest

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"testweaver/internal/model"
	"testweaver/internal/twerrors"
)

// TestSet is the top-level grouping metadata: name, assertion, and the
// member test/subset ids.
type TestSet struct {
	Name      string   `json:"name"`
	Assertion string   `json:"assertion"`
	Tests     []string `json:"tests"`
	Subsets   []string `json:"subsets,omitempty"`
}

// TestDef is one entry of "test_set_tests", before it is resolved into a
// model.TestNode keyed by id.
type TestDef struct {
	Assertion     string            `json:"assertion"`
	Executable    string            `json:"executable"`
	DependsOn     []string          `json:"depends_on,omitempty"`
	Disabled      bool              `json:"disabled,omitempty"`
	RequirementId string            `json:"requirement_id,omitempty"`
	Parameters    map[string]string `json:"parameters,omitempty"`
}

// Document is the decoded, schema-validated Manifest.
type Document struct {
	TestSet       TestSet            `json:"test_set"`
	TestSetTests  map[string]TestDef `json:"test_set_tests"`
}

var compiled *jsonschema.Schema

func compileSchema() (*jsonschema.Schema, error) {
	if compiled != nil {
		return compiled, nil
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("manifest.json", strings.NewReader(jsonSchema)); err != nil {
		return nil, err
	}
	s, err := c.Compile("manifest.json")
	if err != nil {
		return nil, err
	}
	compiled = s
	return s, nil
}

// Parse validates data against the Manifest JSON Schema, then decodes it
// into a Document. Schema violations surface as a *twerrors.ConfigError
// wrapping twerrors.ErrInvalidManifest.
func Parse(data []byte) (*Document, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, twerrors.NewConfigError("compiling manifest schema", err)
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, twerrors.NewConfigError("manifest is not valid JSON", twerrors.ErrInvalidManifest)
	}
	if err := schema.Validate(raw); err != nil {
		return nil, twerrors.NewConfigError(err.Error(), twerrors.ErrInvalidManifest)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, twerrors.NewConfigError("decoding manifest", twerrors.ErrInvalidManifest)
	}
	return &doc, nil
}

// Nodes converts the Document's test_set_tests into model.TestNode values,
// in stable (sorted-by-id) order. It does not validate dependency
// references or detect cycles — that is dag.Build's job, so the same
// validation logic is not duplicated here.
func (d *Document) Nodes() []model.TestNode {
	ids := make([]string, 0, len(d.TestSetTests))
	for id := range d.TestSetTests {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]model.TestNode, 0, len(ids))
	for _, id := range ids {
		def := d.TestSetTests[id]
		deps := make([]model.TestId, 0, len(def.DependsOn))
		for _, dep := range def.DependsOn {
			deps = append(deps, model.TestId(dep))
		}
		out = append(out, model.TestNode{
			Id:            model.TestId(id),
			Assertion:     def.Assertion,
			Executable:    def.Executable,
			DependsOn:     deps,
			Disabled:      def.Disabled,
			RequirementId: def.RequirementId,
			Parameters:    def.Parameters,
		})
	}
	return out
}
