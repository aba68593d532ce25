package manifest

// jsonSchema is the compiled-at-load-time JSON Schema for the Manifest
// document of spec.md §6. It pins the shape the core requires (a
// "test_set" with a name/assertion and a "test_set_tests" map keyed by test
// id) while leaving "parameters" deliberately open, since those values are
// opaque to the core and only propagated to reports.
const jsonSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["test_set", "test_set_tests"],
  "properties": {
    "test_set": {
      "type": "object",
      "required": ["name", "assertion", "tests"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "assertion": {"type": "string", "minLength": 1},
        "tests": {"type": "array", "items": {"type": "string"}},
        "subsets": {"type": "array", "items": {"type": "string"}}
      }
    },
    "test_set_tests": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["assertion", "executable"],
        "properties": {
          "assertion": {"type": "string", "minLength": 1},
          "executable": {"type": "string", "minLength": 1},
          "depends_on": {"type": "array", "items": {"type": "string"}},
          "disabled": {"type": "boolean"},
          "requirement_id": {"type": "string"},
          "parameters": {"type": "object", "additionalProperties": {"type": "string"}}
        }
      }
    }
  }
}`
