package draft

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/quillagent/quill/pkg/schema"
)

// frontMatterSchemaJSON is the JSON Schema for draft front matter.
// Embedded as a constant to avoid filesystem dependencies.
const frontMatterSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://quillagent.dev/schemas/front-matter.json",
  "type": "object",
  "properties": {
    "title": { "type": "string" },
    "blog_id": { "type": ["string", "integer"] },
    "post_id": { "type": ["string", "integer"] },
    "draft": { "type": "boolean" },
    "labels": {
      "type": "array",
      "items": { "type": "string" }
    }
  },
  "additionalProperties": false
}`

var (
	frontMatterSchemaOnce sync.Once
	frontMatterSchema     *jsonschema.Schema
	frontMatterSchemaErr  error
)

func compiledFrontMatterSchema() (*jsonschema.Schema, error) {
	frontMatterSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(frontMatterSchemaJSON))
		if err != nil {
			frontMatterSchemaErr = fmt.Errorf("unmarshal front matter schema: %w", err)
			return
		}
		if err := c.AddResource("https://quillagent.dev/schemas/front-matter.json", doc); err != nil {
			frontMatterSchemaErr = fmt.Errorf("add front matter schema resource: %w", err)
			return
		}
		frontMatterSchema, frontMatterSchemaErr = c.Compile("https://quillagent.dev/schemas/front-matter.json")
	})
	return frontMatterSchema, frontMatterSchemaErr
}

// validateFrontMatter checks a decoded front matter map against the schema.
func validateFrontMatter(raw map[string]any) error {
	compiled, err := compiledFrontMatterSchema()
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "front matter schema is invalid").WithCause(err)
	}

	// Round-trip through JSON so numbers become json.Number as the
	// jsonschema library expects.
	b, err := json.Marshal(raw)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "front matter is not JSON-compatible").WithCause(err)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "front matter is not JSON-compatible").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		verr, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return schema.NewError(schema.ErrCodeValidation, err.Error())
		}
		violations := collectViolations(verr)
		return schema.NewErrorf(schema.ErrCodeValidation,
			"invalid front matter: %s", strings.Join(violations, "; ")).
			WithDetails(map[string]any{"violations": violations})
	}
	return nil
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
