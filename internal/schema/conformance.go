package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/BTreeMap/PlatformAI/internal/models"
)

// DocumentURL is the $id of the embedded response schema.
const DocumentURL = "https://platformai.local/schemas/response.json"

//go:embed response.schema.json
var responseSchemaJSON []byte

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

// Document returns the JSON Schema describing every response the relay emits.
func Document() []byte {
	return bytes.Clone(responseSchemaJSON)
}

func compiled() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(responseSchemaJSON))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal response schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(DocumentURL, doc); err != nil {
			compileErr = fmt.Errorf("add response schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile(DocumentURL)
		if compileErr != nil {
			compileErr = fmt.Errorf("compile response schema: %w", compileErr)
		}
	})
	return compiledSchema, compileErr
}

// Conforms checks a typed response against the published JSON Schema. It is
// the last gate before a response leaves the relay, and the only check applied
// to synthetic fallbacks.
func Conforms(resp models.StructuredResponse) error {
	s, err := compiled()
	if err != nil {
		return err
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("serialize response: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("reparse response: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("response does not conform to schema: %s", flatten(err.Error()))
	}
	return nil
}

// flatten joins the multi-line validation report into one line.
func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
