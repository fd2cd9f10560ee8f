package assessment

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const definitionSchemaURL = "https://jobify.local/schemas/assessment-definition.json"

//go:embed schema/definition.schema.json
var definitionSchemaJSON string

var (
	definitionSchemaOnce sync.Once
	definitionSchema     *jsonschema.Schema
	definitionSchemaErr  error
)

func compiledDefinitionSchema() (*jsonschema.Schema, error) {
	definitionSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(definitionSchemaURL, strings.NewReader(definitionSchemaJSON)); err != nil {
			definitionSchemaErr = err
			return
		}
		definitionSchema, definitionSchemaErr = compiler.Compile(definitionSchemaURL)
	})
	return definitionSchema, definitionSchemaErr
}

func validateDefinitionSchema(raw []byte) error {
	schema, err := compiledDefinitionSchema()
	if err != nil {
		return err
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var document interface{}
	if err := decoder.Decode(&document); err != nil {
		return err
	}

	return schema.Validate(document)
}
