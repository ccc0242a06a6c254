package catalogs

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBaseURL = "https://factorysim.ai/schemas/"

var (
	schemaOnce sync.Once
	schemaErr  error
	schemas    map[string]*jsonschema.Schema
)

func compileSchemas() {
	compiler := jsonschema.NewCompiler()
	names := []string{"resources", "structures", "recipes"}
	for _, name := range names {
		b, err := schemaFS.ReadFile("schemas/" + name + ".schema.json")
		if err != nil {
			schemaErr = err
			return
		}
		if err := compiler.AddResource(schemaBaseURL+name+".schema.json", bytes.NewReader(b)); err != nil {
			schemaErr = fmt.Errorf("schema %s: %w", name, err)
			return
		}
	}
	schemas = make(map[string]*jsonschema.Schema, len(names))
	for _, name := range names {
		s, err := compiler.Compile(schemaBaseURL + name + ".schema.json")
		if err != nil {
			schemaErr = fmt.Errorf("compile %s: %w", name, err)
			return
		}
		schemas[name] = s
	}
}

// validateRaw checks a catalog file against its embedded JSON schema.
func validateRaw(name string, raw []byte) error {
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	s, ok := schemas[name]
	if !ok {
		return fmt.Errorf("no schema for %q", name)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return s.Validate(doc)
}
