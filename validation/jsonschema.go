package validation

import (
	"bytes"
	"embed"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	tabularSchemaFile = "schemas/tabular-schema.json"
	statisticsFile    = "schemas/statistics.json"
)

func schemas() (map[string]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiled = make(map[string]*jsonschema.Schema, 2)
		for _, name := range []string{tabularSchemaFile, statisticsFile} {
			raw, err := schemaFS.ReadFile(name)
			if err != nil {
				compileErr = err
				return
			}
			if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
				compileErr = errors.Wrapf(err, "add schema %s", name)
				return
			}
			s, err := compiler.Compile(name)
			if err != nil {
				compileErr = errors.Wrapf(err, "compile schema %s", name)
				return
			}
			compiled[name] = s
		}
	})
	return compiled, compileErr
}

// validateDocument checks raw JSON against one of the embedded schemas.
func validateDocument(name string, raw []byte) error {
	all, err := schemas()
	if err != nil {
		return err
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return errors.NewValueError("validate "+name, "malformed JSON: "+err.Error())
	}
	if err := all[name].Validate(doc); err != nil {
		return errors.NewValueError("validate "+name, err.Error())
	}
	return nil
}
