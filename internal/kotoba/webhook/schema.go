package webhook

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bdobrica/Kotoba/common/errkind"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBase = "https://github.com/bdobrica/Kotoba/schemas/"

// Payload schemas, by file name under schemas/.
const (
	schemaTelegram  = "telegram.json"
	schemaFarcaster = "farcaster.json"
	schemaScheduled = "scheduled.json"
)

// schemaSet holds the compiled inbound payload schemas.
type schemaSet map[string]*jsonschema.Schema

func loadSchemas() (schemaSet, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	names := []string{schemaTelegram, schemaFarcaster, schemaScheduled}
	for _, name := range names {
		data, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		if err := c.AddResource(schemaBase+name, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}
	set := make(schemaSet, len(names))
	for _, name := range names {
		sch, err := c.Compile(schemaBase + name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		set[name] = sch
	}
	return set, nil
}

// validate checks body against the named schema. Any failure, including
// malformed JSON, is a Validation error.
func (s schemaSet) validate(name string, body []byte) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return errkind.E(errkind.Validation, "webhook.decode", err)
	}
	if err := s[name].Validate(doc); err != nil {
		return errkind.E(errkind.Validation, "webhook.validate", err)
	}
	return nil
}
