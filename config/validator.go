package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/busbridge/bridge"
	"github.com/c360/busbridge/errors"
)

// ruleSchema is the JSON schema every permission rule must satisfy. It
// rejects unknown fields and rules carrying both address forms, which would
// otherwise be silently misconfigured policy.
const ruleSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "address":       { "type": "string", "minLength": 1 },
    "address_re":    { "type": "string", "minLength": 1 },
    "match":         { "type": "object" },
    "requires_auth": { "type": "boolean" }
  },
  "additionalProperties": false,
  "not": { "required": ["address", "address_re"] }
}`

var compiledRuleSchema *gojsonschema.Schema

func init() {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(ruleSchema))
	if err != nil {
		panic(fmt.Sprintf("config: invalid rule schema: %v", err))
	}
	compiledRuleSchema = schema
}

// ValidateRules schema-checks raw rule objects and decodes them into bridge
// rules. Regex compilability is checked by the bridge rule validation.
func ValidateRules(raw []map[string]any) ([]bridge.Rule, error) {
	for i, rule := range raw {
		result, err := compiledRuleSchema.Validate(gojsonschema.NewGoLoader(rule))
		if err != nil {
			return nil, errors.WrapInvalid(err, "Config", "ValidateRules",
				fmt.Sprintf("validate rule %d", i))
		}
		if !result.Valid() {
			details := make([]string, 0, len(result.Errors()))
			for _, desc := range result.Errors() {
				details = append(details, desc.String())
			}
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "ValidateRules",
				fmt.Sprintf("rule %d: %s", i, strings.Join(details, "; ")))
		}
	}
	return decodeRules(raw)
}
