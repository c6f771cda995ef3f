package bridge

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/c360/busbridge/errors"
)

// Rule is a single permission entry. An empty inbound or outbound rule list
// rejects all traffic in that direction; a list containing one empty Rule
// accepts everything.
//
// At most one of Address and AddressRE may be set. Address requires literal
// equality; AddressRE requires a full-string regular expression match;
// neither means any address matches. Match constrains top-level body fields
// by deep equality and only applies to JSON-object bodies - other bodies
// skip, not fail, the body constraints. RequiresAuth additionally demands an
// authorised sessionID on the frame.
type Rule struct {
	Address      string         `json:"address,omitempty"       yaml:"address,omitempty"`
	AddressRE    string         `json:"address_re,omitempty"    yaml:"address_re,omitempty"`
	Match        map[string]any `json:"match,omitempty"         yaml:"match,omitempty"`
	RequiresAuth bool           `json:"requires_auth,omitempty" yaml:"requires_auth,omitempty"`
}

// Validate checks structural constraints on the rule.
func (r Rule) Validate() error {
	if r.Address != "" && r.AddressRE != "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Rule", "Validate",
			"at most one of address and address_re may be set")
	}
	if r.AddressRE != "" {
		if _, err := regexp.Compile(r.AddressRE); err != nil {
			return errors.WrapInvalid(err, "Rule", "Validate",
				fmt.Sprintf("compile address_re %q", r.AddressRE))
		}
	}
	return nil
}

// normalizeRules returns rules with their Match constraints passed through a
// JSON round trip, so constraint values compare deep-equal against decoded
// frame bodies (numbers as float64, nested objects as map[string]any)
// regardless of whether the rules came from YAML, JSON or Go literals.
func normalizeRules(rules []Rule) ([]Rule, error) {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if r.Match != nil {
			raw, err := json.Marshal(r.Match)
			if err != nil {
				return nil, errors.WrapInvalid(err, "Rule", "normalize", "encode match constraints")
			}
			var match map[string]any
			if err := json.Unmarshal(raw, &match); err != nil {
				return nil, errors.WrapInvalid(err, "Rule", "normalize", "decode match constraints")
			}
			r.Match = match
		}
		out[i] = r
	}
	return out, nil
}
