package bridge

import (
	"reflect"
	"regexp"
	"sync"
)

// Direction of a permission check relative to the bridge.
type Direction int

const (
	// Inbound is client-to-bus traffic.
	Inbound Direction = iota
	// Outbound is bus-to-client traffic.
	Outbound
)

// String returns the string representation of Direction
func (d Direction) String() string {
	switch d {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// Match is the outcome of a permission check.
type Match struct {
	DoesMatch    bool
	RequiresAuth bool
}

// matchEngine evaluates an address and body against the ordered permission
// lists. First match wins. Inbound checks consult the reply-address
// whitelist before the rules: a whitelisted address is consumed and accepted
// unconditionally, since replies to approved sends are never re-validated.
type matchEngine struct {
	inbound  []Rule
	outbound []Rule
	replies  *replyRegistry

	// Memoised compiled patterns, keyed by the rule's literal source string.
	// Rules are immutable after construction so entries are never evicted.
	mu          sync.Mutex
	compiledREs map[string]*regexp.Regexp
}

func newMatchEngine(inbound, outbound []Rule, replies *replyRegistry) *matchEngine {
	return &matchEngine{
		inbound:     inbound,
		outbound:    outbound,
		replies:     replies,
		compiledREs: make(map[string]*regexp.Regexp),
	}
}

// checkMatches decides whether traffic to address with the given decoded
// body is permitted in the given direction, and whether auth is required.
func (e *matchEngine) checkMatches(direction Direction, address string, body any) Match {
	if direction == Inbound && e.replies.consume(address) {
		// This is an inbound reply to an approved send, accept it
		return Match{DoesMatch: true}
	}

	rules := e.outbound
	if direction == Inbound {
		rules = e.inbound
	}

	for _, rule := range rules {
		if !e.addressMatches(rule, address) {
			continue
		}
		// Clients can send bodies other than JSON objects too - structural
		// matching is skipped for those, not failed.
		if obj, ok := body.(map[string]any); ok && rule.Match != nil {
			if !fieldsMatch(rule.Match, obj) {
				continue
			}
		}
		return Match{DoesMatch: true, RequiresAuth: rule.RequiresAuth}
	}
	return Match{}
}

func (e *matchEngine) addressMatches(rule Rule, address string) bool {
	switch {
	case rule.Address != "":
		return rule.Address == address
	case rule.AddressRE != "":
		return e.regexMatches(rule.AddressRE, address)
	default:
		return true
	}
}

func (e *matchEngine) regexMatches(pattern, address string) bool {
	e.mu.Lock()
	re, ok := e.compiledREs[pattern]
	if !ok {
		// Anchored so the pattern must cover the whole address.
		compiled, err := regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			e.mu.Unlock()
			return false
		}
		re = compiled
		e.compiledREs[pattern] = re
	}
	e.mu.Unlock()
	return re.MatchString(address)
}

func fieldsMatch(constraints map[string]any, body map[string]any) bool {
	for field, want := range constraints {
		if !reflect.DeepEqual(body[field], want) {
			return false
		}
	}
	return true
}
