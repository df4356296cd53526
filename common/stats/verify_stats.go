package stats

import (
	"bytes"
	"fmt"
	"testing"
)

// RuleChecker compares a rendered stat (got) against an expected value.
type RuleChecker struct {
	name    string
	checker func(got, expected interface{}) bool
}

// nilCheck reports whether either side is nil, and if so whether both are.
func nilCheck(got, expected interface{}) (nilFound, eqValues bool) {
	if got == nil || expected == nil {
		return true, got == nil && expected == nil
	}
	return false, false
}

var FloatEqTest = RuleChecker{name: "floatEqTest", checker: func(got, expected interface{}) bool {
	if nilFound, eq := nilCheck(got, expected); nilFound {
		return eq
	}
	return got.(float64) == expected.(float64)
}}

// Int64EqTest compares an int64 stat with an int literal.
var Int64EqTest = RuleChecker{name: "IntEqTest", checker: func(got, expected interface{}) bool {
	if nilFound, eq := nilCheck(got, expected); nilFound {
		return eq
	}
	return got.(int64) == int64(expected.(int))
}}

var DoesNotExistTest = RuleChecker{name: "NotExistCheck", checker: func(got, _ interface{}) bool {
	return got == nil
}}

// Rule pairs a checker with the value it expects.
type Rule struct {
	Checker RuleChecker
	Value   interface{}
}

// VerifyStats fails t for every key in contains whose rendered value in
// statsRegistry does not pass its rule. Only finagle registries are checked.
func VerifyStats(tag string, statsRegistry StatsRegistry, t *testing.T, contains map[string]Rule) {
	reg, ok := statsRegistry.(*finagleStatsRegistry)
	if !ok {
		return
	}
	rendered := reg.MarshalAll()

	var msg bytes.Buffer
	for key, rule := range contains {
		got := rendered[key]
		if rule.Checker.checker(got, rule.Value) {
			continue
		}
		if rule.Checker.name == DoesNotExistTest.name {
			fmt.Fprintf(&msg, "%s: found stat entry when there should not be one\n", key)
		} else {
			fmt.Fprintf(&msg, "%s: got %v, expected to pass %s with %v\n", key, got, rule.Checker.name, rule.Value)
		}
	}
	if msg.Len() > 0 {
		t.Errorf("%s:stats registry error:\n%s", tag, msg.String())
		PPrintStats(tag, reg)
	}
}

func PPrintStats(tag string, statsRegistry StatsRegistry) {
	reg, ok := statsRegistry.(*finagleStatsRegistry)
	if !ok {
		return
	}
	regBytes, _ := reg.MarshalJSONPretty()
	fmt.Printf("%s:  Stats Registry:\n%s\n", tag, regBytes)
}
