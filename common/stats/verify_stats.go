package stats

import (
	"bytes"
	"fmt"
	"testing"
)

/*
Utilities for validating the stats registry contents
*/
type RuleChecker struct {
	name    string
	checker func(interface{}, interface{}) bool
}

func nilCheck(a, b interface{}) (nilFound, eqValues bool) {
	if a == nil && b == nil {
		return true, true
	} else if a == nil || b == nil {
		return true, false
	}
	return false, false
}

/*
errors if a is not int64, returns true if a == b
*/
func int64EqTest(a, b interface{}) bool {
	if nilFound, eqValue := nilCheck(a, b); nilFound {
		return eqValue
	}
	return a.(int64) == int64(b.(int))
}

var Int64EqTest = RuleChecker{name: "Int64EqTest", checker: int64EqTest}

/*
errors if a is not int64, returns true if a >= b
*/
func int64GTETest(a, b interface{}) bool {
	if nilFound, eqValue := nilCheck(a, b); nilFound {
		return eqValue
	}
	return a.(int64) >= int64(b.(int))
}

var Int64GTETest = RuleChecker{name: "Int64GTETest", checker: int64GTETest}

func doesNotExistTest(a, b interface{}) bool {
	return a == nil
}

var DoesNotExistTest = RuleChecker{name: "NotExistCheck", checker: doesNotExistTest}

/*
defines the condition checker to use to validate the measurement.  Each Checker(a, b) implementation
will expect a to be the 'got' value and b to be the 'expected' value.
*/
type Rule struct {
	Checker RuleChecker
	Value   interface{}
}

/*
Verify that the stats registry object contains values for the keys in the contains map parameter and that
each entry conforms to the rule (condition) associated with that key.
*/
func VerifyStats(tag string, statsRegistry StatsRegistry, t *testing.T, contains map[string]Rule) {
	asFinagleRegistry, ok := statsRegistry.(*finagleStatsRegistry)
	if !ok {
		t.Fatalf("%s: VerifyStats requires a registry from NewFinagleStatsRegistry", tag)
	}

	failed := false
	var msg bytes.Buffer
	msg.WriteString(tag)
	msg.WriteString(":stats registry error:\n")

	asJson := asFinagleRegistry.MarshalAll()
	for key, rule := range contains {
		gotValue := asJson[key]
		if rule.Checker.checker(gotValue, rule.Value) {
			continue
		}
		failed = true
		if rule.Checker.name == DoesNotExistTest.name {
			msg.WriteString(fmt.Sprintf("%s: found stat entry when there should not be one\n", key))
		} else {
			msg.WriteString(fmt.Sprintf("%s: got %v, expected to pass %s with %v\n", key, gotValue, rule.Checker.name, rule.Value))
		}
	}
	if failed {
		regBytes, _ := asFinagleRegistry.MarshalJSONPretty()
		msg.Write(regBytes)
		t.Error(msg.String())
	}
}
