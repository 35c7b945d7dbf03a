// Copyright 2026 The LUCI Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package prototruth

import (
	"math"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"go.chromium.org/luci/common/errors"
)

// Config captures every active comparison rule.
//
// Config is an immutable value; every rule method returns a new Config and
// never mutates the receiver, so a Config may be stored, shared and reused
// across concurrent comparisons.
//
// The zero Config is the default configuration: all fields in scope, strict
// field presence, strict repeated field order, no tolerances.
//
// Rule methods may be chained in any order. The scope methods
// (WithPartialScope, IgnoringFields, IgnoringFieldDescriptors,
// IgnoringFieldScope) apply left to right against the scope accumulated so
// far; all other rules are order independent.
type Config struct {
	scope FieldScope // zero value means AllFields

	ignoreFieldAbsence               bool
	ignoreRepeatedFieldOrder         bool
	ignoreExtraRepeatedFieldElements bool
	compareExpectedFieldsOnly        bool
	reportMismatchesOnly             bool

	hasDoubleTolerance bool
	doubleTolerance    float64
	hasFloatTolerance  bool
	floatTolerance     float32

	pairingKey func(proto.Message) any
}

// IgnoringFieldAbsence specifies that the "has" bit of individual fields
// should be ignored: an unset field compares equal to a field explicitly set
// to its default value, and unknown field sets are not compared.
//
// Without this rule, fields with explicit presence (proto2 optional fields,
// proto3 optional fields, message fields) compare by (presence, value)
// pairs: a field set to its default value is NOT equal to an unset field.
func (c Config) IgnoringFieldAbsence() Config {
	c.ignoreFieldAbsence = true
	return c
}

// IgnoringRepeatedFieldOrder specifies that repeated fields, at all levels,
// compare as multisets rather than element-wise by position.
//
// This does not apply to map fields, which are always compared by key; the
// wire and storage order of map entries is unspecified.
func (c Config) IgnoringRepeatedFieldOrder() Config {
	c.ignoreRepeatedFieldOrder = true
	return c
}

// IgnoringExtraRepeatedFieldElements specifies that elements of repeated and
// map fields in the actual message with no corresponding expected element
// are tolerated.
//
// When repeated field order is respected, the expected elements must appear
// as a subsequence of the actual elements: gaps are allowed, relative order
// is preserved. When combined with IgnoringRepeatedFieldOrder, the expected
// elements must merely be an injectively-matchable subset of the actual
// elements. For map fields, actual-only keys are tolerated while missing
// expected keys remain mismatches.
func (c Config) IgnoringExtraRepeatedFieldElements() Config {
	c.ignoreExtraRepeatedFieldElements = true
	return c
}

// UsingDoubleTolerance compares double fields as equal if both values are
// finite and their absolute difference is at most `tolerance`.
//
// Non-finite operands (NaN, ±Inf) never match via tolerance; they fall back
// to representational equality, so NaN matches NaN exactly when the bit
// patterns agree.
//
// Panics if `tolerance` is negative or non-finite.
func (c Config) UsingDoubleTolerance(tolerance float64) Config {
	if tolerance < 0 || math.IsInf(tolerance, 0) || math.IsNaN(tolerance) {
		panic(errors.Fmt("UsingDoubleTolerance: tolerance must be finite and non-negative, got %v", tolerance))
	}
	c.hasDoubleTolerance = true
	c.doubleTolerance = tolerance
	return c
}

// UsingFloatTolerance compares float fields as equal if both values are
// finite and their absolute difference is at most `tolerance`.
//
// Non-finite operands (NaN, ±Inf) never match via tolerance; they fall back
// to representational equality.
//
// Panics if `tolerance` is negative or non-finite.
func (c Config) UsingFloatTolerance(tolerance float32) Config {
	t64 := float64(tolerance)
	if tolerance < 0 || math.IsInf(t64, 0) || math.IsNaN(t64) {
		panic(errors.Fmt("UsingFloatTolerance: tolerance must be finite and non-negative, got %v", tolerance))
	}
	c.hasFloatTolerance = true
	c.floatTolerance = tolerance
	return c
}

// ComparingExpectedFieldsOnly limits the comparison to the fields explicitly
// set in the expected message(s).
//
// The effective scope depends on the expected operand, so it is resolved at
// comparison time rather than when this rule is applied. When a containment
// query supplies several expected messages, the scope is the union of their
// set fields.
func (c Config) ComparingExpectedFieldsOnly() Config {
	c.compareExpectedFieldsOnly = true
	return c
}

// WithPartialScope constrains the comparison to the intersection of the
// current scope and `scope`.
func (c Config) WithPartialScope(scope FieldScope) Config {
	c.scope = c.scope.Intersect(scope)
	return c
}

// IgnoringFields excludes the given top-level field numbers of the root
// message type from the comparison, recursively: the fields are excluded on
// every occurrence of the root type anywhere in the tree, along with their
// entire subtrees.
//
// Field numbers which do not exist on the concrete root type produce
// a descriptive error from the terminal comparison operation.
func (c Config) IgnoringFields(nums ...protoreflect.FieldNumber) Config {
	if len(nums) == 0 {
		return c
	}
	c.scope = c.scope.Subtract(Fields(nums...))
	return c
}

// IgnoringFieldDescriptors excludes all fields matching the given
// descriptors from the comparison, wherever they occur in the tree.
//
// A descriptor which cannot occur in the compared tree is silently ignored.
func (c Config) IgnoringFieldDescriptors(fds ...protoreflect.FieldDescriptor) Config {
	if len(fds) == 0 {
		return c
	}
	c.scope = c.scope.Subtract(FieldDescriptors(fds...))
	return c
}

// IgnoringFieldScope excludes every path in `scope` from the comparison,
// i.e. subtracts it from the scope accumulated so far.
func (c Config) IgnoringFieldScope(scope FieldScope) Config {
	c.scope = c.scope.Subtract(scope)
	return c
}

// ReportingMismatchesOnly omits matched and ignored fields from rendered
// diff reports. Purely cosmetic: the verdict of a comparison is unaffected.
func (c Config) ReportingMismatchesOnly() Config {
	c.reportMismatchesOnly = true
	return c
}

// DisplayingDiffsPairedBy specifies a key function used to pair up unmatched
// actual and expected elements in containment failure reports.
//
// An unmatched actual element and an unmatched expected element with equal,
// non-nil keys are displayed side by side with a field-level diff. If two or
// more expected elements awaiting a match share a key, pairing for that key
// is skipped as ambiguous. Purely cosmetic: pairing never changes a verdict.
func (c Config) DisplayingDiffsPairedBy(key func(proto.Message) any) Config {
	c.pairingKey = key
	return c
}

// effectiveScope resolves the scope logic for a comparison whose expected
// operand(s) are now known, and validates it against the root type.
func (c Config) effectiveScope(root protoreflect.MessageDescriptor, expected []proto.Message) (scopeLogic, error) {
	scope := c.scope
	if c.compareExpectedFieldsOnly {
		scope = scope.Intersect(FromSetFields(expected...))
	}
	logic := scope.logicOrAll()
	if err := logic.validate(root); err != nil {
		return nil, err
	}
	return logic, nil
}
