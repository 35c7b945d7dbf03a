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
	"strings"

	"google.golang.org/protobuf/proto"

	"go.chromium.org/luci/common/testing/truth/comparison"
	"go.chromium.org/luci/common/testing/truth/failure"
)

// This file adapts the comparison engine to the truth assertion library:
// each constructor returns a comparison.Func for use with assert.That or
// check.That, e.g.
//
//	assert.That(t, actualMsg, prototruth.EqualMessage(expectedMsg))
//	assert.That(t, actualMsgs, prototruth.ContainExactly(expectedMsgs,
//	  prototruth.Config{}.IgnoringRepeatedFieldOrder()))
//
// The engine supplies the equivalence predicate and the diff formatting;
// truth supplies presentation and the final pass/fail signal.

func singleConfig[T any](cmpName string, cfg []Config) (Config, comparison.Func[T]) {
	if len(cfg) > 1 {
		return Config{}, func(T) *failure.Summary {
			return comparison.NewSummaryBuilder(cmpName).
				Because("%s: `cfg` is a single optional value, got %d values", cmpName, len(cfg)).
				Summary
		}
	}
	if len(cfg) == 1 {
		return cfg[0], nil
	}
	return Config{}, nil
}

// EqualMessage returns a comparison.Func which checks that a message
// compares equal to `expected` under the given Config (default Config if
// omitted).
func EqualMessage(expected proto.Message, cfg ...Config) comparison.Func[proto.Message] {
	const cmpName = "prototruth.EqualMessage"
	c, errFn := singleConfig[proto.Message](cmpName, cfg)
	if errFn != nil {
		return errFn
	}

	return func(actual proto.Message) *failure.Summary {
		d, err := c.Compare(actual, expected)
		if err != nil {
			return comparison.NewSummaryBuilder(cmpName).
				Because("comparison could not run: %s", err).
				Summary
		}
		if d.Identical() {
			return nil
		}
		return comparison.NewSummaryBuilder(cmpName).
			Because("messages differ").
			Actual(messageLine(actual)).
			AddFindingf("Expected", "%s", messageLine(expected)).
			AddFindingf("Diff", "%s", strings.TrimRight(d.Report(), "\n")).
			Summary
	}
}

// ContainExactly returns a comparison.Func which checks that a collection of
// messages contains exactly the expected elements, in any order, respecting
// multiplicity.
func ContainExactly(expected []proto.Message, cfg ...Config) comparison.Func[[]proto.Message] {
	return containment("prototruth.ContainExactly", modeExactly, false, expected, cfg)
}

// ContainExactlyInOrder is ContainExactly plus the check that the matched
// elements appear in the expected order.
func ContainExactlyInOrder(expected []proto.Message, cfg ...Config) comparison.Func[[]proto.Message] {
	return containment("prototruth.ContainExactlyInOrder", modeExactly, true, expected, cfg)
}

// ContainAll returns a comparison.Func which checks that a collection of
// messages contains at least the expected elements; extras are allowed.
func ContainAll(expected []proto.Message, cfg ...Config) comparison.Func[[]proto.Message] {
	return containment("prototruth.ContainAll", modeAll, false, expected, cfg)
}

// ContainAllInOrder is ContainAll plus the check that the expected elements
// appear as a subsequence of the actual elements.
func ContainAllInOrder(expected []proto.Message, cfg ...Config) comparison.Func[[]proto.Message] {
	return containment("prototruth.ContainAllInOrder", modeAll, true, expected, cfg)
}

// ContainAny returns a comparison.Func which checks that at least one
// element of a collection is equivalent to one of the expected elements.
func ContainAny(expected []proto.Message, cfg ...Config) comparison.Func[[]proto.Message] {
	return containment("prototruth.ContainAny", modeAny, false, expected, cfg)
}

// ContainNone returns a comparison.Func which checks that no element of
// a collection is equivalent to any of the excluded elements.
func ContainNone(excluded []proto.Message, cfg ...Config) comparison.Func[[]proto.Message] {
	return containment("prototruth.ContainNone", modeNone, false, excluded, cfg)
}

func containment(cmpName string, mode matchMode, inOrder bool, expected []proto.Message, cfg []Config) comparison.Func[[]proto.Message] {
	c, errFn := singleConfig[[]proto.Message](cmpName, cfg)
	if errFn != nil {
		return errFn
	}

	return func(actual []proto.Message) *failure.Summary {
		res, err := c.match(mode, actual, expected)
		if err != nil {
			return comparison.NewSummaryBuilder(cmpName).
				Because("comparison could not run: %s", err).
				Summary
		}
		switch {
		case !res.Ok():
			b := comparison.NewSummaryBuilder(cmpName).
				Because("%s", verdictFailure(mode))
			if rep := strings.TrimRight(res.Report(), "\n"); rep != "" {
				b = b.AddFindingf("Findings", "%s", rep)
			}
			return b.Summary
		case inOrder && !res.InOrder():
			// The right elements are all present; only their order is wrong.
			return comparison.NewSummaryBuilder(cmpName).
				Because("elements match, but not in the expected order").
				Summary
		}
		return nil
	}
}

func verdictFailure(mode matchMode) string {
	switch mode {
	case modeExactly:
		return "actual does not contain exactly the expected elements"
	case modeAll:
		return "actual does not contain all of the expected elements"
	case modeAny:
		return "actual contains none of the expected elements"
	case modeNone:
		return "actual contains an excluded element"
	}
	return "containment check failed"
}
