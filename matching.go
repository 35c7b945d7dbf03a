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
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

type matchMode int

const (
	modeExactly matchMode = iota
	modeAll
	modeAny
	modeNone
)

// MatchedPair records one matched (actual, expected) index pair of
// a containment query.
type MatchedPair struct {
	Actual   int
	Expected int
}

// MatchResult is the outcome of one containment query between an actual and
// an expected collection.
//
// When several maximum matchings exist, any one of them supports the same
// verdict; the engine prefers matchings seeded with equal-pairing-key pairs
// (see Config.DisplayingDiffsPairedBy) so the unmatched leftovers pair up
// better in failure reports. The choice never affects Ok or InOrder.
type MatchResult struct {
	// Pairs holds the matched pairs of the chosen maximum matching. For
	// ContainsNoneIn it instead holds every offending equivalent
	// (actual, excluded) pair.
	Pairs []MatchedPair

	// UnmatchedActual and UnmatchedExpected hold the indices left unmatched
	// by the chosen matching.
	UnmatchedActual   []int
	UnmatchedExpected []int

	mode     matchMode
	cfg      Config
	actual   []proto.Message
	expected []proto.Message
	edges    [][]bool
}

// Ok reports the verdict of the containment query.
func (r *MatchResult) Ok() bool {
	switch r.mode {
	case modeExactly:
		return len(r.UnmatchedActual) == 0 && len(r.UnmatchedExpected) == 0
	case modeAll:
		return len(r.UnmatchedExpected) == 0
	case modeAny:
		return len(r.Pairs) > 0
	case modeNone:
		return len(r.Pairs) == 0
	}
	return false
}

// InOrder reports whether the verdict additionally holds with ordering
// preserved: some maximum matching pairs the expected elements, visited in
// order, with strictly increasing actual indices.
//
// This is an existence check over all valid matchings, not a property of
// the one held in Pairs. For an exact query over equal-length collections an
// order-preserving perfect matching is necessarily the identity pairing; for
// an at-least query it is a subsequence search, where greedy earliest match
// is exact. Failing InOrder while Ok holds is the "right elements, wrong
// order" failure, distinct from a containment failure.
func (r *MatchResult) InOrder() bool {
	if !r.Ok() {
		return false
	}
	switch r.mode {
	case modeExactly:
		for i := range r.actual {
			if !r.edges[i][i] {
				return false
			}
		}
		return true
	case modeAll:
		ai := 0
		for e := range r.expected {
			found := false
			for ; ai < len(r.actual); ai++ {
				if r.edges[ai][e] {
					found = true
					ai++
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}
	return true
}

// ContainsExactlyElementsIn checks that a perfect 1-1 matching exists
// between `actual` and `expected` under the configured equivalence,
// respecting multiplicity: duplicates are distinct slots.
//
// The equivalence predicate need not be transitive, so the engine runs
// a full augmenting-path maximum-matching search rather than any
// sort-and-group shortcut.
func (c Config) ContainsExactlyElementsIn(actual, expected []proto.Message) (*MatchResult, error) {
	return c.match(modeExactly, actual, expected)
}

// ContainsAllIn checks that a matching exists covering every expected
// element; actual elements may be left over.
func (c Config) ContainsAllIn(actual, expected []proto.Message) (*MatchResult, error) {
	return c.match(modeAll, actual, expected)
}

// ContainsAnyIn checks that at least one (actual, expected) pair is
// equivalent.
func (c Config) ContainsAnyIn(actual, expected []proto.Message) (*MatchResult, error) {
	return c.match(modeAny, actual, expected)
}

// ContainsNoneIn checks that no actual element is equivalent to any element
// of `excluded`. Duplicates are irrelevant here.
func (c Config) ContainsNoneIn(actual, excluded []proto.Message) (*MatchResult, error) {
	return c.match(modeNone, actual, excluded)
}

func (c Config) match(mode matchMode, actual, expected []proto.Message) (*MatchResult, error) {
	res := &MatchResult{mode: mode, cfg: c, actual: actual, expected: expected}

	// The scope resolves against the expected element type: this is where
	// ComparingExpectedFieldsOnly and Fields() numbers become concrete.
	root := firstDescriptor(expected)
	if root == nil {
		root = firstDescriptor(actual)
	}
	var scope scopeLogic
	if root != nil {
		var err error
		if scope, err = c.effectiveScope(root, expected); err != nil {
			return nil, err
		}
	}

	pred := func(a, e proto.Message) bool {
		if a == nil || e == nil {
			return a == nil && e == nil
		}
		ad, ed := a.ProtoReflect().Descriptor(), e.ProtoReflect().Descriptor()
		if ad != ed {
			// A concrete type mismatch reads as "not equivalent"; matching
			// proceeds over the remaining candidates.
			return false
		}
		s := scope
		if ad != root {
			var err error
			if s, err = c.effectiveScope(ad, expected); err != nil {
				return false
			}
		}
		d := &differ{cfg: c, root: ad, scope: s}
		return !anyMismatch(d.diffMessage(a.ProtoReflect(), e.ProtoReflect(), nil))
	}

	res.edges = make([][]bool, len(actual))
	for i := range actual {
		res.edges[i] = make([]bool, len(expected))
		for j := range expected {
			res.edges[i][j] = pred(actual[i], expected[j])
		}
	}

	if mode == modeNone {
		for i := range actual {
			for j := range expected {
				if res.edges[i][j] {
					res.Pairs = append(res.Pairs, MatchedPair{Actual: i, Expected: j})
				}
			}
		}
		return res, nil
	}

	actualOf, expectedOf := maximumBipartiteMatching(
		len(actual), len(expected),
		func(a, e int) bool { return res.edges[a][e] },
		c.pairingSeed(actual, expected, res.edges),
	)
	for e, a := range actualOf {
		if a >= 0 {
			res.Pairs = append(res.Pairs, MatchedPair{Actual: a, Expected: e})
		} else {
			res.UnmatchedExpected = append(res.UnmatchedExpected, e)
		}
	}
	for a, e := range expectedOf {
		if e < 0 {
			res.UnmatchedActual = append(res.UnmatchedActual, a)
		}
	}
	return res, nil
}

// pairingSeed proposes initial matched pairs between elements whose pairing
// keys are equal, so that a maximum matching containing them is preferred
// and the unmatched leftovers pair up by key in the failure report.
func (c Config) pairingSeed(actual, expected []proto.Message, edges [][]bool) []MatchedPair {
	if c.pairingKey == nil {
		return nil
	}
	var seed []MatchedPair
	usedActual := make([]bool, len(actual))
	for e := range expected {
		ek := messageKey(c.pairingKey, expected[e])
		if ek == nil {
			continue
		}
		for a := range actual {
			if usedActual[a] || !edges[a][e] {
				continue
			}
			if keysEqual(messageKey(c.pairingKey, actual[a]), ek) {
				usedActual[a] = true
				seed = append(seed, MatchedPair{Actual: a, Expected: e})
				break
			}
		}
	}
	return seed
}

func firstDescriptor(msgs []proto.Message) protoreflect.MessageDescriptor {
	for _, m := range msgs {
		if m != nil {
			return m.ProtoReflect().Descriptor()
		}
	}
	return nil
}

func messageKey(key func(proto.Message) any, m proto.Message) any {
	if m == nil {
		return nil
	}
	return key(m)
}

// keysEqual compares pairing keys with ==, tolerating non-comparable key
// types (those never pair).
func keysEqual(a, b any) (eq bool) {
	if a == nil || b == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}

// maximumBipartiteMatching runs Kuhn's augmenting-path search and returns,
// per expected index, the matched actual index (or -1), and per actual
// index, the matched expected index (or -1).
//
// `seed` pairs are installed first when their edge holds and both endpoints
// are free; augmentation may later reroute them, but never shrinks the
// matching, so seeded pairs survive whenever some maximum matching contains
// them.
func maximumBipartiteMatching(nActual, nExpected int, edge func(a, e int) bool, seed []MatchedPair) (actualOf, expectedOf []int) {
	actualOf = make([]int, nExpected)
	expectedOf = make([]int, nActual)
	for i := range actualOf {
		actualOf[i] = -1
	}
	for i := range expectedOf {
		expectedOf[i] = -1
	}
	for _, p := range seed {
		if p.Actual < 0 || p.Actual >= nActual || p.Expected < 0 || p.Expected >= nExpected {
			continue
		}
		if actualOf[p.Expected] < 0 && expectedOf[p.Actual] < 0 && edge(p.Actual, p.Expected) {
			actualOf[p.Expected] = p.Actual
			expectedOf[p.Actual] = p.Expected
		}
	}

	var augment func(e int, visited []bool) bool
	augment = func(e int, visited []bool) bool {
		for a := 0; a < nActual; a++ {
			if visited[a] || !edge(a, e) {
				continue
			}
			visited[a] = true
			if expectedOf[a] < 0 || augment(expectedOf[a], visited) {
				expectedOf[a] = e
				actualOf[e] = a
				return true
			}
		}
		return false
	}
	for e := 0; e < nExpected; e++ {
		if actualOf[e] < 0 {
			augment(e, make([]bool, nActual))
		}
	}
	return actualOf, expectedOf
}
