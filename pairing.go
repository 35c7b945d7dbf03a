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
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
)

// PairedDiff is one unmatched actual element displayed side by side with an
// unmatched expected element sharing its pairing key.
type PairedDiff struct {
	// Key is the shared, non-nil pairing key.
	Key any

	// Actual and Expected are indices into the original collections.
	Actual   int
	Expected int

	// Diff is the field-level diff of the pair, when the two elements share
	// a concrete type; nil otherwise.
	Diff *Diff
}

// PairUnmatched pairs the unmatched actual elements with the unmatched
// expected elements by the key function configured with
// DisplayingDiffsPairedBy.
//
// An actual and an expected element pair up when their keys are equal and
// non-nil. A key shared by two or more unmatched expected elements is
// ambiguous: pairing for that key is skipped entirely. Pairing is purely
// cosmetic; it never changes the verdict of the query.
//
// Returns nil when no key function is configured.
func (r *MatchResult) PairUnmatched() []PairedDiff {
	if r.cfg.pairingKey == nil {
		return nil
	}

	// Expected elements retain a key only while it is unambiguous among the
	// unmatched expected elements.
	byKey := map[any]int{}
	ambiguous := map[any]bool{}
	for _, e := range r.UnmatchedExpected {
		k := messageKey(r.cfg.pairingKey, r.expected[e])
		if k == nil || !comparableKey(k) {
			continue
		}
		if _, dup := byKey[k]; dup {
			ambiguous[k] = true
			continue
		}
		byKey[k] = e
	}

	var out []PairedDiff
	for _, a := range r.UnmatchedActual {
		k := messageKey(r.cfg.pairingKey, r.actual[a])
		if k == nil || !comparableKey(k) || ambiguous[k] {
			continue
		}
		e, ok := byKey[k]
		if !ok {
			continue
		}
		pd := PairedDiff{Key: k, Actual: a, Expected: e}
		if d, err := r.cfg.Compare(r.actual[a], r.expected[e]); err == nil {
			pd.Diff = d
		}
		out = append(out, pd)
	}
	return out
}

func comparableKey(k any) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_ = k == k
	return true
}

// Report renders a human-readable account of the query result, for
// inclusion in assertion failure messages. Paired elements are shown as
// unified text diffs of their prototext renderings; the remaining unmatched
// elements are listed individually.
func (r *MatchResult) Report() string {
	var sb strings.Builder

	if r.mode == modeNone {
		for _, p := range r.Pairs {
			fmt.Fprintf(&sb, "actual[%d] is equivalent to excluded[%d]: %s\n",
				p.Actual, p.Expected, messageLine(r.actual[p.Actual]))
		}
		return sb.String()
	}

	paired := r.PairUnmatched()
	pairedActual := map[int]bool{}
	pairedExpected := map[int]bool{}
	for _, pd := range paired {
		pairedActual[pd.Actual] = true
		pairedExpected[pd.Expected] = true
		fmt.Fprintf(&sb, "actual[%d] and expected[%d] have pairing key %v but differ:\n",
			pd.Actual, pd.Expected, pd.Key)
		if ud := unifiedMessageDiff(r.expected[pd.Expected], r.actual[pd.Actual], pd.Expected, pd.Actual); ud != "" {
			sb.WriteString(indentLines(ud, "  "))
		}
		if pd.Diff != nil {
			if rep := pd.Diff.Report(); rep != "" {
				sb.WriteString(indentLines(rep, "  "))
			}
		}
	}

	for _, e := range r.UnmatchedExpected {
		if !pairedExpected[e] {
			fmt.Fprintf(&sb, "missing (expected[%d]): %s\n", e, messageLine(r.expected[e]))
		}
	}
	for _, a := range r.UnmatchedActual {
		if !pairedActual[a] {
			fmt.Fprintf(&sb, "unexpected (actual[%d]): %s\n", a, messageLine(r.actual[a]))
		}
	}
	return sb.String()
}

func messageLine(m proto.Message) string {
	if m == nil {
		return "<nil>"
	}
	txt := strings.TrimSpace(prototext.MarshalOptions{Multiline: false}.Format(m))
	return "{" + txt + "}"
}

func unifiedMessageDiff(expected, actual proto.Message, eIdx, aIdx int) string {
	if expected == nil || actual == nil {
		return ""
	}
	opts := prototext.MarshalOptions{Multiline: true, Indent: "  "}
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(opts.Format(expected)),
		B:        difflib.SplitLines(opts.Format(actual)),
		FromFile: fmt.Sprintf("expected[%d]", eIdx),
		ToFile:   fmt.Sprintf("actual[%d]", aIdx),
		Context:  3,
	}
	s, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return ""
	}
	return s
}

func indentLines(s, indent string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, ln := range lines {
		lines[i] = indent + ln
	}
	return strings.Join(lines, "\n") + "\n"
}
