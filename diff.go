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
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"

	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"go.chromium.org/luci/common/errors"
)

// DiffKind classifies one node of a diff tree.
type DiffKind int

const (
	// DiffMatched means the field compared equal under the active rules.
	DiffMatched DiffKind = iota

	// DiffModified means the field is present on both sides with differing
	// content.
	DiffModified

	// DiffAdded means the field or element is present in the actual message
	// only.
	DiffAdded

	// DiffDeleted means the field or element is present in the expected
	// message only.
	DiffDeleted

	// DiffIgnored means the field was excluded by the field scope (or
	// tolerated, e.g. an extra repeated element under
	// IgnoringExtraRepeatedFieldElements).
	DiffIgnored
)

func (k DiffKind) String() string {
	switch k {
	case DiffMatched:
		return "matched"
	case DiffModified:
		return "modified"
	case DiffAdded:
		return "added"
	case DiffDeleted:
		return "deleted"
	case DiffIgnored:
		return "ignored"
	}
	return fmt.Sprintf("DiffKind(%d)", int(k))
}

// FieldDiff is one node of a diff tree, mirroring one field (or one repeated
// element, or one map entry) of the compared messages.
type FieldDiff struct {
	// Field is the descriptor of the compared field. Nil for the synthetic
	// node reporting a difference in unknown field sets.
	Field protoreflect.FieldDescriptor

	// Label is the rendered path segment, e.g. `o_int`, `r_msg[2]` or
	// `map_msg["k"]`.
	Label string

	Kind DiffKind

	// Actual and Expected hold the compared values where they are scalars;
	// either may be invalid when the corresponding side is absent.
	Actual   protoreflect.Value
	Expected protoreflect.Value

	Reason string

	// Children holds the per-field diffs of a message-typed node.
	Children []*FieldDiff
}

// Diff is the result of structurally comparing two messages of one type.
type Diff struct {
	// Descriptor is the compared message type.
	Descriptor protoreflect.MessageDescriptor

	// Fields holds one node per compared field that was set on either side.
	Fields []*FieldDiff

	reportMismatchesOnly bool
}

// Identical reports whether the messages compared equal under the active
// rules. Ignored fields never affect the verdict.
func (d *Diff) Identical() bool {
	return !anyMismatch(d.Fields)
}

func anyMismatch(nodes []*FieldDiff) bool {
	for _, n := range nodes {
		switch n.Kind {
		case DiffModified, DiffAdded, DiffDeleted:
			return true
		}
		if anyMismatch(n.Children) {
			return true
		}
	}
	return false
}

// Compare recursively compares `actual` against `expected` under the
// configured rules and returns the resulting diff tree.
//
// Both messages must share one concrete type; a type mismatch is an error
// here (use Equivalent, or the containment verbs, where a type mismatch
// should instead read as "not equivalent"). An error is also returned when
// the configured scope cannot be resolved against the message type, e.g.
// a Fields() number which does not exist on it.
func (c Config) Compare(actual, expected proto.Message) (*Diff, error) {
	switch {
	case actual == nil:
		return nil, errors.New("Compare: actual message is nil")
	case expected == nil:
		return nil, errors.New("Compare: expected message is nil")
	}
	a, e := actual.ProtoReflect(), expected.ProtoReflect()
	if a.Descriptor() != e.Descriptor() {
		return nil, errors.Fmt(
			"Compare: mismatched message types: got %s, expected %s",
			a.Descriptor().FullName(), e.Descriptor().FullName())
	}
	scope, err := c.effectiveScope(a.Descriptor(), []proto.Message{expected})
	if err != nil {
		return nil, err
	}
	d := &differ{cfg: c, root: a.Descriptor(), scope: scope}
	return &Diff{
		Descriptor:           a.Descriptor(),
		Fields:               d.diffMessage(a, e, nil),
		reportMismatchesOnly: c.reportMismatchesOnly,
	}, nil
}

// Equivalent reports whether `actual` compares equal to `expected` under the
// configured rules.
//
// This is the pairwise predicate consumed by the containment verbs. It is
// not guaranteed to be transitive or symmetric when
// IgnoringExtraRepeatedFieldElements or ComparingExpectedFieldsOnly is
// active. Mismatched concrete types are not equivalent (never an error
// here); nil operands are equivalent only to each other.
func (c Config) Equivalent(actual, expected proto.Message) (bool, error) {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil, nil
	}
	if actual.ProtoReflect().Descriptor() != expected.ProtoReflect().Descriptor() {
		return false, nil
	}
	d, err := c.Compare(actual, expected)
	if err != nil {
		return false, err
	}
	return d.Identical(), nil
}

// differ carries the per-comparison state: the resolved scope and the root
// type the scope is evaluated against. It allocates only local state; one
// differ is never shared across calls.
type differ struct {
	cfg   Config
	root  protoreflect.MessageDescriptor
	scope scopeLogic
}

func (d *differ) diffMessage(a, e protoreflect.Message, path fieldPath) []*FieldDiff {
	var out []*FieldDiff
	fields := a.Descriptor().Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		childPath := append(path[:len(path):len(path)], fd)
		aHas, eHas := a.Has(fd), e.Has(fd)

		pol := d.scope.policy(d.root, childPath)
		if pol == excluded {
			if aHas || eHas {
				out = append(out, &FieldDiff{Field: fd, Label: string(fd.Name()), Kind: DiffIgnored})
			}
			continue
		}

		var node *FieldDiff
		switch {
		case fd.IsMap():
			node = d.diffMap(fd, a.Get(fd).Map(), e.Get(fd).Map(), childPath, pol)
		case fd.IsList():
			node = d.diffList(fd, a.Get(fd).List(), e.Get(fd).List(), childPath)
		case fd.Message() != nil:
			node = d.diffMessageField(fd, a, e, childPath, pol)
		default:
			node = d.diffScalarField(fd, a, e, childPath)
		}
		if node != nil {
			out = append(out, node)
		}
	}

	if !d.cfg.ignoreFieldAbsence && !bytes.Equal(a.GetUnknown(), e.GetUnknown()) {
		out = append(out, &FieldDiff{
			Label:  "(unknown fields)",
			Kind:   DiffModified,
			Reason: "unknown field sets differ",
		})
	}
	return out
}

// diffMessageField compares one singular message field.
//
// When the subtree is only partially in scope, a presence difference on the
// field itself counts as a mismatch only if some in-scope content differs;
// the present side is compared against an empty message to decide.
func (d *differ) diffMessageField(fd protoreflect.FieldDescriptor, a, e protoreflect.Message, path fieldPath, pol inclusion) *FieldDiff {
	aHas, eHas := a.Has(fd), e.Has(fd)
	if !aHas && !eHas {
		return nil
	}

	// Get on an unset field yields an empty read-only message, which is
	// exactly the "treat unset as default" comparison base.
	children := d.diffMessage(a.Get(fd).Message(), e.Get(fd).Message(), path)
	clean := !anyMismatch(children)

	node := &FieldDiff{Field: fd, Label: string(fd.Name()), Children: children}
	switch {
	case aHas == eHas || d.cfg.ignoreFieldAbsence:
		if clean {
			node.Kind = DiffMatched
		} else {
			node.Kind = DiffModified
		}
	case pol == includedPartially && clean:
		node.Kind = DiffIgnored
	case aHas:
		node.Kind = DiffAdded
		node.Actual = a.Get(fd)
		node.Reason = "field presence differs"
	default:
		node.Kind = DiffDeleted
		node.Expected = e.Get(fd)
		node.Reason = "field presence differs"
	}
	return node
}

func (d *differ) diffScalarField(fd protoreflect.FieldDescriptor, a, e protoreflect.Message, path fieldPath) *FieldDiff {
	aHas, eHas := a.Has(fd), e.Has(fd)
	if !aHas && !eHas {
		return nil
	}
	av, ev := a.Get(fd), e.Get(fd)
	node := &FieldDiff{Field: fd, Label: string(fd.Name()), Actual: av, Expected: ev}

	if !d.cfg.ignoreFieldAbsence && fd.HasPresence() && aHas != eHas {
		// A field explicitly set to its default value is not the same as an
		// unset field.
		if aHas {
			node.Kind = DiffAdded
			node.Expected = protoreflect.Value{}
		} else {
			node.Kind = DiffDeleted
			node.Actual = protoreflect.Value{}
		}
		node.Reason = "field presence differs"
		return node
	}

	if d.scalarValuesEqual(fd, av, ev) {
		node.Kind = DiffMatched
	} else {
		node.Kind = DiffModified
	}
	return node
}

func (d *differ) diffList(fd protoreflect.FieldDescriptor, al, el protoreflect.List, path fieldPath) *FieldDiff {
	nA, nE := al.Len(), el.Len()
	if nA == 0 && nE == 0 {
		return nil
	}
	node := &FieldDiff{Field: fd, Label: string(fd.Name())}

	switch {
	case !d.cfg.ignoreRepeatedFieldOrder && !d.cfg.ignoreExtraRepeatedFieldElements:
		d.diffListOrdered(node, fd, al, el, path)
	case !d.cfg.ignoreRepeatedFieldOrder:
		d.diffListSubsequence(node, fd, al, el, path)
	default:
		d.diffListUnordered(node, fd, al, el, path)
	}
	return node
}

// diffListOrdered compares element-wise by position. A length mismatch is an
// immediate mismatch with no partial credit.
func (d *differ) diffListOrdered(node *FieldDiff, fd protoreflect.FieldDescriptor, al, el protoreflect.List, path fieldPath) {
	nA, nE := al.Len(), el.Len()
	if nA != nE {
		node.Kind = DiffModified
		node.Reason = fmt.Sprintf("repeated field length differs: actual %d, expected %d", nA, nE)
		return
	}
	node.Kind = DiffMatched
	for i := 0; i < nA; i++ {
		child := d.diffElement(fd, al.Get(i), el.Get(i), path)
		child.Label = fmt.Sprintf("%s[%d]", fd.Name(), i)
		if child.Kind == DiffModified {
			node.Kind = DiffModified
		}
		node.Children = append(node.Children, child)
	}
}

// diffListSubsequence requires the expected elements to appear as
// a subsequence of the actual elements: gaps allowed, relative order
// preserved. Unmatched actual elements are tolerated.
//
// Greedy earliest-match is exact for subsequence containment: taking the
// first equivalent actual element never rules out a later expected element.
func (d *differ) diffListSubsequence(node *FieldDiff, fd protoreflect.FieldDescriptor, al, el protoreflect.List, path fieldPath) {
	node.Kind = DiffMatched
	ai := 0
	for ei := 0; ei < el.Len(); ei++ {
		ev := el.Get(ei)
		found := -1
		for ; ai < al.Len(); ai++ {
			if d.elementsEqual(fd, al.Get(ai), ev, path) {
				found = ai
				ai++
				break
			}
		}
		if found < 0 {
			node.Kind = DiffModified
			node.Children = append(node.Children, &FieldDiff{
				Field:    fd,
				Label:    fmt.Sprintf("%s[%d]", fd.Name(), ei),
				Kind:     DiffDeleted,
				Expected: ev,
				Reason:   "expected element has no match in actual order",
			})
			continue
		}
		node.Children = append(node.Children, &FieldDiff{
			Field:    fd,
			Label:    fmt.Sprintf("%s[%d]", fd.Name(), found),
			Kind:     DiffMatched,
			Actual:   al.Get(found),
			Expected: ev,
		})
	}
}

// diffListUnordered treats the field as a multiset: a maximum bipartite
// matching over the element predicate decides which slots pair up.
// Duplicates are distinct slots. Extra actual elements are mismatches
// unless IgnoringExtraRepeatedFieldElements is set.
func (d *differ) diffListUnordered(node *FieldDiff, fd protoreflect.FieldDescriptor, al, el protoreflect.List, path fieldPath) {
	nA, nE := al.Len(), el.Len()
	edges := make([][]bool, nA)
	for a := 0; a < nA; a++ {
		edges[a] = make([]bool, nE)
		for e := 0; e < nE; e++ {
			edges[a][e] = d.elementsEqual(fd, al.Get(a), el.Get(e), path)
		}
	}
	actualOf, expectedOf := maximumBipartiteMatching(nA, nE, func(a, e int) bool {
		return edges[a][e]
	}, nil)

	node.Kind = DiffMatched
	for ei, ai := range actualOf {
		if ai < 0 {
			node.Kind = DiffModified
			node.Children = append(node.Children, &FieldDiff{
				Field:    fd,
				Label:    fmt.Sprintf("%s[%d]", fd.Name(), ei),
				Kind:     DiffDeleted,
				Expected: el.Get(ei),
				Reason:   "expected element matches no actual element",
			})
			continue
		}
		node.Children = append(node.Children, &FieldDiff{
			Field:    fd,
			Label:    fmt.Sprintf("%s[%d]", fd.Name(), ai),
			Kind:     DiffMatched,
			Actual:   al.Get(ai),
			Expected: el.Get(ei),
			Reason:   fmt.Sprintf("matched expected element %d", ei),
		})
	}
	for ai, ei := range expectedOf {
		if ei >= 0 {
			continue
		}
		child := &FieldDiff{
			Field:  fd,
			Label:  fmt.Sprintf("%s[%d]", fd.Name(), ai),
			Actual: al.Get(ai),
		}
		if d.cfg.ignoreExtraRepeatedFieldElements {
			child.Kind = DiffIgnored
			child.Reason = "extra element tolerated"
		} else {
			child.Kind = DiffAdded
			child.Reason = "actual element matches no expected element"
			node.Kind = DiffModified
		}
		node.Children = append(node.Children, child)
	}
}

// diffMap compares by key regardless of the ordering rules. Actual-only keys
// are tolerated under IgnoringExtraRepeatedFieldElements; missing expected
// keys never are.
func (d *differ) diffMap(fd protoreflect.FieldDescriptor, am, em protoreflect.Map, path fieldPath, pol inclusion) *FieldDiff {
	if am.Len() == 0 && em.Len() == 0 {
		return nil
	}
	node := &FieldDiff{Field: fd, Label: string(fd.Name()), Kind: DiffMatched}
	vfd := fd.MapValue()

	for _, k := range unionMapKeys(am, em) {
		label := fmt.Sprintf("%s[%s]", fd.Name(), formatMapKey(fd.MapKey(), k))
		aHas, eHas := am.Has(k), em.Has(k)
		var child *FieldDiff
		switch {
		case aHas && eHas:
			child = d.diffElement(vfd, am.Get(k), em.Get(k), path)
			child.Field = fd
			child.Label = label
			if child.Kind == DiffModified {
				node.Kind = DiffModified
			}
			node.Children = append(node.Children, child)
			continue
		case aHas:
			child = &FieldDiff{Field: fd, Label: label, Actual: am.Get(k)}
			if d.cfg.ignoreExtraRepeatedFieldElements {
				child.Kind = DiffIgnored
				child.Reason = "extra map key tolerated"
			} else if pol == includedPartially && d.entryCleanVsEmpty(vfd, am.Get(k), path) {
				child.Kind = DiffIgnored
			} else {
				child.Kind = DiffAdded
				child.Reason = "map key present in actual only"
			}
		default:
			child = &FieldDiff{Field: fd, Label: label, Expected: em.Get(k)}
			if pol == includedPartially && d.entryCleanVsEmpty(vfd, em.Get(k), path) {
				child.Kind = DiffIgnored
			} else {
				child.Kind = DiffDeleted
				child.Reason = "map key present in expected only"
			}
		}
		if child.Kind != DiffIgnored {
			node.Kind = DiffModified
		}
		node.Children = append(node.Children, child)
	}
	return node
}

// entryCleanVsEmpty reports whether a one-sided map value has no in-scope
// content, by comparing it against an empty message. Always false for scalar
// values: those are fully in scope whenever the map is.
func (d *differ) entryCleanVsEmpty(vfd protoreflect.FieldDescriptor, v protoreflect.Value, path fieldPath) bool {
	if vfd.Message() == nil {
		return false
	}
	empty := v.Message().New()
	return !anyMismatch(d.diffMessage(v.Message(), empty, path))
}

// diffElement compares one repeated element or map value pair, returning
// a node with no Label (the caller labels it by index or key).
func (d *differ) diffElement(fd protoreflect.FieldDescriptor, av, ev protoreflect.Value, path fieldPath) *FieldDiff {
	child := &FieldDiff{Field: fd, Actual: av, Expected: ev}
	if fd.Message() != nil {
		child.Children = d.diffMessage(av.Message(), ev.Message(), path)
		if anyMismatch(child.Children) {
			child.Kind = DiffModified
		} else {
			child.Kind = DiffMatched
		}
		return child
	}
	if d.scalarValuesEqual(fd, av, ev) {
		child.Kind = DiffMatched
	} else {
		child.Kind = DiffModified
	}
	return child
}

// elementsEqual is the element-level equivalence predicate used by the
// multiset and subsequence modes.
func (d *differ) elementsEqual(fd protoreflect.FieldDescriptor, av, ev protoreflect.Value, path fieldPath) bool {
	if fd.Message() != nil {
		return !anyMismatch(d.diffMessage(av.Message(), ev.Message(), path))
	}
	return d.scalarValuesEqual(fd, av, ev)
}

func (d *differ) scalarValuesEqual(fd protoreflect.FieldDescriptor, av, ev protoreflect.Value) bool {
	switch fd.Kind() {
	case protoreflect.DoubleKind:
		return d.doubleEqual(av.Float(), ev.Float())
	case protoreflect.FloatKind:
		return d.floatEqual(float32(av.Float()), float32(ev.Float()))
	case protoreflect.BoolKind:
		return av.Bool() == ev.Bool()
	case protoreflect.EnumKind:
		return av.Enum() == ev.Enum()
	case protoreflect.StringKind:
		return av.String() == ev.String()
	case protoreflect.BytesKind:
		return bytes.Equal(av.Bytes(), ev.Bytes())
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return av.Int() == ev.Int()
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return av.Uint() == ev.Uint()
	}
	panic(errors.Fmt("impossible: unhandled scalar kind %q", fd.Kind()))
}

// doubleEqual applies the configured tolerance when both operands are
// finite; otherwise (and when no tolerance is configured) values must be
// representationally identical, so NaN equals NaN and -0 differs from 0.
func (d *differ) doubleEqual(a, e float64) bool {
	if d.cfg.hasDoubleTolerance && isFinite(a) && isFinite(e) {
		return math.Abs(a-e) <= d.cfg.doubleTolerance
	}
	return math.Float64bits(a) == math.Float64bits(e)
}

func (d *differ) floatEqual(a, e float32) bool {
	if d.cfg.hasFloatTolerance && isFinite(float64(a)) && isFinite(float64(e)) {
		return math.Abs(float64(a)-float64(e)) <= float64(d.cfg.floatTolerance)
	}
	return math.Float32bits(a) == math.Float32bits(e)
}

func isFinite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

func unionMapKeys(am, em protoreflect.Map) []protoreflect.MapKey {
	seen := map[any]protoreflect.MapKey{}
	collect := func(m protoreflect.Map) {
		m.Range(func(k protoreflect.MapKey, _ protoreflect.Value) bool {
			seen[k.Interface()] = k
			return true
		})
	}
	collect(am)
	collect(em)
	keys := make([]protoreflect.MapKey, 0, len(seen))
	for _, k := range seen {
		keys = append(keys, k)
	}
	// Deterministic report order.
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

func formatMapKey(kfd protoreflect.FieldDescriptor, k protoreflect.MapKey) string {
	if kfd.Kind() == protoreflect.StringKind {
		return fmt.Sprintf("%q", k.String())
	}
	return k.String()
}

// Report renders the diff tree as indented per-field lines. Matched and
// ignored fields are omitted when the configuration said
// ReportingMismatchesOnly. The empty string means the messages compared
// identical and nothing was set on either side.
func (d *Diff) Report() string {
	var sb strings.Builder
	renderDiffNodes(&sb, "", d.Fields, d.reportMismatchesOnly)
	return sb.String()
}

func (d *Diff) String() string { return d.Report() }

func renderDiffNodes(sb *strings.Builder, prefix string, nodes []*FieldDiff, mismatchesOnly bool) {
	for _, n := range nodes {
		label := n.Label
		if prefix != "" {
			label = prefix + "." + n.Label
		}
		if len(n.Children) > 0 {
			renderDiffNodes(sb, label, n.Children, mismatchesOnly)
			continue
		}
		switch n.Kind {
		case DiffMatched, DiffIgnored:
			if mismatchesOnly {
				continue
			}
			fmt.Fprintf(sb, "%s: %s", n.Kind, label)
			if n.Actual.IsValid() && n.Field != nil {
				fmt.Fprintf(sb, ": %s", formatDiffValue(n.Field, n.Actual))
			}
			if n.Reason != "" {
				fmt.Fprintf(sb, " (%s)", n.Reason)
			}
			sb.WriteString("\n")
		case DiffModified:
			if !n.Actual.IsValid() && !n.Expected.IsValid() && n.Reason != "" {
				fmt.Fprintf(sb, "modified: %s: %s\n", label, n.Reason)
				continue
			}
			fmt.Fprintf(sb, "modified: %s: %s -> %s",
				label, formatDiffValue(n.Field, n.Expected), formatDiffValue(n.Field, n.Actual))
			if n.Reason != "" {
				fmt.Fprintf(sb, " (%s)", n.Reason)
			}
			sb.WriteString("\n")
		case DiffAdded:
			fmt.Fprintf(sb, "added: %s: %s", label, formatDiffValue(n.Field, n.Actual))
			if n.Reason != "" {
				fmt.Fprintf(sb, " (%s)", n.Reason)
			}
			sb.WriteString("\n")
		case DiffDeleted:
			fmt.Fprintf(sb, "deleted: %s: %s", label, formatDiffValue(n.Field, n.Expected))
			if n.Reason != "" {
				fmt.Fprintf(sb, " (%s)", n.Reason)
			}
			sb.WriteString("\n")
		}
	}
}

func formatDiffValue(fd protoreflect.FieldDescriptor, v protoreflect.Value) string {
	if !v.IsValid() {
		return "<absent>"
	}
	if fd == nil {
		return fmt.Sprintf("%v", v.Interface())
	}
	switch {
	case fd.IsMap():
		// A map node's one-sided value is the map value, not the map itself.
		fd = fd.MapValue()
	}
	if fd.Message() != nil {
		if m, ok := v.Interface().(protoreflect.Message); ok {
			txt := prototext.MarshalOptions{Multiline: false}.Format(m.Interface())
			return "{" + strings.TrimSpace(txt) + "}"
		}
	}
	switch fd.Kind() {
	case protoreflect.StringKind:
		return fmt.Sprintf("%q", v.String())
	case protoreflect.BytesKind:
		return fmt.Sprintf("%q", v.Bytes())
	case protoreflect.EnumKind:
		if ev := fd.Enum().Values().ByNumber(v.Enum()); ev != nil {
			return string(ev.Name())
		}
		return fmt.Sprintf("%d", v.Enum())
	}
	return fmt.Sprintf("%v", v.Interface())
}
