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

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"go.chromium.org/luci/common/errors"
)

// FieldScope is an immutable, recursively-closed set of field paths across
// a message type and its nested message types.
//
// A FieldScope restricts which fields a comparison looks at. Scopes compose
// with Union, Intersect and Subtract; union and intersect are associative and
// commutative, subtraction is not commutative.
//
// The zero FieldScope is equivalent to AllFields().
type FieldScope struct {
	logic scopeLogic
}

// fieldPath is a chain of field descriptors leading from the root message
// type of a comparison down to a specific field.
type fieldPath []protoreflect.FieldDescriptor

// inclusion is the tri-state answer to "how much of the subtree rooted at
// a given field path is in scope".
type inclusion int

const (
	// excluded means no field under this path is in scope.
	excluded inclusion = iota

	// includedPartially means some, but not necessarily all, fields under
	// this path may be in scope; the walk must recurse to decide.
	includedPartially

	// includedFully means the entire subtree under this path is in scope.
	includedFully
)

// scopeLogic is the evaluable form of a FieldScope.
//
// Implementations must be immutable and goroutine safe.
type scopeLogic interface {
	// policy reports the inclusion of the subtree rooted at `path`, where
	// `root` is the message type the comparison started from.
	//
	// Invariant: for paths ending in a non-message field, policy never
	// returns includedPartially.
	policy(root protoreflect.MessageDescriptor, path fieldPath) inclusion

	// validate checks that the logic can be applied to the given root type.
	validate(root protoreflect.MessageDescriptor) error

	describe() string
}

// AllFields returns the universal scope: every field of every message type
// is included.
func AllFields() FieldScope {
	return FieldScope{allLogic{}}
}

// NoFields returns the empty scope.
func NoFields() FieldScope {
	return FieldScope{noneLogic{}}
}

// Fields returns the scope of the given top-level field numbers of the root
// message type of the comparison.
//
// The scope is recursively closed: if the root message type M occurs again
// deeper in the tree, the same field numbers of that occurrence are in scope
// there too, along with their entire subtrees.
//
// Field numbers which do not exist on the concrete root type produce
// a descriptive error from the terminal comparison operation.
//
// Fields() with no arguments is NoFields().
func Fields(nums ...protoreflect.FieldNumber) FieldScope {
	if len(nums) == 0 {
		return NoFields()
	}
	return FieldScope{fieldNumbersLogic(nums)}
}

// FieldDescriptors returns the scope of all fields matching one of the given
// field descriptors, wherever they occur in the tree, along with their entire
// subtrees.
//
// A descriptor which never matches any traversed type is silently a no-op;
// this tolerates scopes shared across heterogeneous message trees.
func FieldDescriptors(fds ...protoreflect.FieldDescriptor) FieldScope {
	if len(fds) == 0 {
		return NoFields()
	}
	return FieldScope{fieldDescriptorsLogic(fds)}
}

// FromSetFields returns the scope of the fields explicitly set in the given
// message(s), unioned across all of them.
//
// Set scalar, repeated and map fields are included with their entire
// subtrees. Set singular message fields are included partially: only their
// set subfields (recursively) are in scope. For repeated message fields the
// set subfields of all elements are unioned.
//
// All messages must share one type; the resulting scope may only be applied
// to comparisons of that type.
func FromSetFields(msgs ...proto.Message) FieldScope {
	node := &setNode{children: map[protoreflect.FieldNumber]*setNode{}}
	var desc protoreflect.MessageDescriptor
	for _, m := range msgs {
		if m == nil {
			continue
		}
		ref := m.ProtoReflect()
		if desc == nil {
			desc = ref.Descriptor()
		} else if desc != ref.Descriptor() {
			panic(errors.Fmt(
				"FromSetFields: mismatched message types: %s vs %s",
				desc.FullName(), ref.Descriptor().FullName()))
		}
		node.mergeSetFields(ref)
	}
	return FieldScope{&setFieldsLogic{desc: desc, root: node}}
}

// Union returns the scope containing every path in either scope.
func (s FieldScope) Union(other FieldScope) FieldScope {
	return FieldScope{&binaryLogic{opUnion, s.logicOrAll(), other.logicOrAll()}}
}

// Intersect returns the scope containing every path in both scopes.
func (s FieldScope) Intersect(other FieldScope) FieldScope {
	return FieldScope{&binaryLogic{opIntersect, s.logicOrAll(), other.logicOrAll()}}
}

// Subtract returns the scope containing every path in this scope which is
// not in `other`.
func (s FieldScope) Subtract(other FieldScope) FieldScope {
	return FieldScope{&binaryLogic{opSubtract, s.logicOrAll(), other.logicOrAll()}}
}

// Contains reports whether any part of the subtree rooted at the given field
// number path (relative to `root`) is in scope.
//
// Paths which do not resolve on `root` are not contained.
func (s FieldScope) Contains(root protoreflect.MessageDescriptor, path ...protoreflect.FieldNumber) bool {
	fp := make(fieldPath, 0, len(path))
	desc := root
	for _, num := range path {
		if desc == nil {
			return false
		}
		fd := desc.Fields().ByNumber(num)
		if fd == nil {
			return false
		}
		fp = append(fp, fd)
		desc = fd.Message()
	}
	return s.logicOrAll().policy(root, fp) != excluded
}

// String renders the scope's structure, for debugging and error messages.
func (s FieldScope) String() string {
	return s.logicOrAll().describe()
}

func (s FieldScope) logicOrAll() scopeLogic {
	if s.logic == nil {
		return allLogic{}
	}
	return s.logic
}

type allLogic struct{}

func (allLogic) policy(protoreflect.MessageDescriptor, fieldPath) inclusion { return includedFully }
func (allLogic) validate(protoreflect.MessageDescriptor) error             { return nil }
func (allLogic) describe() string                                          { return "all()" }

type noneLogic struct{}

func (noneLogic) policy(protoreflect.MessageDescriptor, fieldPath) inclusion { return excluded }
func (noneLogic) validate(protoreflect.MessageDescriptor) error              { return nil }
func (noneLogic) describe() string                                           { return "none()" }

type fieldNumbersLogic []protoreflect.FieldNumber

func (l fieldNumbersLogic) matches(root protoreflect.MessageDescriptor, fd protoreflect.FieldDescriptor) bool {
	if fd.ContainingMessage() != root {
		return false
	}
	for _, num := range l {
		if fd.Number() == num {
			return true
		}
	}
	return false
}

func (l fieldNumbersLogic) policy(root protoreflect.MessageDescriptor, path fieldPath) inclusion {
	for _, fd := range path {
		if l.matches(root, fd) {
			return includedFully
		}
	}
	// Deeper occurrences of the root type may still match.
	if len(path) > 0 && subtreeMayMatch(path[len(path)-1]) {
		return includedPartially
	}
	return excluded
}

// subtreeMayMatch reports whether the subtree under `fd` can contain further
// message fields. For map fields the entry type is an implementation detail;
// what matters is whether the map value is message-typed.
func subtreeMayMatch(fd protoreflect.FieldDescriptor) bool {
	if fd.IsMap() {
		return fd.MapValue().Message() != nil
	}
	return fd.Message() != nil
}

func (l fieldNumbersLogic) validate(root protoreflect.MessageDescriptor) error {
	for _, num := range l {
		if root.Fields().ByNumber(num) == nil {
			return errors.Fmt(
				"field scope %s: message type %s has no field number %d",
				l.describe(), root.FullName(), num)
		}
	}
	return nil
}

func (l fieldNumbersLogic) describe() string {
	parts := make([]string, len(l))
	for i, num := range l {
		parts[i] = fmt.Sprintf("%d", num)
	}
	return fmt.Sprintf("fields(%s)", strings.Join(parts, ", "))
}

type fieldDescriptorsLogic []protoreflect.FieldDescriptor

func (l fieldDescriptorsLogic) policy(root protoreflect.MessageDescriptor, path fieldPath) inclusion {
	for _, fd := range path {
		for _, target := range l {
			if fd == target {
				return includedFully
			}
		}
	}
	if len(path) > 0 && subtreeMayMatch(path[len(path)-1]) {
		return includedPartially
	}
	return excluded
}

// validate never fails: a descriptor which cannot occur in the tree is
// a silent no-op.
func (l fieldDescriptorsLogic) validate(protoreflect.MessageDescriptor) error { return nil }

func (l fieldDescriptorsLogic) describe() string {
	parts := make([]string, len(l))
	for i, fd := range l {
		parts[i] = string(fd.FullName())
	}
	return fmt.Sprintf("fieldDescriptors(%s)", strings.Join(parts, ", "))
}

// setNode is one node of the field tree recorded by FromSetFields.
type setNode struct {
	// full marks the entire subtree at this node as in scope.
	full bool

	children map[protoreflect.FieldNumber]*setNode
}

func (n *setNode) child(num protoreflect.FieldNumber) *setNode {
	c := n.children[num]
	if c == nil {
		c = &setNode{children: map[protoreflect.FieldNumber]*setNode{}}
		n.children[num] = c
	}
	return c
}

func (n *setNode) mergeSetFields(m protoreflect.Message) {
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		c := n.child(fd.Number())
		if c.full {
			return true
		}
		switch {
		case fd.IsMap():
			c.full = true
		case fd.IsList():
			if fd.Message() == nil {
				c.full = true
			} else {
				lst := v.List()
				for i := 0; i < lst.Len(); i++ {
					c.mergeSetFields(lst.Get(i).Message())
				}
			}
		case fd.Message() != nil:
			c.mergeSetFields(v.Message())
		default:
			c.full = true
		}
		return true
	})
}

type setFieldsLogic struct {
	desc protoreflect.MessageDescriptor // nil if built from no messages
	root *setNode
}

func (l *setFieldsLogic) policy(root protoreflect.MessageDescriptor, path fieldPath) inclusion {
	node := l.root
	for _, fd := range path {
		node = node.children[fd.Number()]
		if node == nil {
			return excluded
		}
		if node.full {
			return includedFully
		}
	}
	return includedPartially
}

func (l *setFieldsLogic) validate(root protoreflect.MessageDescriptor) error {
	if l.desc != nil && l.desc != root {
		return errors.Fmt(
			"field scope %s cannot be applied to message type %s",
			l.describe(), root.FullName())
	}
	return nil
}

func (l *setFieldsLogic) describe() string {
	if l.desc == nil {
		return "setFields()"
	}
	return fmt.Sprintf("setFields(%s)", l.desc.FullName())
}

type scopeOp int

const (
	opUnion scopeOp = iota
	opIntersect
	opSubtract
)

type binaryLogic struct {
	op   scopeOp
	a, b scopeLogic
}

func (l *binaryLogic) policy(root protoreflect.MessageDescriptor, path fieldPath) inclusion {
	switch l.op {
	case opUnion:
		a := l.a.policy(root, path)
		if a == includedFully {
			return a
		}
		if b := l.b.policy(root, path); b > a {
			return b
		}
		return a

	case opIntersect:
		a := l.a.policy(root, path)
		if a == excluded {
			return a
		}
		if b := l.b.policy(root, path); b < a {
			return b
		}
		return a

	case opSubtract:
		switch l.b.policy(root, path) {
		case includedFully:
			return excluded
		case excluded:
			return l.a.policy(root, path)
		default: // the subtrahend covers part of the subtree; recurse to decide
			if l.a.policy(root, path) == excluded {
				return excluded
			}
			return includedPartially
		}
	}
	panic(errors.Fmt("impossible: unknown scope op %d", l.op))
}

func (l *binaryLogic) validate(root protoreflect.MessageDescriptor) error {
	if err := l.a.validate(root); err != nil {
		return err
	}
	return l.b.validate(root)
}

func (l *binaryLogic) describe() string {
	name := [...]string{"union", "intersect", "subtract"}[l.op]
	return fmt.Sprintf("%s(%s, %s)", name, l.a.describe(), l.b.describe())
}
