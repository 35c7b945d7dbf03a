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

// Package prototruth implements structural equality and containment checking
// between protobuf messages, for powering test assertions.
//
// The entry point is [Config], an immutable value of comparison rules built
// with chained methods:
//
//	cfg := prototruth.Config{}.
//	  IgnoringRepeatedFieldOrder().
//	  IgnoringFields(3, 7).
//	  UsingDoubleTolerance(1e-9)
//
// A Config compares single message pairs ([Config.Compare],
// [Config.Equivalent]) and resolves containment queries between message
// collections ([Config.ContainsExactlyElementsIn], [Config.ContainsAllIn],
// [Config.ContainsAnyIn], [Config.ContainsNoneIn]). Because rules like
// IgnoringExtraRepeatedFieldElements make the equivalence predicate
// non-transitive, containment is resolved by an explicit maximum
// bipartite-matching search rather than any grouping shortcut.
//
// Comparison is schema-driven through protoreflect: scalar fields honor
// explicit presence unless absence is ignored, repeated fields compare by
// position or as multisets, map fields always compare by key, and nested
// messages recurse with the scope narrowed by the configured [FieldScope].
//
// For use with go.chromium.org/luci/common/testing/truth, the package
// provides comparison.Func constructors ([EqualMessage], [ContainExactly]
// and friends):
//
//	assert.That(t, got, prototruth.EqualMessage(want))
//
// Everything in this package is goroutine safe: configurations and scopes
// are immutable, and comparisons allocate only local state.
package prototruth
