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
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/testing/protocmp"

	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"

	"go.chromium.org/prototruth/internal/testmsgs"
)

func TestCompareBasics(t *testing.T) {
	t.Parallel()

	ftt.Run("default comparison", t, func(t *ftt.Test) {
		t.Run("identical messages", func(t *ftt.Test) {
			mustEquivalent(t, Config{}, `o_int: 5 o_string: "a"`, `o_int: 5 o_string: "a"`)
		})

		t.Run("empty messages", func(t *ftt.Test) {
			mustEquivalent(t, Config{}, ``, ``)
		})

		t.Run("scalar mismatch", func(t *ftt.Test) {
			mustDiffer(t, Config{}, `o_int: 5`, `o_int: 6`)
		})

		t.Run("enum and bytes", func(t *ftt.Test) {
			mustEquivalent(t, Config{}, `o_enum: ONE o_bytes: "xy"`, `o_enum: ONE o_bytes: "xy"`)
			mustDiffer(t, Config{}, `o_enum: ONE`, `o_enum: TWO`)
			mustDiffer(t, Config{}, `o_bytes: "xy"`, `o_bytes: "xz"`)
		})
	})

	ftt.Run("operand validation", t, func(t *ftt.Test) {
		foo := testmsgs.MustFoo(`o_int: 1`)

		t.Run("nil operands are errors", func(t *ftt.Test) {
			_, err := Config{}.Compare(nil, foo)
			assert.Loosely(t, err, should.ErrLike("actual message is nil"))
			_, err = Config{}.Compare(foo, nil)
			assert.Loosely(t, err, should.ErrLike("expected message is nil"))
		})

		t.Run("type mismatch is an error for Compare", func(t *ftt.Test) {
			_, err := Config{}.Compare(foo, testmsgs.MustBar(`o_int: 1`))
			assert.Loosely(t, err, should.ErrLike("mismatched message types"))
		})

		t.Run("but not for Equivalent", func(t *ftt.Test) {
			eq, err := Config{}.Equivalent(foo, testmsgs.MustBar(`o_int: 1`))
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, eq, should.BeFalse)
		})

		t.Run("nil operands are only equivalent to each other", func(t *ftt.Test) {
			eq, err := Config{}.Equivalent(nil, nil)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, eq, should.BeTrue)

			eq, err = Config{}.Equivalent(foo, nil)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, eq, should.BeFalse)
		})
	})
}

// The zero Config implements plain structural equality, so its verdicts must
// agree with protocmp's on messages the extra rules never touch.
func TestDefaultRulesMatchProtocmp(t *testing.T) {
	t.Parallel()

	ftt.Run("default config agrees with protocmp", t, func(t *ftt.Test) {
		cases := []struct{ actual, expected string }{
			{`o_int: 5 msg { o_string: "x" }`, `o_int: 5 msg { o_string: "x" }`},
			{`o_int: 0`, ``},
			{`msg {}`, ``},
			{`r_string: "a" r_string: "b"`, `r_string: "b" r_string: "a"`},
			{`map_int { key: "x" value: 1 }`, `map_int { key: "x" value: 1 }`},
			{`o_enum: ONE`, `o_enum: TWO`},
			{`o_bytes: "xy"`, `o_bytes: "xy"`},
		}
		for _, c := range cases {
			a, e := testmsgs.MustFoo(c.actual), testmsgs.MustFoo(c.expected)
			eq, err := Config{}.Equivalent(a, e)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, eq, should.Equal(cmp.Equal(a, e, protocmp.Transform())))
		}
	})
}

func TestComparePresence(t *testing.T) {
	t.Parallel()

	ftt.Run("explicit presence", t, func(t *ftt.Test) {
		t.Run("default value is not unset", func(t *ftt.Test) {
			mustDiffer(t, Config{}, `o_int: 0`, ``)
			mustDiffer(t, Config{}, ``, `o_string: ""`)
		})

		t.Run("IgnoringFieldAbsence equates them", func(t *ftt.Test) {
			cfg := Config{}.IgnoringFieldAbsence()
			mustEquivalent(t, cfg, `o_int: 0`, ``)
			mustEquivalent(t, cfg, ``, `o_string: ""`)
			mustDiffer(t, cfg, `o_int: 1`, ``)
		})

		t.Run("empty submessage is not unset", func(t *ftt.Test) {
			mustDiffer(t, Config{}, `msg {}`, ``)
			mustEquivalent(t, Config{}.IgnoringFieldAbsence(), `msg {}`, ``)
		})
	})

	ftt.Run("implicit presence (proto3)", t, func(t *ftt.Test) {
		eq, err := Config{}.Equivalent(testmsgs.MustP3(`num: 0 str: ""`), testmsgs.MustP3(``))
		assert.Loosely(t, err, should.BeNil)
		assert.Loosely(t, eq, should.BeTrue)

		eq, err = Config{}.Equivalent(testmsgs.MustP3(`num: 5`), testmsgs.MustP3(``))
		assert.Loosely(t, err, should.BeNil)
		assert.Loosely(t, eq, should.BeFalse)
	})

	ftt.Run("unknown fields", t, func(t *ftt.Test) {
		raw := protowire.AppendVarint(protowire.AppendTag(nil, 999, protowire.VarintType), 1)
		a := testmsgs.MustFoo(`o_int: 1`)
		a.ProtoReflect().SetUnknown(protoreflect.RawFields(raw))
		e := testmsgs.MustFoo(`o_int: 1`)

		t.Run("compared strictly by default", func(t *ftt.Test) {
			d, err := Config{}.Compare(a, e)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, d.Identical(), should.BeFalse)
			assert.Loosely(t, d.Report(), should.ContainSubstring("(unknown fields)"))
		})

		t.Run("ignored with IgnoringFieldAbsence", func(t *ftt.Test) {
			eq, err := Config{}.IgnoringFieldAbsence().Equivalent(a, e)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, eq, should.BeTrue)
		})
	})
}

func TestCompareFloats(t *testing.T) {
	t.Parallel()

	ftt.Run("without tolerance", t, func(t *ftt.Test) {
		mustEquivalent(t, Config{}, `o_double: 1.5`, `o_double: 1.5`)
		mustDiffer(t, Config{}, `o_double: 1.5`, `o_double: 1.5000001`)

		t.Run("NaN equals NaN bitwise", func(t *ftt.Test) {
			mustEquivalent(t, Config{}, `o_double: nan`, `o_double: nan`)
			mustEquivalent(t, Config{}, `o_float: nan`, `o_float: nan`)
		})

		t.Run("signed zero is significant", func(t *ftt.Test) {
			mustDiffer(t, Config{}, `o_double: -0.0`, `o_double: 0.0`)
		})
	})

	ftt.Run("with tolerance", t, func(t *ftt.Test) {
		cfg := Config{}.UsingDoubleTolerance(0.5)

		mustEquivalent(t, cfg, `o_double: 1.0`, `o_double: 1.4`)
		mustEquivalent(t, cfg, `o_double: 1.0`, `o_double: 1.5`)
		mustDiffer(t, cfg, `o_double: 1.0`, `o_double: 1.6`)

		t.Run("signed zeros fall within any tolerance", func(t *ftt.Test) {
			mustEquivalent(t, Config{}.UsingDoubleTolerance(0), `o_double: -0.0`, `o_double: 0.0`)
		})

		t.Run("non-finite operands never match via tolerance", func(t *ftt.Test) {
			mustDiffer(t, cfg, `o_double: inf`, `o_double: 1.0`)
			mustDiffer(t, cfg, `o_double: inf`, `o_double: -inf`)
			mustEquivalent(t, cfg, `o_double: inf`, `o_double: inf`)
			mustEquivalent(t, cfg, `o_double: nan`, `o_double: nan`)
		})

		t.Run("double tolerance does not touch float fields", func(t *ftt.Test) {
			mustDiffer(t, cfg, `o_float: 1.0`, `o_float: 1.4`)
			mustEquivalent(t, Config{}.UsingFloatTolerance(0.5), `o_float: 1.0`, `o_float: 1.4`)
		})
	})
}

func TestCompareNested(t *testing.T) {
	t.Parallel()

	ftt.Run("nested messages recurse", t, func(t *ftt.Test) {
		mustEquivalent(t, Config{}, `msg { o_int: 1 msg { o_string: "x" } }`, `msg { o_int: 1 msg { o_string: "x" } }`)
		mustDiffer(t, Config{}, `msg { msg { o_string: "x" } }`, `msg { msg { o_string: "y" } }`)
	})

	ftt.Run("rules apply at depth", t, func(t *ftt.Test) {
		cfg := Config{}.UsingDoubleTolerance(0.5)
		mustEquivalent(t, cfg, `msg { o_double: 1.0 }`, `msg { o_double: 1.3 }`)
	})
}

func TestCompareRepeated(t *testing.T) {
	t.Parallel()

	ftt.Run("strict order", t, func(t *ftt.Test) {
		mustEquivalent(t, Config{}, `r_string: "a" r_string: "b"`, `r_string: "a" r_string: "b"`)
		mustDiffer(t, Config{}, `r_string: "a" r_string: "b"`, `r_string: "b" r_string: "a"`)

		t.Run("length mismatch", func(t *ftt.Test) {
			d, err := Config{}.Compare(
				testmsgs.MustFoo(`r_string: "a"`),
				testmsgs.MustFoo(`r_string: "a" r_string: "b"`))
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, d.Identical(), should.BeFalse)
			assert.Loosely(t, d.Report(), should.ContainSubstring("repeated field length differs: actual 1, expected 2"))
		})
	})

	ftt.Run("IgnoringRepeatedFieldOrder", t, func(t *ftt.Test) {
		cfg := Config{}.IgnoringRepeatedFieldOrder()

		mustEquivalent(t, cfg, `r_string: "a" r_string: "b"`, `r_string: "b" r_string: "a"`)

		t.Run("multiplicity is respected", func(t *ftt.Test) {
			mustDiffer(t, cfg, `r_string: "a" r_string: "a"`, `r_string: "a"`)
			mustDiffer(t, cfg, `r_string: "a"`, `r_string: "a" r_string: "a"`)
		})

		t.Run("matching may require rerouting earlier picks", func(t *ftt.Test) {
			// With tolerance 0.5, actual 1.5 matches both expected values while
			// actual 0.75 matches only 1.0. A greedy pairing of 1.5 with 1.0
			// would strand both leftovers; the matching search recovers.
			mustEquivalent(t, cfg.UsingDoubleTolerance(0.5),
				`r_double: 1.5 r_double: 0.75`, `r_double: 1.0 r_double: 2.0`)
		})

		t.Run("message elements", func(t *ftt.Test) {
			mustEquivalent(t, cfg,
				`r_msg { o_int: 1 } r_msg { o_int: 2 }`,
				`r_msg { o_int: 2 } r_msg { o_int: 1 }`)
		})
	})

	ftt.Run("IgnoringExtraRepeatedFieldElements", t, func(t *ftt.Test) {
		cfg := Config{}.IgnoringExtraRepeatedFieldElements()

		t.Run("expected must be a subsequence", func(t *ftt.Test) {
			mustEquivalent(t, cfg, `r_string: "1" r_string: "2" r_string: "3"`, `r_string: "1" r_string: "3"`)
			mustDiffer(t, cfg, `r_string: "1" r_string: "2" r_string: "3"`, `r_string: "3" r_string: "1"`)
			mustDiffer(t, cfg, `r_string: "1"`, `r_string: "1" r_string: "2"`)
		})

		t.Run("combined with order ignoring: injective subset", func(t *ftt.Test) {
			both := cfg.IgnoringRepeatedFieldOrder()
			mustEquivalent(t, both, `r_string: "1" r_string: "2" r_string: "3"`, `r_string: "3" r_string: "1"`)
			mustDiffer(t, both, `r_string: "1" r_string: "2"`, `r_string: "1" r_string: "1"`)
		})
	})
}

func TestCompareMaps(t *testing.T) {
	t.Parallel()

	ftt.Run("maps compare by key", t, func(t *ftt.Test) {
		mustEquivalent(t, Config{},
			`map_int { key: "x" value: 1 } map_int { key: "y" value: 2 }`,
			`map_int { key: "y" value: 2 } map_int { key: "x" value: 1 }`)
		mustDiffer(t, Config{},
			`map_int { key: "x" value: 1 }`,
			`map_int { key: "x" value: 2 }`)
	})

	ftt.Run("key presence", t, func(t *ftt.Test) {
		t.Run("missing expected key", func(t *ftt.Test) {
			d, err := Config{}.Compare(
				testmsgs.MustFoo(`map_int { key: "x" value: 1 }`),
				testmsgs.MustFoo(`map_int { key: "x" value: 1 } map_int { key: "y" value: 2 }`))
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, d.Identical(), should.BeFalse)
			assert.Loosely(t, d.Report(), should.ContainSubstring(`map_int["y"]`))
		})

		t.Run("extra actual key", func(t *ftt.Test) {
			mustDiffer(t, Config{},
				`map_int { key: "x" value: 1 } map_int { key: "y" value: 2 }`,
				`map_int { key: "x" value: 1 }`)
		})

		t.Run("extra actual keys tolerated, missing keys are not", func(t *ftt.Test) {
			cfg := Config{}.IgnoringExtraRepeatedFieldElements()
			mustEquivalent(t, cfg,
				`map_int { key: "x" value: 1 } map_int { key: "y" value: 2 }`,
				`map_int { key: "x" value: 1 }`)
			mustDiffer(t, cfg,
				`map_int { key: "x" value: 1 }`,
				`map_int { key: "x" value: 1 } map_int { key: "y" value: 2 }`)
		})

		t.Run("order ignoring never applies to maps", func(t *ftt.Test) {
			// Reordering prototext entries is invisible; a key swap with
			// differing values stays a mismatch.
			mustDiffer(t, Config{}.IgnoringRepeatedFieldOrder(),
				`map_int { key: "x" value: 1 } map_int { key: "y" value: 2 }`,
				`map_int { key: "x" value: 2 } map_int { key: "y" value: 1 }`)
		})
	})

	ftt.Run("message values recurse", t, func(t *ftt.Test) {
		mustEquivalent(t, Config{},
			`map_msg { key: "k" value { o_int: 1 } }`,
			`map_msg { key: "k" value { o_int: 1 } }`)
		mustDiffer(t, Config{},
			`map_msg { key: "k" value { o_int: 1 } }`,
			`map_msg { key: "k" value { o_int: 2 } }`)

		t.Run("rules reach map values", func(t *ftt.Test) {
			mustEquivalent(t, Config{}.UsingDoubleTolerance(0.5),
				`map_msg { key: "k" value { o_double: 1.0 } }`,
				`map_msg { key: "k" value { o_double: 1.2 } }`)
		})
	})
}

func TestCompareScopes(t *testing.T) {
	t.Parallel()

	ftt.Run("IgnoringFields", t, func(t *ftt.Test) {
		cfg := Config{}.IgnoringFields(1)

		mustEquivalent(t, cfg, `o_int: 1 o_string: "a"`, `o_int: 2 o_string: "a"`)
		mustDiffer(t, cfg, `o_string: "a"`, `o_string: "b"`)

		t.Run("applies to nested occurrences of the root type", func(t *ftt.Test) {
			mustEquivalent(t, cfg, `msg { o_int: 1 }`, `msg { o_int: 2 }`)
			mustEquivalent(t, cfg, `r_msg { o_int: 1 }`, `r_msg { o_int: 2 }`)
			mustDiffer(t, cfg, `msg { o_string: "a" }`, `msg { o_string: "b" }`)
		})

		t.Run("ignoring a message field drops its whole subtree", func(t *ftt.Test) {
			mustEquivalent(t, Config{}.IgnoringFields(6), `msg { o_string: "a" }`, `msg { o_string: "b" }`)
		})

		t.Run("unknown field number fails at comparison time", func(t *ftt.Test) {
			_, err := Config{}.IgnoringFields(99).Compare(
				testmsgs.MustFoo(`o_int: 1`), testmsgs.MustFoo(`o_int: 1`))
			assert.Loosely(t, err, should.ErrLike("has no field number 99"))
		})
	})

	ftt.Run("IgnoringFieldDescriptors", t, func(t *ftt.Test) {
		oDouble := testmsgs.Foo.Fields().ByName("o_double")
		cfg := Config{}.IgnoringFieldDescriptors(oDouble)

		mustEquivalent(t, cfg, `o_double: 1.0`, `o_double: 2.0`)
		mustEquivalent(t, cfg, `msg { o_double: 1.0 }`, `msg { o_double: 2.0 }`)
		mustDiffer(t, cfg, `o_float: 1.0`, `o_float: 2.0`)

		t.Run("descriptors foreign to the tree are silent no-ops", func(t *ftt.Test) {
			p3num := testmsgs.P3.Fields().ByName("num")
			cfg := Config{}.IgnoringFieldDescriptors(p3num)
			mustEquivalent(t, cfg, `o_int: 1`, `o_int: 1`)
			mustDiffer(t, cfg, `o_int: 1`, `o_int: 2`)
		})
	})

	ftt.Run("WithPartialScope", t, func(t *ftt.Test) {
		cfg := Config{}.WithPartialScope(Fields(1))

		mustEquivalent(t, cfg, `o_int: 1 o_string: "a"`, `o_int: 1 o_string: "b"`)
		mustDiffer(t, cfg, `o_int: 1`, `o_int: 2`)

		t.Run("presence differences outside the scope are ignored", func(t *ftt.Test) {
			// `msg` itself is out of scope, but its subtree may hold in-scope
			// occurrences of field 1.
			mustEquivalent(t, cfg, `msg { o_string: "x" }`, ``)
			mustDiffer(t, cfg, `msg { o_int: 7 }`, ``)
		})

		t.Run("scalar-valued maps are fully out of scope", func(t *ftt.Test) {
			mustEquivalent(t, cfg,
				`map_int { key: "x" value: 1 }`,
				`map_int { key: "x" value: 2 }`)
		})

		t.Run("message-valued maps recurse into scope", func(t *ftt.Test) {
			mustDiffer(t, cfg,
				`map_msg { key: "k" value { o_int: 1 } }`,
				`map_msg { key: "k" value { o_int: 2 } }`)
			mustEquivalent(t, cfg,
				`map_msg { key: "k" value { o_string: "a" } }`,
				`map_msg { key: "k" value { o_string: "b" } }`)
		})
	})

	ftt.Run("ComparingExpectedFieldsOnly", t, func(t *ftt.Test) {
		cfg := Config{}.ComparingExpectedFieldsOnly()

		mustEquivalent(t, cfg, `o_int: 5 o_string: "zzz"`, `o_int: 5`)
		mustDiffer(t, cfg, `o_int: 6 o_string: "zzz"`, `o_int: 5`)

		t.Run("recursively set fields only", func(t *ftt.Test) {
			mustEquivalent(t, cfg,
				`msg { o_int: 1 o_string: "x" } o_double: 9`,
				`msg { o_int: 1 }`)
			mustDiffer(t, cfg,
				`msg { o_int: 2 o_string: "x" }`,
				`msg { o_int: 1 }`)
		})

		t.Run("expected unset fields in actual are fine, unset in actual are not", func(t *ftt.Test) {
			mustDiffer(t, cfg, ``, `o_int: 5`)
		})
	})
}

func TestDiffReport(t *testing.T) {
	t.Parallel()

	ftt.Run("Report", t, func(t *ftt.Test) {
		report := func(cfg Config, actual, expected string) string {
			d, err := cfg.Compare(testmsgs.MustFoo(actual), testmsgs.MustFoo(expected))
			assert.Loosely(t, err, should.BeNil)
			return d.Report()
		}

		t.Run("modified scalar", func(t *ftt.Test) {
			assert.Loosely(t, report(Config{}, `o_int: 3`, `o_int: 5`),
				should.ContainSubstring("modified: o_int: 5 -> 3"))
		})

		t.Run("nested labels are dotted paths", func(t *ftt.Test) {
			assert.Loosely(t, report(Config{}, `msg { o_string: "a" }`, `msg { o_string: "b" }`),
				should.ContainSubstring(`modified: msg.o_string: "b" -> "a"`))
		})

		t.Run("presence differences name the side", func(t *ftt.Test) {
			rep := report(Config{}, `o_int: 5`, ``)
			assert.Loosely(t, rep, should.ContainSubstring("added: o_int: 5"))
			assert.Loosely(t, rep, should.ContainSubstring("field presence differs"))

			rep = report(Config{}, ``, `o_int: 5`)
			assert.Loosely(t, rep, should.ContainSubstring("deleted: o_int: 5"))
		})

		t.Run("enum values render by name", func(t *ftt.Test) {
			assert.Loosely(t, report(Config{}, `o_enum: ONE`, `o_enum: TWO`),
				should.ContainSubstring("modified: o_enum: TWO -> ONE"))
		})

		t.Run("matched fields render unless mismatches-only", func(t *ftt.Test) {
			rep := report(Config{}, `o_int: 3 o_string: "x"`, `o_int: 5 o_string: "x"`)
			assert.Loosely(t, rep, should.ContainSubstring("matched: o_string"))

			rep = report(Config{}.ReportingMismatchesOnly(), `o_int: 3 o_string: "x"`, `o_int: 5 o_string: "x"`)
			assert.Loosely(t, rep, should.NotContainSubstring("matched:"))
			assert.Loosely(t, rep, should.ContainSubstring("modified: o_int"))
		})

		t.Run("ReportingMismatchesOnly never changes the verdict", func(t *ftt.Test) {
			mustDiffer(t, Config{}.ReportingMismatchesOnly(), `o_int: 3`, `o_int: 5`)
			mustEquivalent(t, Config{}.ReportingMismatchesOnly(), `o_int: 3`, `o_int: 3`)
		})

		t.Run("ignored fields are visible", func(t *ftt.Test) {
			assert.Loosely(t, report(Config{}.IgnoringFields(1), `o_int: 3`, `o_int: 5`),
				should.ContainSubstring("ignored: o_int"))
		})

		t.Run("identical empty messages render nothing", func(t *ftt.Test) {
			assert.Loosely(t, report(Config{}, ``, ``), should.BeEmpty)
		})
	})
}
