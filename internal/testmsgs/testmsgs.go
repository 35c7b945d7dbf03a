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

// Package testmsgs provides dynamic protobuf message types for tests.
//
// The types are constructed at runtime from descriptor protos, so the test
// suite needs no generated code and no protoc step. Foo is a proto2 message
// with explicit field presence, recursion, repeated, map, enum, bytes and
// floating point fields; P3 is a proto3 message with implicit presence; Bar
// shares Foo's field shape under a different type, for type-mismatch tests.
package testmsgs

import (
	"fmt"

	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

const fooFile = `
name: "prototruth/testmsgs/foo.proto"
package: "prototruth.testmsgs"
syntax: "proto2"
message_type {
  name: "Foo"
  field { name: "o_int" number: 1 label: LABEL_OPTIONAL type: TYPE_INT32 }
  field { name: "r_string" number: 2 label: LABEL_REPEATED type: TYPE_STRING }
  field { name: "o_string" number: 3 label: LABEL_OPTIONAL type: TYPE_STRING }
  field { name: "o_double" number: 4 label: LABEL_OPTIONAL type: TYPE_DOUBLE }
  field { name: "o_float" number: 5 label: LABEL_OPTIONAL type: TYPE_FLOAT }
  field {
    name: "msg" number: 6 label: LABEL_OPTIONAL type: TYPE_MESSAGE
    type_name: ".prototruth.testmsgs.Foo"
  }
  field {
    name: "r_msg" number: 7 label: LABEL_REPEATED type: TYPE_MESSAGE
    type_name: ".prototruth.testmsgs.Foo"
  }
  field {
    name: "map_int" number: 8 label: LABEL_REPEATED type: TYPE_MESSAGE
    type_name: ".prototruth.testmsgs.Foo.MapIntEntry"
  }
  field {
    name: "map_msg" number: 9 label: LABEL_REPEATED type: TYPE_MESSAGE
    type_name: ".prototruth.testmsgs.Foo.MapMsgEntry"
  }
  field {
    name: "o_enum" number: 10 label: LABEL_OPTIONAL type: TYPE_ENUM
    type_name: ".prototruth.testmsgs.Enum"
  }
  field { name: "o_bytes" number: 11 label: LABEL_OPTIONAL type: TYPE_BYTES }
  field { name: "r_double" number: 12 label: LABEL_REPEATED type: TYPE_DOUBLE }
  nested_type {
    name: "MapIntEntry"
    options { map_entry: true }
    field { name: "key" number: 1 label: LABEL_OPTIONAL type: TYPE_STRING }
    field { name: "value" number: 2 label: LABEL_OPTIONAL type: TYPE_INT32 }
  }
  nested_type {
    name: "MapMsgEntry"
    options { map_entry: true }
    field { name: "key" number: 1 label: LABEL_OPTIONAL type: TYPE_STRING }
    field {
      name: "value" number: 2 label: LABEL_OPTIONAL type: TYPE_MESSAGE
      type_name: ".prototruth.testmsgs.Foo"
    }
  }
}
message_type {
  name: "Bar"
  field { name: "o_int" number: 1 label: LABEL_OPTIONAL type: TYPE_INT32 }
  field { name: "r_string" number: 2 label: LABEL_REPEATED type: TYPE_STRING }
}
enum_type {
  name: "Enum"
  value { name: "DEFAULT" number: 0 }
  value { name: "ONE" number: 1 }
  value { name: "TWO" number: 2 }
}
`

const p3File = `
name: "prototruth/testmsgs/p3.proto"
package: "prototruth.testmsgs"
syntax: "proto3"
message_type {
  name: "P3"
  field { name: "num" number: 1 label: LABEL_OPTIONAL type: TYPE_INT32 }
  field { name: "str" number: 2 label: LABEL_OPTIONAL type: TYPE_STRING }
  field { name: "nums" number: 3 label: LABEL_REPEATED type: TYPE_INT32 }
}
`

// Message descriptors of the test types.
var (
	Foo protoreflect.MessageDescriptor
	Bar protoreflect.MessageDescriptor
	P3  protoreflect.MessageDescriptor
)

func init() {
	fooFd := mustFile(fooFile)
	Foo = fooFd.Messages().ByName("Foo")
	Bar = fooFd.Messages().ByName("Bar")
	P3 = mustFile(p3File).Messages().ByName("P3")
}

func mustFile(text string) protoreflect.FileDescriptor {
	fdp := &descriptorpb.FileDescriptorProto{}
	if err := prototext.Unmarshal([]byte(text), fdp); err != nil {
		panic(fmt.Errorf("testmsgs: bad descriptor text: %w", err))
	}
	fd, err := protodesc.NewFile(fdp, nil)
	if err != nil {
		panic(fmt.Errorf("testmsgs: %w", err))
	}
	return fd
}

func mustParse(desc protoreflect.MessageDescriptor, text string) proto.Message {
	m := dynamicpb.NewMessage(desc)
	if err := prototext.Unmarshal([]byte(text), m); err != nil {
		panic(fmt.Errorf("testmsgs: bad %s text %q: %w", desc.Name(), text, err))
	}
	return m
}

// MustFoo parses a Foo from prototext, panicking on error.
func MustFoo(text string) proto.Message { return mustParse(Foo, text) }

// MustBar parses a Bar from prototext, panicking on error.
func MustBar(text string) proto.Message { return mustParse(Bar, text) }

// MustP3 parses a P3 from prototext, panicking on error.
func MustP3(text string) proto.Message { return mustParse(P3, text) }

// Foos parses several Foo messages from prototext.
func Foos(texts ...string) []proto.Message {
	out := make([]proto.Message, len(texts))
	for i, text := range texts {
		out[i] = MustFoo(text)
	}
	return out
}
