// Package types implements the compiler's type registry: an append-only
// interner that hands out a compact index for every type the checker and
// the core observe. Indices never move once assigned.
package types

import "fmt"

// Kind tags the shape of a registered type.
type Kind int

const (
	KindVoid Kind = iota
	KindBool
	KindI8
	KindI16
	KindI32
	KindI64
	KindU8
	KindU16
	KindU32
	KindU64
	KindF32
	KindF64
	KindString

	// SSA pseudo-types. These never appear in source-level declarations;
	// they exist only so SSA values can carry a type index for memory
	// effects, condition codes, and multi-value results.
	KindMem
	KindFlags
	KindTuple
	KindResults

	KindPointer
	KindSlice
	KindArray
	KindStruct
	KindEnum
	KindFunc
)

// ID is a stable, dense index into the registry. Never recycled.
type ID int

// Field describes one struct field: its name, its type, and its
// byte offset within the struct. Offsets are computed once at struct
// finalization and never recomputed.
type Field struct {
	Name   string
	Type   ID
	Offset int
}

// Variant describes one enum variant and its (possibly zero) payload type.
type Variant struct {
	Name    string
	Payload ID
}

type entry struct {
	kind Kind
	name string

	size  int
	align int

	elem ID // pointer/slice/array element

	arrayLen int

	fields []Field

	variants []Variant

	params []ID
	ret    ID
}

// Registry interns every type observed by the checker and handed to the
// core. It is append-only: constructors either return the index of an
// existing structurally-identical type or append a new entry. Once the
// checker finishes, the registry is treated as read-only by every
// downstream component.
type Registry struct {
	entries []entry
	interns map[string]ID

	Void   ID
	Bool   ID
	I8     ID
	I16    ID
	I32    ID
	I64    ID
	U8     ID
	U16    ID
	U32    ID
	U64    ID
	F32    ID
	F64    ID
	String ID

	Mem     ID
	Flags   ID
	Tuple   ID
	Results ID
}

// New creates a registry pre-populated with the fixed primitive and SSA
// pseudo-type indices.
func New() *Registry {
	r := &Registry{interns: make(map[string]ID)}

	prim := func(k Kind, name string, size, align int) ID {
		id := ID(len(r.entries))
		r.entries = append(r.entries, entry{kind: k, name: name, size: size, align: align})
		return id
	}

	r.Void = prim(KindVoid, "void", 0, 1)
	r.Bool = prim(KindBool, "bool", 1, 1)
	r.I8 = prim(KindI8, "i8", 1, 1)
	r.I16 = prim(KindI16, "i16", 2, 2)
	r.I32 = prim(KindI32, "i32", 4, 4)
	r.I64 = prim(KindI64, "i64", 8, 8)
	r.U8 = prim(KindU8, "u8", 1, 1)
	r.U16 = prim(KindU16, "u16", 2, 2)
	r.U32 = prim(KindU32, "u32", 4, 4)
	r.U64 = prim(KindU64, "u64", 8, 8)
	r.F32 = prim(KindF32, "f32", 4, 4)
	r.F64 = prim(KindF64, "f64", 8, 8)
	// size_of(string) = 16: a (ptr, len) pair, invariant per spec §3.1.
	r.String = prim(KindString, "string", 16, 8)

	r.Mem = prim(KindMem, "mem", 0, 1)
	r.Flags = prim(KindFlags, "flags", 0, 1)
	r.Tuple = prim(KindTuple, "tuple", 0, 1)
	r.Results = prim(KindResults, "results", 0, 1)

	return r
}

func (r *Registry) intern(key string, e entry) ID {
	if id, ok := r.interns[key]; ok {
		return id
	}
	id := ID(len(r.entries))
	r.entries = append(r.entries, e)
	r.interns[key] = id
	return id
}

// MakePointer returns the (interned) type `*T`.
func (r *Registry) MakePointer(elem ID) ID {
	key := fmt.Sprintf("ptr:%d", elem)
	return r.intern(key, entry{kind: KindPointer, size: 8, align: 8, elem: elem})
}

// MakeSlice returns the (interned) type `[]T`.
func (r *Registry) MakeSlice(elem ID) ID {
	key := fmt.Sprintf("slice:%d", elem)
	// A slice is a (ptr, len) pair, same layout as string.
	return r.intern(key, entry{kind: KindSlice, size: 16, align: 8, elem: elem})
}

// MakeArray returns the (interned) type `[N]T`.
func (r *Registry) MakeArray(elem ID, n int) ID {
	key := fmt.Sprintf("array:%d:%d", elem, n)
	elemSize := r.SizeOf(elem)
	elemAlign := r.AlignOf(elem)
	return r.intern(key, entry{
		kind:     KindArray,
		size:     elemSize * n,
		align:    elemAlign,
		elem:     elem,
		arrayLen: n,
	})
}

// MakeStruct finalizes field offsets and returns a fresh struct type.
// Struct types are never structurally deduplicated by field content —
// two structs with the same fields but different names are distinct
// types, matching source-level nominal typing.
func (r *Registry) MakeStruct(name string, fields []Field) ID {
	offset := 0
	align := 1
	laidOut := make([]Field, len(fields))
	for i, f := range fields {
		fa := r.AlignOf(f.Type)
		if fa > align {
			align = fa
		}
		offset = alignUp(offset, fa)
		laidOut[i] = Field{Name: f.Name, Type: f.Type, Offset: offset}
		offset += r.SizeOf(f.Type)
	}
	size := alignUp(offset, align)

	id := ID(len(r.entries))
	r.entries = append(r.entries, entry{
		kind: KindStruct, name: name, size: size, align: align, fields: laidOut,
	})
	return id
}

// MakeEnum returns a fresh tagged-union type: a word-sized tag plus the
// widest variant payload, aligned to the widest payload's alignment.
func (r *Registry) MakeEnum(name string, variants []Variant) ID {
	payloadSize := 0
	payloadAlign := 1
	for _, v := range variants {
		if v.Payload == 0 && v.Name == "" {
			continue
		}
		if s := r.SizeOf(v.Payload); s > payloadSize {
			payloadSize = s
		}
		if a := r.AlignOf(v.Payload); a > payloadAlign {
			payloadAlign = a
		}
	}
	tagSize := 8
	align := payloadAlign
	if tagSize > align {
		align = tagSize
	}
	size := alignUp(tagSize+payloadSize, align)

	id := ID(len(r.entries))
	r.entries = append(r.entries, entry{
		kind: KindEnum, name: name, size: size, align: align, variants: variants,
	})
	return id
}

// MakeFunc returns the (interned) type of a function value with the given
// parameter and return types.
func (r *Registry) MakeFunc(params []ID, ret ID) ID {
	key := fmt.Sprintf("func:%v:%d", params, ret)
	return r.intern(key, entry{kind: KindFunc, size: 8, align: 8, params: append([]ID(nil), params...), ret: ret})
}

// Kind returns the structural kind of t.
func (r *Registry) Kind(t ID) Kind { return r.entries[t].kind }

// Name returns the declared name of t, or "" for anonymous/primitive types.
func (r *Registry) Name(t ID) string { return r.entries[t].name }

// SizeOf returns the byte size of t.
func (r *Registry) SizeOf(t ID) int { return r.entries[t].size }

// AlignOf returns the byte alignment of t.
func (r *Registry) AlignOf(t ID) int { return r.entries[t].align }

// ElementOf returns the element type of a pointer, slice, or array.
func (r *Registry) ElementOf(t ID) ID { return r.entries[t].elem }

// ArrayLen returns the element count of an array type.
func (r *Registry) ArrayLen(t ID) int { return r.entries[t].arrayLen }

// Fields returns the field list of a struct type, in declaration order.
func (r *Registry) Fields(t ID) []Field { return r.entries[t].fields }

// FieldOf looks up a struct field by name, returning its index, byte
// offset, and type. ok is false if the struct has no such field.
func (r *Registry) FieldOf(t ID, name string) (index, offset int, ft ID, ok bool) {
	for i, f := range r.entries[t].fields {
		if f.Name == name {
			return i, f.Offset, f.Type, true
		}
	}
	return 0, 0, 0, false
}

// Params returns the parameter types of a function type.
func (r *Registry) Params(t ID) []ID { return r.entries[t].params }

// Ret returns the return type of a function type.
func (r *Registry) Ret(t ID) ID { return r.entries[t].ret }

// RegisterCountForABI returns how many physical registers a value of type
// t consumes when passed or returned according to the target ABI:
// string/slice = 2 (ptr, len); size <= 8 = 1; size <= 16 = 2; size > 16 = 1
// (a hidden pointer — the value itself is passed by reference).
func (r *Registry) RegisterCountForABI(t ID) int {
	k := r.Kind(t)
	if k == KindString || k == KindSlice {
		return 2
	}
	size := r.SizeOf(t)
	switch {
	case size <= 8:
		return 1
	case size <= 16:
		return 2
	default:
		return 1
	}
}

// IsAggregate reports whether t is larger than a single register and thus
// subject to the call-expansion and decomposition passes (§4.3.1, §4.3.2).
func (r *Registry) IsAggregate(t ID) bool {
	k := r.Kind(t)
	if k == KindString || k == KindSlice || k == KindStruct || k == KindArray || k == KindEnum {
		return r.SizeOf(t) > 8
	}
	return false
}

func alignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}
