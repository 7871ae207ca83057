// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ccx

import (
	tok "github.com/gorse-io/ccx/internal/token"
	"github.com/samber/lo"
)

// TypeKind tags the variant shape of a Type (spec.md section 3).
type TypeKind int

const (
	TyVoid TypeKind = iota
	TyBool
	TyChar
	TyPChar // plain (unqualified signedness) char
	TyShort
	TyInt
	TyLong
	TyLongLong
	TyFloat
	TyDouble
	TyLongDouble
	TyEnum
	TyPtr
	TyArray
	TyVLA
	TyStruct
	TyUnion
	TyFunc
)

// LP64 sizes, spec.md section 6.
const (
	SizeChar       = 1
	SizeShort      = 2
	SizeInt        = 4
	SizeLong       = 8
	SizeLongLong   = 8
	SizeFloat      = 4
	SizeDouble     = 8
	SizeLongDouble = 16 // 10 meaningful bytes, padded; spec.md 9
	SizePtr        = 8
)

// Type is a tagged variant over the C type space. size<0 marks an
// incomplete type (spec.md invariant list, section 3).
type Type struct {
	Kind       TypeKind
	Size       int
	Align      int
	IsUnsigned bool
	IsPacked   bool
	IsFlexible bool
	IsAtomic   bool // rejected at parse time; tracked only for diagnostics
	Origin     *Type

	// Ptr / Array / VLA
	Base      *Type
	ArrayLen  int
	VLALenExp *Node  // expression computing the element count
	VLASizeVar *Obj  // hidden local holding the byte size at runtime

	// Struct / Union
	Tag     *tok.Token
	Members []*Member

	// Func
	ReturnTy    *Type
	Params      []*Type
	ParamNames  []*tok.Token
	IsVariadic  bool
	IsOldStyle  bool
	FuncScope   *Scope
	PreCalc     *Node // statement splicing VLA-parameter size computation

	// Enum
	EnumUnderlying *Type
}

var (
	TypeVoid       = &Type{Kind: TyVoid, Size: 0, Align: 1}
	TypeBool       = &Type{Kind: TyBool, Size: 1, Align: 1}
	TypeChar       = &Type{Kind: TyChar, Size: 1, Align: 1}
	TypePChar      = &Type{Kind: TyPChar, Size: 1, Align: 1}
	TypeUChar      = &Type{Kind: TyChar, Size: 1, Align: 1, IsUnsigned: true}
	TypeShort      = &Type{Kind: TyShort, Size: 2, Align: 2}
	TypeUShort     = &Type{Kind: TyShort, Size: 2, Align: 2, IsUnsigned: true}
	TypeInt        = &Type{Kind: TyInt, Size: 4, Align: 4}
	TypeUInt       = &Type{Kind: TyInt, Size: 4, Align: 4, IsUnsigned: true}
	TypeLong       = &Type{Kind: TyLong, Size: 8, Align: 8}
	TypeULong      = &Type{Kind: TyLong, Size: 8, Align: 8, IsUnsigned: true}
	TypeLongLong   = &Type{Kind: TyLongLong, Size: 8, Align: 8}
	TypeULongLong  = &Type{Kind: TyLongLong, Size: 8, Align: 8, IsUnsigned: true}
	TypeFloat      = &Type{Kind: TyFloat, Size: 4, Align: 4}
	TypeDouble     = &Type{Kind: TyDouble, Size: 8, Align: 8}
	TypeLongDouble = &Type{Kind: TyLongDouble, Size: 16, Align: 16}
)

// IsInteger reports whether t is one of the integer kinds (bool/char
// through longlong and enum).
func (t *Type) IsInteger() bool {
	switch t.Kind {
	case TyBool, TyChar, TyPChar, TyShort, TyInt, TyLong, TyLongLong, TyEnum:
		return true
	}
	return false
}

func (t *Type) IsFlonum() bool {
	switch t.Kind {
	case TyFloat, TyDouble, TyLongDouble:
		return true
	}
	return false
}

func (t *Type) IsNumeric() bool { return t.IsInteger() || t.IsFlonum() }

func (t *Type) IsArray() bool { return t.Kind == TyArray || t.Kind == TyVLA }

func (t *Type) IsPointerLike() bool { return t.Kind == TyPtr || t.IsArray() }

func (t *Type) IsIncomplete() bool { return t.Size < 0 }

func (t *Type) IsBitfieldSupporting() bool { return t.IsInteger() }

// rootOrigin walks the origin (typedef) chain to the underlying type, used
// by is_compatible so redeclarations through a typedef still unify
// (spec.md invariant list + P3).
func rootOrigin(t *Type) *Type {
	for t.Origin != nil {
		t = t.Origin
	}
	return t
}

// IsCompatible implements spec.md 4.2's is_compatible: recursive across
// pointers, functions and tagged redeclarations, honoring origin.
func IsCompatible(a, b *Type) bool {
	if a == b {
		return true
	}
	ra, rb := rootOrigin(a), rootOrigin(b)
	if ra == rb {
		return true
	}
	if ra.Kind != rb.Kind {
		// enum vs its underlying integer type, int vs an identically
		// sized/signed variant are handled by callers via usual
		// conversions; is_compatible itself is a strict kind match.
		return false
	}
	switch ra.Kind {
	case TyPtr:
		return IsCompatible(ra.Base, rb.Base)
	case TyArray:
		if ra.ArrayLen >= 0 && rb.ArrayLen >= 0 && ra.ArrayLen != rb.ArrayLen {
			return false
		}
		return IsCompatible(ra.Base, rb.Base)
	case TyFunc:
		if !IsCompatible(ra.ReturnTy, rb.ReturnTy) {
			return false
		}
		if ra.IsOldStyle || rb.IsOldStyle {
			return true
		}
		if len(ra.Params) != len(rb.Params) || ra.IsVariadic != rb.IsVariadic {
			return false
		}
		for i := range ra.Params {
			if !IsCompatible(ra.Params[i], rb.Params[i]) {
				return false
			}
		}
		return true
	case TyStruct, TyUnion:
		return ra.Tag != nil && rb.Tag != nil && ra.Tag.Lexeme == rb.Tag.Lexeme
	default:
		return ra.Size == rb.Size && ra.IsUnsigned == rb.IsUnsigned
	}
}

// CopyType returns an alias of t linked by Origin, the mechanism typedef
// and qualifier application use so the copy and the source stay
// compatible (spec.md 4.2, P3).
func CopyType(t *Type) *Type {
	c := *t
	c.Origin = t
	return &c
}

func PointerTo(base *Type) *Type {
	return &Type{Kind: TyPtr, Size: SizePtr, Align: SizePtr, Base: base}
}

func ArrayOf(base *Type, length int) *Type {
	size := -1
	if length >= 0 {
		size = base.Size * length
	}
	return &Type{Kind: TyArray, Size: size, Align: base.Align, Base: base, ArrayLen: length}
}

func VLAOf(base *Type, lenExp *Node) *Type {
	return &Type{Kind: TyVLA, Size: -1, Align: base.Align, Base: base, ArrayLen: -1, VLALenExp: lenExp}
}

// PtrDecay converts arrays to pointer-to-element and functions to
// pointer-to-function, per spec.md 4.2.
func PtrDecay(t *Type) *Type {
	switch {
	case t.IsArray():
		return PointerTo(t.Base)
	case t.Kind == TyFunc:
		return PointerTo(t)
	default:
		return t
	}
}

func FuncType(ret *Type, params []*Type, variadic, oldStyle bool) *Type {
	return &Type{Kind: TyFunc, Size: -1, Align: 1, ReturnTy: ret, Params: params, IsVariadic: variadic, IsOldStyle: oldStyle}
}

// integerRank implements spec.md 4.2's rank ladder:
// bool/char/short < int < long < longlong.
func integerRank(t *Type) int {
	switch t.Kind {
	case TyBool:
		return 0
	case TyChar, TyPChar:
		return 1
	case TyShort:
		return 2
	case TyInt, TyEnum:
		return 3
	case TyLong:
		return 4
	case TyLongLong:
		return 5
	default:
		return -1
	}
}

// PromoteInt implements integer promotion: anything narrower than int
// (including sub-int bitfields) promotes to int, or unsigned int if it
// would not otherwise fit; a bitfield exactly int-wide and unsigned
// promotes to unsigned int.
func PromoteInt(t *Type) *Type {
	if integerRank(t) < integerRank(TypeInt) {
		return TypeInt
	}
	if t.Kind == TyInt && t.IsUnsigned {
		return TypeUInt
	}
	return t
}

// promoteBitfield applies the bitfield-specific promotion rule from
// spec.md 4.2: a bitfield narrower than int promotes to int; one exactly
// int-wide and unsigned promotes to unsigned int.
func promoteBitfield(m *Member) *Type {
	underlying := m.Ty
	if m.BitWidth < SizeInt*8 {
		return TypeInt
	}
	if m.BitWidth == SizeInt*8 && underlying.IsUnsigned {
		return TypeUInt
	}
	return TypeInt
}

// UsualArithConv implements spec.md 4.2's usual arithmetic conversion.
func UsualArithConv(a, b *Type) *Type {
	if a.Kind == TyLongDouble || b.Kind == TyLongDouble {
		return TypeLongDouble
	}
	if a.Kind == TyDouble || b.Kind == TyDouble {
		return TypeDouble
	}
	if a.Kind == TyFloat || b.Kind == TyFloat {
		return TypeFloat
	}
	a = PromoteInt(a)
	b = PromoteInt(b)
	if a == b {
		return a
	}
	if a.Size != b.Size {
		if a.Size > b.Size {
			return a
		}
		return b
	}
	if a.IsUnsigned != b.IsUnsigned {
		if a.IsUnsigned {
			return a
		}
		return b
	}
	return a
}

// Member describes one field of a struct/union (spec.md section 3).
type Member struct {
	Name      *tok.Token
	Ty        *Type
	Offset    int
	IsBitfield bool
	BitOffset int
	BitWidth  int
	Idx       int
}

func (m *Member) Name_() string {
	if m.Name == nil {
		return ""
	}
	return m.Name.Lexeme
}

// StructLayout lays out non-packed and packed struct members following
// spec.md 4.2: align the cursor to each member's alignment; for bitfields,
// maintain a bit cursor and realign when a bitfield would straddle a
// storage unit of its declared type (packed structs suppress all
// alignment and pack bits/bytes back to back).
func StructLayout(members []*Member, packed bool) (size, align int) {
	bitOffset := 0 // cursor within the current storage unit, in bits
	byteOffset := 0
	align = 1
	flush := func(unitSize int) {
		if bitOffset > 0 {
			byteOffset += (bitOffset + 7) / 8
			bitOffset = 0
		}
		_ = unitSize
	}
	for _, m := range members {
		if m.IsBitfield {
			unitBits := m.Ty.Size * 8
			if packed {
				unitBits = 0
			}
			if m.BitWidth == 0 {
				flush(m.Ty.Size)
				if !packed {
					byteOffset = alignTo(byteOffset, m.Ty.Align)
				}
				continue
			}
			if !packed {
				if bitOffset+m.BitWidth > unitBits {
					flush(m.Ty.Size)
					byteOffset = alignTo(byteOffset, m.Ty.Align)
				}
				if bitOffset == 0 {
					align = maxInt(align, m.Ty.Align)
				}
			}
			m.Offset = byteOffset
			m.BitOffset = bitOffset
			bitOffset += m.BitWidth
			continue
		}
		flush(0)
		if !packed {
			byteOffset = alignTo(byteOffset, m.Ty.Align)
			align = maxInt(align, m.Ty.Align)
		}
		m.Offset = byteOffset
		byteOffset += m.Ty.Size
	}
	flush(0)
	if packed {
		align = 1
		size = byteOffset
	} else {
		size = alignTo(byteOffset, align)
	}
	return size, align
}

// UnionLayout implements spec.md 4.2: size/align are the max over members.
func UnionLayout(members []*Member) (size, align int) {
	for _, m := range members {
		size = maxInt(size, m.Ty.Size)
		align = maxInt(align, m.Ty.Align)
	}
	return size, align
}

// MembersAlign reports the maximum alignment across members (1 for no
// members).
func MembersAlign(members []*Member) int {
	return lo.Reduce(members, func(acc int, m *Member, _ int) int {
		return maxInt(acc, m.Ty.Align)
	}, 1)
}

func alignTo(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// EnumUnderlyingType picks the narrowest standard integer type that holds
// every observed enumerator value, per spec.md 4.2: signed picks int
// unless a value needs 64 bits or is below INT32_MIN; unsigned-only picks
// unsigned int or unsigned long by range.
func EnumUnderlyingType(values []int64, anyNegative bool) *Type {
	const int32Min, int32Max = -2147483648, 2147483647
	const uint32Max = 4294967295
	if anyNegative {
		for _, v := range values {
			if v < int32Min || v > int32Max {
				return TypeLong
			}
		}
		return TypeInt
	}
	for _, v := range values {
		if v > uint32Max || v < 0 {
			return TypeULong
		}
	}
	return TypeUInt
}
