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

import "testing"

// P3: is_compatible is reflexive, symmetric, and a copy stays compatible
// with its source (spec.md section 8).
func TestIsCompatibleReflexiveSymmetricAndCopy(t *testing.T) {
	types := []*Type{TypeInt, TypeLong, PointerTo(TypeInt), ArrayOf(TypeChar, 4)}
	for _, ty := range types {
		if !IsCompatible(ty, ty) {
			t.Errorf("IsCompatible(%v, %v) = false, want true (reflexive)", ty.Kind, ty.Kind)
		}
	}

	a, b := TypeInt, PointerTo(TypeLong)
	if IsCompatible(a, b) != IsCompatible(b, a) {
		t.Errorf("IsCompatible is not symmetric for %v/%v", a.Kind, b.Kind)
	}

	v := CopyType(TypeInt)
	if !IsCompatible(TypeInt, v) {
		t.Error("IsCompatible(T, copy_type(T)) = false, want true")
	}
}

func TestIsCompatiblePointersAndArrays(t *testing.T) {
	tests := []struct {
		name string
		a, b *Type
		want bool
	}{
		{"pointer to same base", PointerTo(TypeInt), PointerTo(TypeInt), true},
		{"pointer to different base", PointerTo(TypeInt), PointerTo(TypeLong), false},
		{"arrays same length", ArrayOf(TypeInt, 3), ArrayOf(TypeInt, 3), true},
		{"arrays different length", ArrayOf(TypeInt, 3), ArrayOf(TypeInt, 4), false},
		{"incomplete array matches any length", ArrayOf(TypeInt, -1), ArrayOf(TypeInt, 5), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCompatible(tt.a, tt.b); got != tt.want {
				t.Errorf("IsCompatible(%s) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

// P5: after usual_arith_conv(a,b), both operands share one type with
// rank at least int (spec.md section 8).
func TestUsualArithConvPromotesAndUnifies(t *testing.T) {
	tests := []struct {
		name string
		a, b *Type
		want *Type
	}{
		{"int+int", TypeInt, TypeInt, TypeInt},
		{"int+long widens to long", TypeInt, TypeLong, TypeLong},
		{"int+double widens to double", TypeInt, TypeDouble, TypeDouble},
		{"char+char promotes to int", TypeChar, TypeChar, TypeInt},
		{"int+unsigned int same size favors unsigned", TypeInt, TypeUInt, TypeUInt},
		{"long double dominates", TypeDouble, TypeLongDouble, TypeLongDouble},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UsualArithConv(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("UsualArithConv(%s) = %v, want %v", tt.name, got.Kind, tt.want.Kind)
			}
			if integerRank(got) >= 0 && integerRank(got) < integerRank(TypeInt) {
				t.Errorf("UsualArithConv(%s) result rank below int", tt.name)
			}
		})
	}
}

// P4: struct-layout invariants — member offsets respect alignment, and
// the struct's own size is a multiple of its alignment (spec.md section 8).
func TestStructLayoutInvariants(t *testing.T) {
	members := []*Member{
		{Ty: TypeChar},
		{Ty: TypeInt},
		{Ty: TypeChar},
		{Ty: TypeLong},
	}
	size, align := StructLayout(members, false)
	if size%align != 0 {
		t.Errorf("StructLayout size=%d not a multiple of align=%d", size, align)
	}
	for _, m := range members {
		if !m.IsBitfield && m.Offset%m.Ty.Align != 0 {
			t.Errorf("member offset %d not aligned to %d", m.Offset, m.Ty.Align)
		}
	}
}

func TestStructLayoutPackedSuppressesPadding(t *testing.T) {
	members := []*Member{{Ty: TypeChar}, {Ty: TypeInt}}
	size, _ := StructLayout(members, true)
	if size != 5 {
		t.Errorf("packed struct {char,int} size = %d, want 5", size)
	}
	if members[1].Offset != 1 {
		t.Errorf("packed struct second member offset = %d, want 1", members[1].Offset)
	}
}
