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

func structOf(size, align int, members ...*Member) *Type {
	return &Type{Kind: TyStruct, Size: size, Align: align, Members: members}
}

func member(ty *Type, offset int) *Member {
	return &Member{Ty: ty, Offset: offset}
}

func TestClassifyAggregate(t *testing.T) {
	tests := []struct {
		name string
		ty   *Type
		want []abiClass
	}{
		{
			name: "two ints fit one eightbyte, INTEGER",
			ty:   structOf(8, 4, member(TypeInt, 0), member(TypeInt, 4)),
			want: []abiClass{clsInteger},
		},
		{
			name: "two doubles, both eightbytes SSE",
			ty:   structOf(16, 8, member(TypeDouble, 0), member(TypeDouble, 8)),
			want: []abiClass{clsSSE, clsSSE},
		},
		{
			name: "mixed int+double, first INTEGER second SSE",
			ty:   structOf(16, 8, member(TypeLong, 0), member(TypeDouble, 8)),
			want: []abiClass{clsInteger, clsSSE},
		},
		{
			name: "over 16 bytes is MEMORY",
			ty:   structOf(24, 8, member(TypeLong, 0), member(TypeLong, 8), member(TypeLong, 16)),
			want: []abiClass{clsMemory},
		},
		{
			name: "single float, one SSE eightbyte",
			ty:   structOf(4, 4, member(TypeFloat, 0)),
			want: []abiClass{clsSSE},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyAggregate(tt.ty)
			if len(got) != len(tt.want) {
				t.Fatalf("classifyAggregate(%s) = %v, want %v", tt.name, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("classifyAggregate(%s)[%d] = %v, want %v", tt.name, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestClassifyScalar(t *testing.T) {
	tests := []struct {
		name string
		ty   *Type
		want abiClass
	}{
		{"int is INTEGER", TypeInt, clsInteger},
		{"pointer is INTEGER", PointerTo(TypeInt), clsInteger},
		{"double is SSE", TypeDouble, clsSSE},
		{"float is SSE", TypeFloat, clsSSE},
		{"long double is MEMORY", TypeLongDouble, clsMemory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyScalar(tt.ty); got != tt.want {
				t.Errorf("classifyScalar(%s) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}
