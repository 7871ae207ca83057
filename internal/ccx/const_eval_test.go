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

func num(v int64) *Node { return NewNum(v, nil) }

func TestEvalArithmetic(t *testing.T) {
	tests := []struct {
		name string
		n    *Node
		want int64
	}{
		{"literal", num(7), 7},
		{"add", NewBinary(NdAdd, num(2), num(3), nil), 5},
		{"sub", NewBinary(NdSub, num(10), num(4), nil), 6},
		{"mul", NewBinary(NdMul, num(6), num(7), nil), 42},
		{"div", NewBinary(NdDiv, num(20), num(4), nil), 5},
		{"neg", NewUnary(NdNeg, num(5), nil), -5},
		{"nested", NewBinary(NdAdd, NewBinary(NdMul, num(2), num(3), nil), num(1), nil), 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Eval(tt.n); got != tt.want {
				t.Errorf("Eval(%s) = %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestIsConstExprRejectsVariables(t *testing.T) {
	v := NewVar(&Obj{}, nil)
	if IsConstExpr(v) {
		t.Error("IsConstExpr(variable reference) = true, want false")
	}
}

func TestIsConstExprAcceptsArithmetic(t *testing.T) {
	n := NewBinary(NdAdd, num(1), NewBinary(NdMul, num(2), num(3), nil), nil)
	if !IsConstExpr(n) {
		t.Error("IsConstExpr(1 + 2*3) = false, want true")
	}
	if got := Eval(n); got != 7 {
		t.Errorf("Eval(1 + 2*3) = %d, want 7", got)
	}
}

func TestEvalConditional(t *testing.T) {
	cond := &Node{Kind: NdCond, Cond: num(1), Then: num(11), Els: num(22)}
	if got := Eval(cond); got != 11 {
		t.Errorf("Eval(1 ? 11 : 22) = %d, want 11", got)
	}
	cond.Cond = num(0)
	if got := Eval(cond); got != 22 {
		t.Errorf("Eval(0 ? 11 : 22) = %d, want 22", got)
	}
}
