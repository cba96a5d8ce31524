//
// Copyright 2022 FRAGATA COMPUTER SYSTEMS AG
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package core

import (
    "math"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func evalBits(t *testing.T, r *SysFuncRegistry, name string, args ...SysValue) uint64 {
    t.Helper()
    f := r.Lookup(name)
    require.NotNil(t, f, name)
    out, err := f.Eval(args)
    require.NoError(t, err)
    return out.Uint()
}

func TestSysFuncClog2(t *testing.T) {
    r := NewSysFuncRegistry()
    cases := []struct {
        in uint64
        out uint64
    }{
        {0, 0}, {1, 0}, {2, 1}, {3, 2}, {4, 2}, {5, 3}, {255, 8}, {256, 8}, {257, 9},
        {1024, 10},
    }
    for _, c := range cases {
        got := evalBits(t, r, "$clog2", BitsValue(NewLogicVector(64, c.in, 0)))
        assert.Equal(t, c.out, got, "$clog2(%d)", c.in)
    }
}

func TestSysFuncBitCounters(t *testing.T) {
    r := NewSysFuncRegistry()

    v := BitsValue(NewLogicVector(8, 0b1011, 0))
    assert.Equal(t, uint64(3), evalBits(t, r, "$countones", v))
    assert.Equal(t, uint64(0), evalBits(t, r, "$onehot", v))
    assert.Equal(t, uint64(0), evalBits(t, r, "$onehot0", v))
    assert.Equal(t, uint64(0), evalBits(t, r, "$isunknown", v))

    one := BitsValue(NewLogicVector(8, 0b0100, 0))
    assert.Equal(t, uint64(1), evalBits(t, r, "$onehot", one))
    assert.Equal(t, uint64(1), evalBits(t, r, "$onehot0", one))

    zero := BitsValue(NewLogicVector(8, 0, 0))
    assert.Equal(t, uint64(0), evalBits(t, r, "$onehot", zero))
    assert.Equal(t, uint64(1), evalBits(t, r, "$onehot0", zero))

    // Bit 1 is X, bit 2 is Z.
    unknown := BitsValue(NewLogicVector(4, 0b0011, 0b0110))
    assert.Equal(t, uint64(1), evalBits(t, r, "$isunknown", unknown))
}

func TestSysFuncCountBits(t *testing.T) {
    r := NewSysFuncRegistry()

    // Vector: bit0 = 1, bit1 = X, bit2 = Z, bit3 = 0.
    vec := BitsValue(NewLogicVector(4, 0b0011, 0b0110))
    ctl0 := BitsValue(NewLogicVector(1, 0, 0))
    ctl1 := BitsValue(NewLogicVector(1, 1, 0))
    ctlX := BitsValue(NewLogicVector(1, 1, 1))
    ctlZ := BitsValue(NewLogicVector(1, 0, 1))

    assert.Equal(t, uint64(1), evalBits(t, r, "$countbits", vec, ctl1))
    assert.Equal(t, uint64(1), evalBits(t, r, "$countbits", vec, ctl0))
    assert.Equal(t, uint64(2), evalBits(t, r, "$countbits", vec, ctlX, ctlZ))
    assert.Equal(t, uint64(4), evalBits(t, r, "$countbits", vec, ctl0, ctl1, ctlX, ctlZ))

    // Duplicate control bits are counted once.
    assert.Equal(t, uint64(1), evalBits(t, r, "$countbits", vec, ctl1, ctl1, ctl1))
}

func TestSysFuncRealMath(t *testing.T) {
    r := NewSysFuncRegistry()

    ln := r.Lookup("$ln")
    require.NotNil(t, ln)
    out, err := ln.Eval([]SysValue{RealValue(math.E)})
    require.NoError(t, err)
    assert.InDelta(t, 1.0, out.Real(), 1e-12)

    pow := r.Lookup("$pow")
    require.NotNil(t, pow)
    out, err = pow.Eval([]SysValue{RealValue(2), RealValue(10)})
    require.NoError(t, err)
    assert.InDelta(t, 1024.0, out.Real(), 1e-9)

    hypot := r.Lookup("$hypot")
    out, err = hypot.Eval([]SysValue{RealValue(3), RealValue(4)})
    require.NoError(t, err)
    assert.InDelta(t, 5.0, out.Real(), 1e-12)
}

func TestSysFuncArgCountErrors(t *testing.T) {
    r := NewSysFuncRegistry()

    _, err := r.Lookup("$clog2").Eval(nil)
    assert.Error(t, err)

    _, err = r.Lookup("$pow").Eval([]SysValue{RealValue(2)})
    assert.Error(t, err)

    _, err = r.Lookup("$countbits").Eval([]SysValue{BitsValue(NewLogicVector(4, 0, 0))})
    assert.Error(t, err)

    assert.Nil(t, r.Lookup("$nope"))
}
