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

// Built-in math system functions, evaluated over four-state integer and
// real values. Dispatch is a match on a tagged variant instead of a
// registry of polymorphic callables.

package core

import (
    "math"
    "math/bits"

    "github.com/pkg/errors"
)

//
//    LogicVector
//

// A small four-state integer: bit i is 0 when (a, b) = (0, 0), 1 when
// (1, 0), Z when (0, 1) and X when (1, 1).
type LogicVector struct {
    width int
    a uint64
    b uint64
}

func NewLogicVector(width int, a uint64, b uint64) LogicVector {
    if width < 1 || width > 64 {
        Unreachable()
    }
    mask := vecMask(width)
    return LogicVector{width: width, a: a & mask, b: b & mask}
}

func vecMask(width int) uint64 {
    if width == 64 {
        return ^uint64(0)
    }
    return (uint64(1) << width) - 1
}

func (v LogicVector) Width() int {
    return v.width
}

func (v LogicVector) CountOnes() int {
    return bits.OnesCount64(v.a &^ v.b)
}

func (v LogicVector) CountZeros() int {
    return bits.OnesCount64(^v.a &^ v.b & vecMask(v.width))
}

func (v LogicVector) CountXs() int {
    return bits.OnesCount64(v.a & v.b)
}

func (v LogicVector) CountZs() int {
    return bits.OnesCount64(^v.a & v.b & vecMask(v.width))
}

func (v LogicVector) HasUnknown() bool {
    return (v.b != 0)
}

// Two-state value with X and Z bits flattened to zero.
func (v LogicVector) Flatten() uint64 {
    return v.a &^ v.b
}

// Ceiling log2, as defined for $clog2: 0 for values 0 and 1.
func clog2(v uint64) int {
    if v <= 1 {
        return 0
    }
    return bits.Len64(v - 1)
}

//
//    SysValue
//

type SysValue struct {
    isReal bool
    real float64
    bits LogicVector
}

func RealValue(v float64) SysValue {
    return SysValue{isReal: true, real: v}
}

func BitsValue(v LogicVector) SysValue {
    return SysValue{bits: v}
}

func (v SysValue) AsReal() float64 {
    if v.isReal {
        return v.real
    }
    return float64(v.bits.Flatten())
}

func (v SysValue) AsBits() LogicVector {
    if v.isReal {
        return NewLogicVector(64, uint64(int64(v.real)), 0)
    }
    return v.bits
}

func (v SysValue) Real() float64 {
    return v.real
}

func (v SysValue) Uint() uint64 {
    return v.bits.Flatten()
}

//
//    SystemFunc
//

type SysFuncKind int

const (
    SF_REAL1 SysFuncKind = iota // One real argument
    SF_REAL2                    // Two real arguments
    SF_BIT_COUNTER              // Bit-vector predicates and counters
    SF_CLOG2
    SF_COUNT_BITS
)

type BitCounterKind int

const (
    BC_COUNT_ONES BitCounterKind = iota
    BC_ONEHOT
    BC_ONEHOT0
    BC_IS_UNKNOWN
)

type SystemFunc struct {
    name string
    kind SysFuncKind
    real1 func(float64) float64
    real2 func(float64, float64) float64
    counter BitCounterKind
}

func (f *SystemFunc) Name() string {
    return f.name
}

func (f *SystemFunc) argCount() (int, int) {
    switch f.kind {
    case SF_REAL1, SF_CLOG2:
        return 1, 1
    case SF_REAL2:
        return 2, 2
    case SF_BIT_COUNTER:
        return 1, 1
    case SF_COUNT_BITS:
        return 2, 64
    }
    Unreachable()
    return 0, 0
}

func (f *SystemFunc) Eval(args []SysValue) (SysValue, error) {
    minArgs, maxArgs := f.argCount()
    if len(args) < minArgs || len(args) > maxArgs {
        return SysValue{}, errors.Errorf("%s: expected between %d and %d arguments, got %d",
            f.name, minArgs, maxArgs, len(args))
    }

    switch f.kind {
    case SF_REAL1:
        return RealValue(f.real1(args[0].AsReal())), nil

    case SF_REAL2:
        return RealValue(f.real2(args[0].AsReal(), args[1].AsReal())), nil

    case SF_CLOG2:
        v := args[0].AsBits().Flatten()
        return BitsValue(NewLogicVector(32, uint64(clog2(v)), 0)), nil

    case SF_BIT_COUNTER:
        v := args[0].AsBits()
        var out uint64
        switch f.counter {
        case BC_COUNT_ONES:
            out = uint64(v.CountOnes())
        case BC_ONEHOT:
            if v.CountOnes() == 1 {
                out = 1
            }
        case BC_ONEHOT0:
            if v.CountOnes() <= 1 {
                out = 1
            }
        case BC_IS_UNKNOWN:
            if v.HasUnknown() {
                out = 1
            }
        }
        return BitsValue(NewLogicVector(32, out, 0)), nil

    case SF_COUNT_BITS:
        // The first argument is the vector; the rest select which bit
        // values to count. Each control argument contributes its LSB, and
        // each distinct bit value is counted at most once.
        v := args[0].AsBits()
        var seen [4]bool
        count := 0
        for _, arg := range args[1:] {
            ctl := arg.AsBits()
            a := ctl.a & 1
            b := ctl.b & 1
            switch {
            case a == 0 && b == 0:
                if !seen[0] {
                    count += v.CountZeros()
                    seen[0] = true
                }
            case a == 1 && b == 0:
                if !seen[1] {
                    count += v.CountOnes()
                    seen[1] = true
                }
            case a == 1 && b == 1:
                if !seen[2] {
                    count += v.CountXs()
                    seen[2] = true
                }
            default:
                if !seen[3] {
                    count += v.CountZs()
                    seen[3] = true
                }
            }
        }
        return BitsValue(NewLogicVector(32, uint64(count), 0)), nil
    }

    Unreachable()
    return SysValue{}, nil
}

//
//    SysFuncRegistry
//

type SysFuncRegistry struct {
    funcs map[string]*SystemFunc
}

func (r *SysFuncRegistry) Lookup(name string) *SystemFunc {
    return r.funcs[name]
}

func (r *SysFuncRegistry) add(f *SystemFunc) {
    r.funcs[f.name] = f
}

func NewSysFuncRegistry() *SysFuncRegistry {
    r := &SysFuncRegistry{funcs: make(map[string]*SystemFunc)}

    r.add(&SystemFunc{name: "$clog2", kind: SF_CLOG2})
    r.add(&SystemFunc{name: "$countbits", kind: SF_COUNT_BITS})
    r.add(&SystemFunc{name: "$countones", kind: SF_BIT_COUNTER, counter: BC_COUNT_ONES})
    r.add(&SystemFunc{name: "$onehot", kind: SF_BIT_COUNTER, counter: BC_ONEHOT})
    r.add(&SystemFunc{name: "$onehot0", kind: SF_BIT_COUNTER, counter: BC_ONEHOT0})
    r.add(&SystemFunc{name: "$isunknown", kind: SF_BIT_COUNTER, counter: BC_IS_UNKNOWN})

    real1 := func(name string, fn func(float64) float64) {
        r.add(&SystemFunc{name: name, kind: SF_REAL1, real1: fn})
    }
    real1("$ln", math.Log)
    real1("$log10", math.Log10)
    real1("$exp", math.Exp)
    real1("$sqrt", math.Sqrt)
    real1("$floor", math.Floor)
    real1("$ceil", math.Ceil)
    real1("$sin", math.Sin)
    real1("$cos", math.Cos)
    real1("$tan", math.Tan)
    real1("$asin", math.Asin)
    real1("$acos", math.Acos)
    real1("$atan", math.Atan)
    real1("$sinh", math.Sinh)
    real1("$cosh", math.Cosh)
    real1("$tanh", math.Tanh)
    real1("$asinh", math.Asinh)
    real1("$acosh", math.Acosh)
    real1("$atanh", math.Atanh)

    real2 := func(name string, fn func(float64, float64) float64) {
        r.add(&SystemFunc{name: name, kind: SF_REAL2, real2: fn})
    }
    real2("$pow", math.Pow)
    real2("$atan2", math.Atan2)
    real2("$hypot", math.Hypot)

    return r
}
