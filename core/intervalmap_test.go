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
    "math/rand"
    "sort"
    "testing"

    "github.com/google/go-cmp/cmp"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

type entry3 struct {
    Lo, Hi, Val int32
}

func sortEntries(entries []entry3) {
    sort.Slice(entries, func(i, j int) bool {
        a := entries[i]
        b := entries[j]
        if a.Lo != b.Lo {
            return a.Lo < b.Lo
        }
        if a.Hi != b.Hi {
            return a.Hi < b.Hi
        }
        return a.Val < b.Val
    })
}

func TestIntervalMapEmpty(t *testing.T) {
    m := NewIntervalMap[int32]()

    assert.True(t, m.Empty())
    begin := m.Begin()
    end := m.End()
    assert.False(t, begin.Valid())
    assert.True(t, begin.Eq(end))
    require.NoError(t, m.Verify())
}

func TestIntervalMapRootLeaf(t *testing.T) {
    m := NewIntervalMap[int32]()
    m.Insert(1, 10, 1)
    m.Insert(3, 7, 2)
    m.Insert(2, 12, 3)
    m.Insert(32, 42, 4)
    m.Insert(3, 6, 5)

    it := m.Begin()
    require.True(t, it.Valid())
    lo, hi := it.Bounds()
    assert.Equal(t, int32(1), lo)
    assert.Equal(t, int32(10), hi)
    assert.Equal(t, int32(1), it.Value())

    it.Next()
    lo, hi = it.Bounds()
    assert.Equal(t, [2]int32{2, 12}, [2]int32{lo, hi})

    it.Next()
    lo, hi = it.Bounds()
    assert.Equal(t, [2]int32{3, 6}, [2]int32{lo, hi})

    it.Next()
    lo, hi = it.Bounds()
    assert.Equal(t, [2]int32{3, 7}, [2]int32{lo, hi})

    it.Prev()
    lo, hi = it.Bounds()
    assert.Equal(t, [2]int32{3, 6}, [2]int32{lo, hi})

    it.Prev()
    lo, hi = it.Bounds()
    assert.Equal(t, [2]int32{2, 12}, [2]int32{lo, hi})
    assert.Equal(t, int32(3), it.Value())

    minLo, maxHi, ok := m.Bounds()
    require.True(t, ok)
    assert.Equal(t, [2]int32{1, 42}, [2]int32{minLo, maxHi})
    require.NoError(t, m.Verify())

    oit := m.Find(7, 20)
    require.True(t, oit.Valid())
    lo, hi = oit.Bounds()
    assert.Equal(t, [2]int32{1, 10}, [2]int32{lo, hi})
    assert.Equal(t, int32(1), oit.Value())

    oit.Next()
    require.True(t, oit.Valid())
    lo, hi = oit.Bounds()
    assert.Equal(t, [2]int32{2, 12}, [2]int32{lo, hi})

    oit.Next()
    lo, hi = oit.Bounds()
    assert.Equal(t, [2]int32{3, 7}, [2]int32{lo, hi})

    oit.Next()
    assert.False(t, oit.Valid())
}

func TestIntervalMapBranchingInserts(t *testing.T) {
    m := NewIntervalMap[int32]()

    var expected []entry3

    // Wrapper that catches everything overlapping the query below.
    insert := func(lo, hi, val int32) {
        if hi >= 200 && lo <= 250 {
            expected = append(expected, entry3{lo, hi, val})
        }
        m.Insert(lo, hi, val)
    }

    // Force branching.
    for i := int32(1); i < 1000; i++ {
        insert(10*i, 10*i+5, i)
        minLo, maxHi, ok := m.Bounds()
        require.True(t, ok)
        require.Equal(t, int32(10), minLo)
        require.Equal(t, 10*i+5, maxHi)
    }

    assert.False(t, m.Empty())

    it := m.Begin()
    for i := int32(1); i < 1000; i++ {
        require.True(t, it.Valid())
        lo, hi := it.Bounds()
        require.Equal(t, 10*i, lo)
        require.Equal(t, 10*i+5, hi)
        require.Equal(t, i, it.Value())
        it.Next()
    }
    assert.False(t, it.Valid())
    assert.True(t, it.Eq(m.End()))

    // Walk all the way back; the walk must mirror the forward one.
    for i := int32(999); i > 0; i-- {
        it.Prev()
        require.True(t, it.Valid())
        lo, hi := it.Bounds()
        require.Equal(t, 10*i, lo)
        require.Equal(t, 10*i+5, hi)
        require.Equal(t, i, it.Value())
    }
    assert.True(t, it.Eq(m.Begin()))

    // More intervals in the middle.
    for i := int32(0); i < 100; i++ {
        insert(11*i, 11*i+i, i)
    }

    // A bunch of pseudo-random intervals.
    rng := rand.New(rand.NewSource(1))
    for i := int32(0); i < 1000; i++ {
        lo := int32(rng.Intn(10000)) + 1
        hi := lo + int32(rng.Intn(int(10000-lo+1)))
        insert(lo, hi, i)
    }

    require.NoError(t, m.Verify())

    // The overlap query returns exactly the recorded set.
    var actual []entry3
    for oit := m.Find(200, 250); oit.Valid(); oit.Next() {
        lo, hi := oit.Bounds()
        actual = append(actual, entry3{lo, hi, oit.Value()})
    }

    sortEntries(expected)
    sortEntries(actual)
    if diff := cmp.Diff(expected, actual); diff != "" {
        t.Fatalf("overlap mismatch (-want +got):\n%s", diff)
    }
}

func TestIntervalMapDuplicates(t *testing.T) {
    m := NewIntervalMap[int]()
    for i := 0; i < 20; i++ {
        m.Insert(5, 9, i)
    }
    require.NoError(t, m.Verify())

    // Stable order by insertion sequence.
    i := 0
    for it := m.Begin(); it.Valid(); it.Next() {
        require.Equal(t, i, it.Value())
        i++
    }
    assert.Equal(t, 20, i)
}

func TestIntervalMapIteratorInvalidation(t *testing.T) {
    m := NewIntervalMap[int]()
    m.Insert(1, 2, 1)

    it := m.Begin()
    m.Insert(3, 4, 2)
    assert.Panics(t, func() { it.Next() })
}

func TestDistribute(t *testing.T) {
    var sizes [3]int
    node, offset := distribute(3, 10, 8, sizes[:], 4, false)
    assert.Equal(t, [3]int{4, 3, 3}, sizes)
    assert.Equal(t, 1, node)
    assert.Equal(t, 0, offset)

    var two [2]int
    node, offset = distribute(2, 8, 8, two[:], 8, true)
    assert.Equal(t, [2]int{5, 3}, two)
    assert.Equal(t, 1, node)
    assert.Equal(t, 3, offset)

    node, offset = distribute(2, 8, 8, two[:], 0, true)
    assert.Equal(t, 0, node)
    assert.Equal(t, 0, offset)
    assert.Equal(t, [2]int{4, 4}, two)
}
