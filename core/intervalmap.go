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

// Interval map: a B-tree shaped ordered map keyed by inclusive integer
// intervals [lo, hi], with overlap queries. Leaves store the (lo, hi,
// value) triples sorted by (lo, hi); branch nodes keep per-child subtree
// bounds (min lo, max hi) to prune overlap searches.
//
// Iterators become invalid after any mutating operation. This is enforced
// with a generation counter checked on every iterator move.

package core

import "fmt"

const (
    imLeafSize = 8
    imBranchSize = 16
)

//
//    interval
//

type interval struct {
    lo int32
    hi int32
}

func (iv interval) less(other interval) bool {
    return (iv.lo < other.lo || (iv.lo == other.lo && iv.hi < other.hi))
}

func (iv interval) overlaps(lo int32, hi int32) bool {
    return (iv.lo <= hi && iv.hi >= lo)
}

//
//    Nodes
//

type imLeaf[T any] struct {
    size int
    keys [imLeafSize]interval
    vals [imLeafSize]T
}

type imBranch[T any] struct {
    size int
    first [imBranchSize]interval // first key in each child's subtree
    maxHi [imBranchSize]int32    // max hi over each child's subtree
    child [imBranchSize]any
}

func imNodeSize[T any](node any) int {
    switch n := node.(type) {
    case *imLeaf[T]:
        return n.size
    case *imBranch[T]:
        return n.size
    }
    Unreachable()
    return 0
}

//
//    distribute
//

// Spreads numElements+grow elements across numNodes nodes of the given
// capacity with a left-leaning even split, and reports where 'position'
// lands as a (node index, offset in node) pair. The grow element is
// subtracted again so the sizes describe the existing elements only.
func distribute(numNodes int, numElements int, capacity int, newSizes []int,
        position int, grow bool) (int, int) {
    g := 0
    if grow {
        g = 1
    }
    if numElements+g > numNodes*capacity || position > numElements {
        Unreachable()
    }
    if numNodes == 0 {
        return 0, 0
    }

    perNode := (numElements + g) / numNodes
    extra := (numElements + g) % numNodes

    posNode := numNodes
    posOffset := 0
    sum := 0
    for n := 0; n != numNodes; n++ {
        newSizes[n] = perNode
        if n < extra {
            newSizes[n]++
        }
        sum += newSizes[n]
        if posNode == numNodes && sum > position {
            posNode = n
            posOffset = position - (sum - newSizes[n])
        }
    }

    if grow {
        if posNode == numNodes || newSizes[posNode] == 0 {
            Unreachable()
        }
        newSizes[posNode]--
    }

    return posNode, posOffset
}

//
//    IntervalMap
//

type IntervalMap[T any] struct {
    root any
    height int
    count int
    generation uint32
}

func NewIntervalMap[T any]() *IntervalMap[T] {
    return new(IntervalMap[T])
}

func (m *IntervalMap[T]) Empty() bool {
    return (m.root == nil)
}

func (m *IntervalMap[T]) Len() int {
    return m.count
}

// Smallest lo and largest hi over all live entries.
func (m *IntervalMap[T]) Bounds() (int32, int32, bool) {
    if m.root == nil {
        return 0, 0, false
    }
    switch n := m.root.(type) {
    case *imLeaf[T]:
        lo := n.keys[0].lo
        hi := n.keys[0].hi
        for i := 1; i < n.size; i++ {
            if n.keys[i].hi > hi {
                hi = n.keys[i].hi
            }
        }
        return lo, hi, true
    case *imBranch[T]:
        lo := n.first[0].lo
        hi := n.maxHi[0]
        for i := 1; i < n.size; i++ {
            if n.maxHi[i] > hi {
                hi = n.maxHi[i]
            }
        }
        return lo, hi, true
    }
    Unreachable()
    return 0, 0, false
}

//
//    Insertion
//

// Inserts [lo, hi] -> value. Duplicate intervals are permitted and keep
// their insertion order. Requires hi >= lo. Invalidates all iterators.
func (m *IntervalMap[T]) Insert(lo int32, hi int32, value T) {
    if hi < lo {
        Unreachable()
    }
    m.generation++
    m.count++
    key := interval{lo, hi}

    if m.root == nil {
        leaf := new(imLeaf[T])
        leaf.keys[0] = key
        leaf.vals[0] = value
        leaf.size = 1
        m.root = leaf
        m.height = 0
        return
    }

    split, sibling := m.insertRec(m.root, m.height, key, value)
    if split {
        // The root itself split; grow the tree by one level.
        newRoot := new(imBranch[T])
        newRoot.size = 2
        newRoot.child[0] = m.root
        newRoot.child[1] = sibling
        m.root = newRoot
        m.height++
    }
    m.recompute(m.root, m.height)
}

// Inserts into the subtree rooted at 'node'. Returns a new right sibling
// when the node had to split.
func (m *IntervalMap[T]) insertRec(node any, level int, key interval, value T) (bool, any) {
    if level == 0 {
        leaf := node.(*imLeaf[T])
        pos := leafUpperBound(leaf, key)

        if leaf.size < imLeafSize {
            leafInsertAt(leaf, pos, key, value)
            return false, nil
        }

        // Left-leaning even split across two leaves.
        var newSizes [2]int
        nodeIdx, offset := distribute(2, leaf.size, imLeafSize, newSizes[:], pos, true)

        sibling := new(imLeaf[T])
        for i := 0; i < newSizes[1]; i++ {
            sibling.keys[i] = leaf.keys[newSizes[0]+i]
            sibling.vals[i] = leaf.vals[newSizes[0]+i]
        }
        var zero T
        for i := newSizes[0]; i < leaf.size; i++ {
            leaf.vals[i] = zero
        }
        leaf.size = newSizes[0]
        sibling.size = newSizes[1]

        if nodeIdx == 0 {
            leafInsertAt(leaf, offset, key, value)
        } else {
            leafInsertAt(sibling, offset, key, value)
        }
        return true, sibling
    }

    branch := node.(*imBranch[T])
    idx := branchDescendIndex(branch, key)

    split, newChild := m.insertRec(branch.child[idx], level-1, key, value)
    if !split {
        return false, nil
    }

    // The child split; the new sibling goes right after it.
    pos := idx + 1
    if branch.size < imBranchSize {
        branchInsertAt(branch, pos, newChild)
        return false, nil
    }

    var newSizes [2]int
    nodeIdx, offset := distribute(2, branch.size, imBranchSize, newSizes[:], pos, true)

    sibling := new(imBranch[T])
    for i := 0; i < newSizes[1]; i++ {
        sibling.child[i] = branch.child[newSizes[0]+i]
    }
    for i := newSizes[0]; i < branch.size; i++ {
        branch.child[i] = nil
    }
    branch.size = newSizes[0]
    sibling.size = newSizes[1]

    if nodeIdx == 0 {
        branchInsertAt(branch, offset, newChild)
    } else {
        branchInsertAt(sibling, offset, newChild)
    }
    return true, sibling
}

func leafUpperBound[T any](leaf *imLeaf[T], key interval) int {
    pos := leaf.size
    for i := 0; i < leaf.size; i++ {
        if key.less(leaf.keys[i]) {
            pos = i
            break
        }
    }
    return pos
}

func leafInsertAt[T any](leaf *imLeaf[T], pos int, key interval, value T) {
    for i := leaf.size; i > pos; i-- {
        leaf.keys[i] = leaf.keys[i-1]
        leaf.vals[i] = leaf.vals[i-1]
    }
    leaf.keys[pos] = key
    leaf.vals[pos] = value
    leaf.size++
}

func branchInsertAt[T any](branch *imBranch[T], pos int, child any) {
    for i := branch.size; i > pos; i-- {
        branch.child[i] = branch.child[i-1]
        branch.first[i] = branch.first[i-1]
        branch.maxHi[i] = branch.maxHi[i-1]
    }
    branch.child[pos] = child
    branch.size++
}

// Rightmost child whose subtree can hold 'key' without breaking the global
// (lo, hi) order: the last child whose first key is <= key.
func branchDescendIndex[T any](branch *imBranch[T], key interval) int {
    idx := 0
    for i := 1; i < branch.size; i++ {
        if key.less(branch.first[i]) {
            break
        }
        idx = i
    }
    return idx
}

// Rebuilds the per-child subtree bounds after a structural change.
func (m *IntervalMap[T]) recompute(node any, level int) (interval, int32) {
    if level == 0 {
        leaf := node.(*imLeaf[T])
        maxHi := leaf.keys[0].hi
        for i := 1; i < leaf.size; i++ {
            if leaf.keys[i].hi > maxHi {
                maxHi = leaf.keys[i].hi
            }
        }
        return leaf.keys[0], maxHi
    }

    branch := node.(*imBranch[T])
    for i := 0; i < branch.size; i++ {
        branch.first[i], branch.maxHi[i] = m.recompute(branch.child[i], level-1)
    }
    maxHi := branch.maxHi[0]
    for i := 1; i < branch.size; i++ {
        if branch.maxHi[i] > maxHi {
            maxHi = branch.maxHi[i]
        }
    }
    return branch.first[0], maxHi
}

//
//    Path
//

// A root-to-leaf path of (node, node size, offset in node) entries; the
// iterator's backing store.
type pathEntry struct {
    node any
    size int
    offset int
}

//
//    Iterator
//

type Iterator[T any] struct {
    m *IntervalMap[T]
    path []pathEntry
    gen uint32
}

func (m *IntervalMap[T]) Begin() Iterator[T] {
    it := Iterator[T]{m: m, gen: m.generation}
    if m.root == nil {
        return it
    }
    it.path = append(it.path, pathEntry{m.root, imNodeSize[T](m.root), 0})
    it.descendLeftmost(0)
    return it
}

func (m *IntervalMap[T]) End() Iterator[T] {
    it := Iterator[T]{m: m, gen: m.generation}
    if m.root == nil {
        return it
    }
    size := imNodeSize[T](m.root)
    it.path = append(it.path, pathEntry{m.root, size, size})
    return it
}

func (it *Iterator[T]) checkGen() {
    if it.gen != it.m.generation {
        panic("IntervalMap iterator used after mutation")
    }
}

func (it *Iterator[T]) Valid() bool {
    return (len(it.path) != 0 && it.path[0].offset < it.path[0].size &&
        len(it.path) == it.m.height+1)
}

func (it *Iterator[T]) leaf() (*imLeaf[T], int) {
    last := it.path[len(it.path)-1]
    return last.node.(*imLeaf[T]), last.offset
}

func (it *Iterator[T]) Bounds() (int32, int32) {
    it.checkGen()
    leaf, offset := it.leaf()
    return leaf.keys[offset].lo, leaf.keys[offset].hi
}

func (it *Iterator[T]) Value() T {
    it.checkGen()
    leaf, offset := it.leaf()
    return leaf.vals[offset]
}

func (it *Iterator[T]) Eq(other Iterator[T]) bool {
    if it.Valid() != other.Valid() {
        return false
    }
    if !it.Valid() {
        return true
    }
    a := it.path[len(it.path)-1]
    b := other.path[len(other.path)-1]
    return (a.node == b.node && a.offset == b.offset)
}

// Fills the path below 'level' by always taking the leftmost child.
func (it *Iterator[T]) descendLeftmost(level int) {
    it.path = it.path[:level+1]
    for l := level; l < it.m.height; l++ {
        branch := it.path[l].node.(*imBranch[T])
        child := branch.child[it.path[l].offset]
        it.path = append(it.path, pathEntry{child, imNodeSize[T](child), 0})
    }
}

// Fills the path below 'level' by always taking the rightmost child.
func (it *Iterator[T]) descendRightmost(level int) {
    it.path = it.path[:level+1]
    for l := level; l < it.m.height; l++ {
        branch := it.path[l].node.(*imBranch[T])
        child := branch.child[it.path[l].offset]
        size := imNodeSize[T](child)
        it.path = append(it.path, pathEntry{child, size, size - 1})
    }
}

// Moves to the next entry in (lo, hi) order; climbs until a slot with room
// to the right is found, then descends leftmost.
func (it *Iterator[T]) Next() {
    it.checkGen()
    if !it.Valid() {
        return
    }

    l := len(it.path) - 1
    for l > 0 && it.path[l].offset == it.path[l].size-1 {
        l--
    }

    it.path[l].offset++
    if l == 0 && it.path[0].offset == it.path[0].size {
        // Ran off the very end.
        it.path = it.path[:1]
        return
    }
    it.descendLeftmost(l)
}

// Moves to the previous entry; the mirror image of Next. Stepping back
// from the end iterator lands on the last entry.
func (it *Iterator[T]) Prev() {
    it.checkGen()
    if len(it.path) == 0 {
        return
    }

    if it.path[0].offset >= it.path[0].size {
        // At the end; move to the last entry.
        it.path[0].offset = it.path[0].size - 1
        it.descendRightmost(0)
        return
    }

    l := len(it.path) - 1
    for l > 0 && it.path[l].offset == 0 {
        l--
    }
    if it.path[l].offset == 0 {
        return
    }

    it.path[l].offset--
    it.descendRightmost(l)
}

//
//    Overlap queries
//

type OverlapIterator[T any] struct {
    Iterator[T]
    searchLo int32
    searchHi int32
}

// Returns an iterator over all entries [a, b] with a <= hi and b >= lo, in
// sorted (lo, hi) order.
func (m *IntervalMap[T]) Find(lo int32, hi int32) OverlapIterator[T] {
    oi := OverlapIterator[T]{Iterator: Iterator[T]{m: m, gen: m.generation}}
    oi.searchLo = lo
    oi.searchHi = hi
    if m.root == nil {
        return oi
    }

    oi.path = append(oi.path, pathEntry{m.root, imNodeSize[T](m.root), 0})
    if !oi.descendFirstOverlap(0) {
        oi.setToEnd()
        return oi
    }
    oi.advanceToOverlap(false)
    return oi
}

// Descends from 'level' into the leftmost subtree whose bounds can overlap
// the search interval. Prunes on (subtreeMaxHi, subtreeMinLo).
func (oi *OverlapIterator[T]) descendFirstOverlap(level int) bool {
    for l := level; l < oi.m.height; l++ {
        branch := oi.path[l].node.(*imBranch[T])
        found := false
        for i := oi.path[l].offset; i < branch.size; i++ {
            if branch.first[i].lo > oi.searchHi {
                return false
            }
            if branch.maxHi[i] >= oi.searchLo {
                oi.path[l].offset = i
                child := branch.child[i]
                oi.path = append(oi.path, pathEntry{child, imNodeSize[T](child), 0})
                found = true
                break
            }
        }
        if !found {
            return false
        }
    }
    return true
}

func (oi *OverlapIterator[T]) setToEnd() {
    oi.path = oi.path[:1]
    oi.path[0].offset = oi.path[0].size
}

// Walks forward until the current entry overlaps the search interval.
// Entries whose lo has passed searchHi end the query.
func (oi *OverlapIterator[T]) advanceToOverlap(stepFirst bool) {
    if stepFirst {
        oi.Iterator.Next()
    }
    for oi.Iterator.Valid() {
        lo, hi := oi.Iterator.Bounds()
        if lo > oi.searchHi {
            break
        }
        if hi >= oi.searchLo {
            return
        }
        oi.Iterator.Next()
    }
    if len(oi.path) != 0 {
        oi.setToEnd()
    }
}

func (oi *OverlapIterator[T]) Next() {
    oi.advanceToOverlap(true)
}

//
//    Structural audit
//

// Checks tree shape, ordering, and branch bounds. Used by tests.
func (m *IntervalMap[T]) Verify() error {
    if m.root == nil {
        return nil
    }

    var prev *interval
    count := 0
    err := m.verifyRec(m.root, m.height, true, &prev, &count)
    if err != nil {
        return err
    }
    if count != m.count {
        return fmt.Errorf("interval map: %d entries reachable, %d recorded", count, m.count)
    }
    return nil
}

func (m *IntervalMap[T]) verifyRec(node any, level int, isRoot bool,
        prev **interval, count *int) error {
    switch n := node.(type) {
    case *imLeaf[T]:
        if level != 0 {
            return fmt.Errorf("interval map: leaf at level %d", level)
        }
        if n.size < 1 || n.size > imLeafSize {
            return fmt.Errorf("interval map: bad leaf size %d", n.size)
        }
        for i := 0; i < n.size; i++ {
            key := n.keys[i]
            if key.hi < key.lo {
                return fmt.Errorf("interval map: inverted interval [%d, %d]", key.lo, key.hi)
            }
            if *prev != nil && key.less(**prev) {
                return fmt.Errorf("interval map: order violation at [%d, %d]", key.lo, key.hi)
            }
            k := key
            *prev = &k
            *count++
        }
        return nil

    case *imBranch[T]:
        if level == 0 {
            return fmt.Errorf("interval map: branch at leaf level")
        }
        minSize := 1
        if isRoot {
            minSize = 2
        }
        if n.size < minSize || n.size > imBranchSize {
            return fmt.Errorf("interval map: bad branch size %d", n.size)
        }
        for i := 0; i < n.size; i++ {
            first, maxHi := m.subtreeBounds(n.child[i], level-1)
            if first != n.first[i] || maxHi != n.maxHi[i] {
                return fmt.Errorf("interval map: stale bounds at branch child %d", i)
            }
            if err := m.verifyRec(n.child[i], level-1, false, prev, count); err != nil {
                return err
            }
        }
        return nil
    }
    return fmt.Errorf("interval map: unknown node type")
}

func (m *IntervalMap[T]) subtreeBounds(node any, level int) (interval, int32) {
    if level == 0 {
        leaf := node.(*imLeaf[T])
        maxHi := leaf.keys[0].hi
        for i := 1; i < leaf.size; i++ {
            if leaf.keys[i].hi > maxHi {
                maxHi = leaf.keys[i].hi
            }
        }
        return leaf.keys[0], maxHi
    }
    branch := node.(*imBranch[T])
    maxHi := branch.maxHi[0]
    for i := 1; i < branch.size; i++ {
        if branch.maxHi[i] > maxHi {
            maxHi = branch.maxHi[i]
        }
    }
    return branch.first[0], maxHi
}
