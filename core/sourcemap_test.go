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
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestSourceManagerLineColumns(t *testing.T) {
    sm := NewSourceManager()
    start := sm.AssignText("test.sv", "abc\ndef\n\nxyz\n")

    assert.True(t, sm.IsFileLoc(start))
    assert.Equal(t, "test.sv", sm.FileName(start))
    assert.Equal(t, 1, sm.LineNumber(start))
    assert.Equal(t, 1, sm.ColumnNumber(start))

    d := start.Add(5) // 'e' on line 2
    assert.Equal(t, 2, sm.LineNumber(d))
    assert.Equal(t, 2, sm.ColumnNumber(d))

    x := start.Add(9) // 'x' on line 4
    assert.Equal(t, 4, sm.LineNumber(x))
    assert.Equal(t, 1, sm.ColumnNumber(x))
}

func TestSourceManagerExpansionChain(t *testing.T) {
    sm := NewSourceManager()
    fileLoc := sm.AssignText("test.sv", "some line of text\n")

    usage := SourceRange{fileLoc.Add(5), fileLoc.Add(9)}
    expLoc := sm.CreateExpansionLoc(fileLoc, usage, "M")

    assert.True(t, sm.IsMacroLoc(expLoc))
    assert.False(t, sm.IsMacroArgLoc(expLoc))
    assert.Equal(t, "M", sm.MacroName(expLoc))

    // Locations within the expansion map linearly back to spellings.
    inner := expLoc.Add(3)
    assert.Equal(t, fileLoc.Add(3), sm.SpellingLoc(inner))
    assert.Equal(t, usage, sm.ExpansionRange(inner))

    // A nested argument expansion chains through the first level.
    argLoc := sm.CreateMacroArgLoc(expLoc.Add(2), SourceRange{expLoc, expLoc.Add(1)})
    assert.True(t, sm.IsMacroArgLoc(argLoc))
    assert.Equal(t, fileLoc.Add(2), sm.FullyOriginalLoc(argLoc))
    assert.Equal(t, fileLoc.Add(5), sm.FullyExpandedLoc(argLoc))

    chain := ExpansionChain(sm, argLoc)
    require.Len(t, chain, 3)
    assert.True(t, chain[0].IsMacroArg)
    assert.Equal(t, "M", chain[1].MacroName)
    assert.True(t, sm.IsFileLoc(chain[2].Loc))
}

func TestSourceManagerLocationArithmetic(t *testing.T) {
    sm := NewSourceManager()
    loc := sm.AssignText("a.sv", "0123456789\n")

    a := loc.Add(3)
    b := loc.Add(8)
    assert.Equal(t, 5, b.Sub(a))
    assert.Equal(t, -5, a.Sub(b))

    assert.Panics(t, func() {
        other := sm.AssignText("b.sv", "x\n")
        _ = other.Sub(a)
    })
}

func TestSourceManagerLineDirectives(t *testing.T) {
    sm := NewSourceManager()
    // Three lines; a `line directive sits on line 1.
    start := sm.AssignText("test.sv", "`line 100 \"foo.svh\" 0\nsecond\nthird\n")

    sm.AddLineDirective(start, 100, "foo.svh", 0)

    second := start.Add(22) // start of line 2
    assert.Equal(t, 100, sm.LineNumber(second))
    assert.Equal(t, "foo.svh", sm.FileName(second))
    assert.Equal(t, 1, sm.ColumnNumber(second))

    third := start.Add(29) // start of line 3
    assert.Equal(t, 101, sm.LineNumber(third))

    // Locations before the directive are untouched.
    assert.Equal(t, 1, sm.LineNumber(start))
    assert.Equal(t, "test.sv", sm.FileName(start))
}
