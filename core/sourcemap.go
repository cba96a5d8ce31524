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

// Source manager: issues location handles into file buffers and synthesizes
// expansion buffers for macro expansions. An expansion buffer maps a run of
// spelling locations in a macro body (or argument) back to the usage range
// at the call site; diagnostic rendering walks these chains.

package core

import (
    "sort"

    "github.com/pkg/errors"
)

//
//    SourceLocation
//

type BufferID int32

type SourceLocation struct {
    buffer BufferID
    offset int32
}

// NoLocation is the zero value; it belongs to no buffer.
var NoLocation = SourceLocation{}

func (loc SourceLocation) Valid() bool {
    return (loc.buffer != 0)
}

func (loc SourceLocation) Buffer() BufferID {
    return loc.buffer
}

func (loc SourceLocation) Offset() int {
    return int(loc.offset)
}

func (loc SourceLocation) Add(delta int) SourceLocation {
    return SourceLocation{loc.buffer, loc.offset + int32(delta)}
}

// Subtraction is only meaningful within the same buffer.
func (loc SourceLocation) Sub(other SourceLocation) int {
    if loc.buffer != other.buffer {
        Unreachable()
    }
    return int(loc.offset - other.offset)
}

//
//    SourceRange
//

type SourceRange struct {
    start SourceLocation
    end SourceLocation
}

func (r SourceRange) Start() SourceLocation {
    return r.start
}

func (r SourceRange) End() SourceLocation {
    return r.end
}

//
//    SourceManager
//

type bufferKind int

const (
    bufferFile bufferKind = iota
    bufferExpansion
)

type lineDirective struct {
    physicalLine int    // 1-based line holding the `line directive
    lineBase int        // reported line number of the following physical line
    name string         // reported file name
    level int
}

type sourceBuffer struct {
    id BufferID
    kind bufferKind

    // File buffers
    name string
    contents []byte
    lineOffsets []int32 // Lazily built; offsets of line starts
    lineDirectives []lineDirective

    // Expansion buffers
    spelling SourceLocation
    usageRange SourceRange
    isMacroArg bool
    macroName string
}

type SourceManager struct {
    buffers []*sourceBuffer // 1-based; index 0 unused
}

func NewSourceManager() *SourceManager {
    sm := new(SourceManager)
    sm.buffers = make([]*sourceBuffer, 1)
    return sm
}

func (sm *SourceManager) addBuffer(buf *sourceBuffer) BufferID {
    buf.id = BufferID(len(sm.buffers))
    sm.buffers = append(sm.buffers, buf)
    return buf.id
}

func (sm *SourceManager) bufferAt(loc SourceLocation) *sourceBuffer {
    if !loc.Valid() || int(loc.buffer) >= len(sm.buffers) {
        Unreachable()
    }
    return sm.buffers[loc.buffer]
}

// Registers the given text as a file buffer and returns the location of its
// first byte. The contents are NUL-terminated internally for the scanners.
func (sm *SourceManager) AssignText(name string, text string) SourceLocation {
    buf := new(sourceBuffer)
    buf.kind = bufferFile
    buf.name = name
    buf.contents = nulTerminate([]byte(text))
    id := sm.addBuffer(buf)
    return SourceLocation{id, 0}
}

// Reads a file from disk and registers it as a file buffer.
func (sm *SourceManager) ReadSource(path string) (SourceLocation, error) {
    contents, err := readSourceFile(path)
    if err != nil {
        return NoLocation, errors.Wrapf(err, "cannot read source %s", path)
    }
    buf := new(sourceBuffer)
    buf.kind = bufferFile
    buf.name = path
    buf.contents = contents
    id := sm.addBuffer(buf)
    return SourceLocation{id, 0}, nil
}

// Returns the registered contents of a file buffer, without the trailing NUL.
func (sm *SourceManager) BufferText(loc SourceLocation) []byte {
    buf := sm.bufferAt(loc)
    if buf.kind != bufferFile {
        Unreachable()
    }
    n := len(buf.contents)
    return buf.contents[:n-1]
}

// Creates an expansion buffer mapping the run of spellings starting at
// 'spelling' to the given usage range. The returned location is the base of
// the new buffer; adding (tokenLoc - firstLoc) yields each token's
// expansion location.
func (sm *SourceManager) CreateExpansionLoc(spelling SourceLocation, usage SourceRange,
        macroName string) SourceLocation {
    buf := new(sourceBuffer)
    buf.kind = bufferExpansion
    buf.spelling = spelling
    buf.usageRange = usage
    buf.macroName = macroName
    id := sm.addBuffer(buf)
    return SourceLocation{id, 0}
}

// Like CreateExpansionLoc but marks the buffer as a macro argument
// expansion; argument expansions render as the argument site, without a
// note chain into the macro body.
func (sm *SourceManager) CreateMacroArgLoc(spelling SourceLocation,
        usage SourceRange) SourceLocation {
    buf := new(sourceBuffer)
    buf.kind = bufferExpansion
    buf.spelling = spelling
    buf.usageRange = usage
    buf.isMacroArg = true
    id := sm.addBuffer(buf)
    return SourceLocation{id, 0}
}

func (sm *SourceManager) IsFileLoc(loc SourceLocation) bool {
    return (sm.bufferAt(loc).kind == bufferFile)
}

func (sm *SourceManager) IsMacroLoc(loc SourceLocation) bool {
    return (sm.bufferAt(loc).kind == bufferExpansion)
}

func (sm *SourceManager) IsMacroArgLoc(loc SourceLocation) bool {
    buf := sm.bufferAt(loc)
    return (buf.kind == bufferExpansion && buf.isMacroArg)
}

// Name of the macro whose expansion owns this location, if any.
func (sm *SourceManager) MacroName(loc SourceLocation) string {
    buf := sm.bufferAt(loc)
    if buf.kind != bufferExpansion {
        return ""
    }
    return buf.macroName
}

// Maps a location in an expansion buffer one step back toward where the
// tokens were originally spelled.
func (sm *SourceManager) SpellingLoc(loc SourceLocation) SourceLocation {
    buf := sm.bufferAt(loc)
    if buf.kind != bufferExpansion {
        Unreachable()
    }
    return buf.spelling.Add(loc.Offset())
}

// The usage range this expansion buffer was created for.
func (sm *SourceManager) ExpansionRange(loc SourceLocation) SourceRange {
    buf := sm.bufferAt(loc)
    if buf.kind != bufferExpansion {
        Unreachable()
    }
    return buf.usageRange
}

// Walks the spelling chain until a file buffer is reached.
func (sm *SourceManager) FullyOriginalLoc(loc SourceLocation) SourceLocation {
    for sm.IsMacroLoc(loc) {
        loc = sm.SpellingLoc(loc)
    }
    return loc
}

// Walks the usage chain until a file buffer is reached; this is the
// top-level location at which the expansion producing 'loc' was triggered.
func (sm *SourceManager) FullyExpandedLoc(loc SourceLocation) SourceLocation {
    for sm.IsMacroLoc(loc) {
        loc = sm.ExpansionRange(loc).Start()
    }
    return loc
}

//
//    Line and column queries
//

func (buf *sourceBuffer) buildLineOffsets() {
    if buf.lineOffsets != nil {
        return
    }
    buf.lineOffsets = append(buf.lineOffsets, 0)
    for i, c := range buf.contents {
        if c == '\n' {
            buf.lineOffsets = append(buf.lineOffsets, int32(i+1))
        }
    }
}

// Raw physical line of an offset, 1-based.
func (buf *sourceBuffer) rawLineOf(offset int) int {
    buf.buildLineOffsets()
    n := sort.Search(len(buf.lineOffsets), func(i int) bool {
        return buf.lineOffsets[i] > int32(offset)
    })
    return n
}

func (buf *sourceBuffer) directiveAbove(rawLine int) *lineDirective {
    var found *lineDirective
    for i := range buf.lineDirectives {
        if buf.lineDirectives[i].physicalLine < rawLine {
            found = &buf.lineDirectives[i]
        }
    }
    return found
}

// Records a `line directive: lines after the directive's own physical line
// report from 'line' onward and belong to file 'name'.
func (sm *SourceManager) AddLineDirective(loc SourceLocation, line int, name string, level int) {
    loc = sm.FullyOriginalLoc(loc)
    buf := sm.bufferAt(loc)
    if buf.kind != bufferFile {
        return
    }
    buf.lineDirectives = append(buf.lineDirectives, lineDirective{
        physicalLine: buf.rawLineOf(loc.Offset()),
        lineBase: line,
        name: name,
        level: level,
    })
}

// File name a location spells back to, honoring `line directives.
func (sm *SourceManager) FileName(loc SourceLocation) string {
    loc = sm.FullyOriginalLoc(loc)
    buf := sm.bufferAt(loc)
    if dir := buf.directiveAbove(buf.rawLineOf(loc.Offset())); dir != nil {
        return dir.name
    }
    return buf.name
}

// 1-based line number, honoring `line directives.
func (sm *SourceManager) LineNumber(loc SourceLocation) int {
    loc = sm.FullyOriginalLoc(loc)
    buf := sm.bufferAt(loc)
    rawLine := buf.rawLineOf(loc.Offset())
    if dir := buf.directiveAbove(rawLine); dir != nil {
        return dir.lineBase + (rawLine - dir.physicalLine - 1)
    }
    return rawLine
}

// 1-based column number. Line directives never change columns.
func (sm *SourceManager) ColumnNumber(loc SourceLocation) int {
    loc = sm.FullyOriginalLoc(loc)
    buf := sm.bufferAt(loc)
    rawLine := buf.rawLineOf(loc.Offset())
    return loc.Offset() - int(buf.lineOffsets[rawLine-1]) + 1
}
