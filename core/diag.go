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

// Diagnostics are collected, not thrown: every error aborts at most the
// current directive and the preprocessor continues with the next token.

package core

import "fmt"

//
//    DiagCode
//

type DiagCode int

const (
    DG_UNKNOWN_DIRECTIVE DiagCode = iota
    DG_UNDEFINE_BUILTIN_DIRECTIVE
    DG_EXPECTED_IDENTIFIER
    DG_EXPECTED_MACRO_ARGS
    DG_EXPECTED_MACRO_STRINGIFY_END
    DG_IGNORED_MACRO_PASTE
    DG_MISPLACED_DIRECTIVE_CHAR
    DG_NOT_ENOUGH_MACRO_ARGS
    DG_TOO_MANY_ACTUAL_MACRO_ARGS
    DG_RECURSIVE_MACRO
    DG_UNBALANCED_MACRO_ARG_DIMS
    DG_COULD_NOT_OPEN_INCLUDE_FILE
    DG_EXPECTED_INCLUDE_FILE_NAME
    DG_INVALID_LINE_DIRECTIVE
    DG_UNEXPECTED_CONDITIONAL_DIRECTIVE
    DG_EXPECTED_STRING_LITERAL
    DG_UNRECOGNIZED_KEYWORD_VERSION
    DG_MISMATCHED_END_KEYWORDS_DIRECTIVE
    DG_REDEFINED_MACRO
    DG_EXPECTED_END_OF_DIRECTIVE
    DG_EXPECTED_TOKEN
)

type diagInfo struct {
    name string
    message string
    warning bool
}

var diagTable = map[DiagCode]diagInfo{
    DG_UNKNOWN_DIRECTIVE:                 {"UnknownDirective", "unknown macro or compiler directive '%s'", false},
    DG_UNDEFINE_BUILTIN_DIRECTIVE:        {"UndefineBuiltinDirective", "cannot undefine built-in directive", false},
    DG_EXPECTED_IDENTIFIER:               {"ExpectedIdentifier", "expected identifier", false},
    DG_EXPECTED_MACRO_ARGS:               {"ExpectedMacroArgs", "expected macro arguments", false},
    DG_EXPECTED_MACRO_STRINGIFY_END:      {"ExpectedMacroStringifyEnd", "expected closing `\" to end stringification", false},
    DG_IGNORED_MACRO_PASTE:               {"IgnoredMacroPaste", "paste token is pointless because it is adjacent to whitespace", true},
    DG_MISPLACED_DIRECTIVE_CHAR:          {"MisplacedDirectiveChar", "misplaced ` character", false},
    DG_NOT_ENOUGH_MACRO_ARGS:             {"NotEnoughMacroArgs", "not enough arguments provided to macro", false},
    DG_TOO_MANY_ACTUAL_MACRO_ARGS:        {"TooManyActualMacroArgs", "too many arguments provided to macro", false},
    DG_RECURSIVE_MACRO:                   {"RecursiveMacro", "macro '%s' is recursively defined", false},
    DG_UNBALANCED_MACRO_ARG_DIMS:         {"UnbalancedMacroArgDims", "unbalanced '%s' in macro argument", false},
    DG_COULD_NOT_OPEN_INCLUDE_FILE:       {"CouldNotOpenIncludeFile", "could not open include file '%s'", false},
    DG_EXPECTED_INCLUDE_FILE_NAME:        {"ExpectedIncludeFileName", "expected an include file name", false},
    DG_INVALID_LINE_DIRECTIVE:            {"InvalidLineDirective", "invalid `line directive", false},
    DG_UNEXPECTED_CONDITIONAL_DIRECTIVE:  {"UnexpectedConditionalDirective", "unexpected conditional directive", false},
    DG_EXPECTED_STRING_LITERAL:           {"ExpectedStringLiteral", "expected string literal", false},
    DG_UNRECOGNIZED_KEYWORD_VERSION:      {"UnrecognizedKeywordVersion", "unrecognized keyword version '%s'", false},
    DG_MISMATCHED_END_KEYWORDS_DIRECTIVE: {"MismatchedEndKeywordsDirective", "no matching `begin_keywords directive", false},
    DG_REDEFINED_MACRO:                   {"RedefinedMacro", "macro '%s' redefined with a different body", true},
    DG_EXPECTED_END_OF_DIRECTIVE:         {"ExpectedEndOfDirective", "expected end of directive; extra tokens ignored", true},
    DG_EXPECTED_TOKEN:                    {"ExpectedToken", "expected '%s'", false},
}

func (code DiagCode) Name() string {
    return diagTable[code].name
}

func (code DiagCode) IsWarning() bool {
    return diagTable[code].warning
}

//
//    Diagnostic
//

type Diagnostic struct {
    Code DiagCode
    Loc SourceLocation
    Args []interface{}
}

func (d Diagnostic) Message() string {
    return fmt.Sprintf(diagTable[d.Code].message, d.Args...)
}

// Renders "file:line:col: severity: message" through the source manager,
// using the fully original spelling location.
func (d Diagnostic) Report(sm *SourceManager) string {
    severity := "error"
    if d.Code.IsWarning() {
        severity = "warning"
    }
    loc := sm.FullyOriginalLoc(d.Loc)
    return fmt.Sprintf("%s:%d:%d: %s: %s",
        sm.FileName(loc), sm.LineNumber(loc), sm.ColumnNumber(loc), severity, d.Message())
}

//
//    Diagnostics
//

type Diagnostics struct {
    list []Diagnostic
}

func NewDiagnostics() *Diagnostics {
    return new(Diagnostics)
}

func (ds *Diagnostics) Add(code DiagCode, loc SourceLocation, args ...interface{}) {
    ds.list = append(ds.list, Diagnostic{Code: code, Loc: loc, Args: args})
}

func (ds *Diagnostics) All() []Diagnostic {
    return ds.list
}

func (ds *Diagnostics) Len() int {
    return len(ds.list)
}

func (ds *Diagnostics) HasErrors() bool {
    for _, d := range ds.list {
        if !d.Code.IsWarning() {
            return true
        }
    }
    return false
}

func (ds *Diagnostics) Clear() {
    ds.list = ds.list[:0]
}

// Provenance chain for a location: the location itself followed by each
// expansion step back to the original file spelling. Macro argument frames
// are marked with IsMacroArg; the walk does not stop at them and continues
// to the argument's own spelling.
type ExpansionFrame struct {
    Loc SourceLocation
    UsageRange SourceRange
    MacroName string
    IsMacroArg bool
}

func ExpansionChain(sm *SourceManager, loc SourceLocation) []ExpansionFrame {
    var chain []ExpansionFrame
    for sm.IsMacroLoc(loc) {
        chain = append(chain, ExpansionFrame{
            Loc: loc,
            UsageRange: sm.ExpansionRange(loc),
            MacroName: sm.MacroName(loc),
            IsMacroArg: sm.IsMacroArgLoc(loc),
        })
        loc = sm.SpellingLoc(loc)
    }
    chain = append(chain, ExpansionFrame{Loc: loc})
    return chain
}
