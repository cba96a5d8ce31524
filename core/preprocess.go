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

// The preprocessor directive layer.
//
// The preprocessor takes raw tokens from a stack of lexers and hands out a
// processed stream one token at a time. Directives drive macro definition
// and expansion, conditional compilation, inclusion and the `line
// bookkeeping, and do not reach the caller; the one exception is a macro
// usage whose nested expansion fails (a recursive macro, for instance),
// which is handed out unchanged. Macro expansion itself lives in macro.go.

package core

import (
    "os"
    "path/filepath"

    lru "github.com/hashicorp/golang-lru/v2"
    "github.com/pkg/errors"
)

//
//    Options
//

type Options struct {
    IncludeDirs []string
    MaxIncludeDepth int
    // Allow a paste of '/' and '*' to fabricate a block comment. Other
    // tools support this and real world code depends on it.
    SyntheticComments bool
    Predefines map[string]string
}

func DefaultOptions() Options {
    return Options{
        MaxIncludeDepth: 64,
        SyntheticComments: true,
    }
}

//
//    Conditional stack
//

type condBranch struct {
    tok Token
    inElse bool
    anyTaken bool
}

//
//    Preprocessor
//

type Preprocessor struct {
    sm *SourceManager
    diags *Diagnostics
    opts Options

    macros map[string]*MacroDef
    lexers []*Lexer
    lookahead Token

    // Tokens produced by the most recent macro expansion, handed out
    // before anything else is pulled.
    expanded []Token
    expandedIdx int

    branches []condBranch
    keywordStack []string
    fileCache *lru.Cache[string, []byte]
}

func NewPreprocessor(sm *SourceManager, diags *Diagnostics, opts Options) *Preprocessor {
    pp := new(Preprocessor)
    pp.sm = sm
    pp.diags = diags
    pp.opts = opts
    if pp.opts.MaxIncludeDepth == 0 {
        pp.opts.MaxIncludeDepth = DefaultOptions().MaxIncludeDepth
    }
    pp.macros = make(map[string]*MacroDef)
    pp.fileCache, _ = lru.New[string, []byte](128)

    pp.macros["__FILE__"] = &MacroDef{builtin: true, intrinsic: INTRINSIC_FILE}
    pp.macros["__LINE__"] = &MacroDef{builtin: true, intrinsic: INTRINSIC_LINE}
    for name, value := range opts.Predefines {
        pp.DefineMacro(name, value)
    }
    return pp
}

// Defines an object-like macro from a name/value pair, the way tool
// command lines inject definitions. The macro counts as built-in.
func (pp *Preprocessor) DefineMacro(name string, value string) {
    loc := pp.sm.AssignText("<built-in>", value+"\n")
    lx := NewLexer(pp.sm, pp.diags, loc)

    var body []Token
    for {
        tok := lx.Next()
        if tok.kind == TK_EOF {
            break
        }
        body = append(body, tok)
    }

    syntax := &DefineDirective{
        directive: NewDirectiveToken(nil, "`define", NoLocation, DK_DEFINE),
        name: NewToken(TK_IDENT, nil, name, loc),
        body: body,
    }
    pp.macros[name] = &MacroDef{syntax: syntax, builtin: true}
}

func (pp *Preprocessor) UndefineMacro(name string) {
    delete(pp.macros, name)
}

func (pp *Preprocessor) IsDefined(name string) bool {
    _, ok := pp.macros[name]
    return ok
}

// Pushes a registered buffer as the current token source. Nested pushes
// behave like includes: the previous source resumes at end of file.
func (pp *Preprocessor) PushSource(start SourceLocation) {
    pp.lexers = append(pp.lexers, NewLexer(pp.sm, pp.diags, start))
}

func (pp *Preprocessor) PushFile(path string) error {
    start, err := pp.sm.ReadSource(path)
    if err != nil {
        return err
    }
    pp.PushSource(start)
    return nil
}

//
//    Raw token stream
//

// Pulls the next unprocessed token: pending macro-expansion output first,
// then the lexer stack. Directives synthesized by an expansion re-enter
// here, which is what lets a macro body produce a working `define.
func (pp *Preprocessor) nextRaw() Token {
    if pp.lookahead.Valid() {
        tok := pp.lookahead
        pp.lookahead = Token{}
        return tok
    }
    if pp.expandedIdx < len(pp.expanded) {
        tok := pp.expanded[pp.expandedIdx]
        pp.expandedIdx++
        return tok
    }
    for {
        n := len(pp.lexers)
        if n == 0 {
            return NewToken(TK_EOF, nil, "", NoLocation)
        }
        tok := pp.lexers[n-1].Next()
        if tok.kind == TK_EOF && n > 1 {
            pp.lexers = pp.lexers[:n-1]
            continue
        }
        return tok
    }
}

func (pp *Preprocessor) peekRaw() Token {
    if !pp.lookahead.Valid() {
        pp.lookahead = pp.nextRaw()
    }
    return pp.lookahead
}

// Consumes raw tokens through the end of the current logical line. Extra
// tokens after a complete directive draw a warning.
func (pp *Preprocessor) skipToEndOfLine(warnExtra bool) {
    warned := false
    for {
        tok := pp.peekRaw()
        if tok.kind == TK_EOF || !tok.IsOnSameLine() {
            return
        }
        if warnExtra && !warned {
            pp.diags.Add(DG_EXPECTED_END_OF_DIRECTIVE, tok.loc)
            warned = true
        }
        pp.nextRaw()
    }
}

//
//    Processed stream
//

// Returns the next fully preprocessed token. Directives are consumed
// internally, except for a macro usage whose nested expansion failed,
// which is returned unchanged; the stream ends with an EOF token that is
// returned again on subsequent calls.
func (pp *Preprocessor) Next() Token {
    for {
        tok := pp.nextRaw()
        switch tok.kind {
        case TK_DIRECTIVE:
            if out, emit := pp.handleDirective(tok); emit {
                return out
            }
        case TK_LINE_CONTINUATION:
            // Stray continuation outside a directive; drop it.
        default:
            return tok
        }
    }
}

// Convenience driver: pulls the whole stream, EOF token included.
func (pp *Preprocessor) Preprocess() []Token {
    var out []Token
    for {
        tok := pp.Next()
        out = append(out, tok)
        if tok.kind == TK_EOF {
            return out
        }
    }
}

func (pp *Preprocessor) handleDirective(tok Token) (Token, bool) {
    switch tok.dirKind {
    case DK_MACRO_USAGE:
        return pp.handleTopLevelMacro(tok)
    case DK_DEFINE:
        pp.handleDefine(tok)
    case DK_UNDEF:
        pp.handleUndef(tok)
    case DK_UNDEFINEALL, DK_RESETALL:
        pp.handleResetAll(tok)
    case DK_IFDEF:
        pp.handleIfDef(tok, false)
    case DK_IFNDEF:
        pp.handleIfDef(tok, true)
    case DK_ELSE:
        pp.handleElse(tok)
    case DK_ELSIF:
        pp.handleElsif(tok)
    case DK_ENDIF:
        pp.handleEndif(tok)
    case DK_INCLUDE:
        pp.handleInclude(tok)
    case DK_LINE:
        pp.handleLine(tok)
    case DK_BEGIN_KEYWORDS:
        pp.handleBeginKeywords(tok)
    case DK_END_KEYWORDS:
        pp.handleEndKeywords(tok)
    case DK_PRAGMA:
        pp.skipToEndOfLine(false)
    default:
        Unreachable()
    }
    return Token{}, false
}

//
//    `define / `undef
//

func (pp *Preprocessor) handleDefine(defineTok Token) {
    nameTok := pp.peekRaw()
    if (nameTok.kind != TK_IDENT && nameTok.kind != TK_KEYWORD) || !nameTok.IsOnSameLine() {
        pp.diags.Add(DG_EXPECTED_IDENTIFIER, defineTok.loc.Add(len(defineTok.text)))
        pp.skipToEndOfLine(false)
        return
    }
    pp.nextRaw()
    name := nameTok.ValueText()

    syntax := &DefineDirective{directive: defineTok, name: nameTok}

    // A formal argument list only exists when '(' immediately follows the
    // macro name, with no intervening whitespace.
    next := pp.peekRaw()
    if next.kind == TK_LPAREN && len(next.trivia) == 0 && next.IsOnSameLine() {
        parser := newMacroParser(pp)
        syntax.formals = parser.parseFormalArgumentList()
        if syntax.formals == nil {
            pp.skipToEndOfLine(false)
            return
        }
    }

    for {
        t := pp.peekRaw()
        if t.kind == TK_EOF {
            break
        }
        // A line continuation extends the logical line even when it was
        // synthesized during argument substitution and carries the
        // newline in its own trivia.
        if t.kind != TK_LINE_CONTINUATION && !t.IsOnSameLine() {
            break
        }
        syntax.body = append(syntax.body, pp.nextRaw())
    }

    if prev, ok := pp.macros[name]; ok {
        if prev.builtin || prev.syntax == nil || !isSameMacro(prev.syntax, syntax) {
            pp.diags.Add(DG_REDEFINED_MACRO, nameTok.loc, name)
        }
    }
    pp.macros[name] = &MacroDef{syntax: syntax}
}

func (pp *Preprocessor) handleUndef(undefTok Token) {
    nameTok := pp.peekRaw()
    if (nameTok.kind != TK_IDENT && nameTok.kind != TK_KEYWORD) || !nameTok.IsOnSameLine() {
        pp.diags.Add(DG_EXPECTED_IDENTIFIER, undefTok.loc.Add(len(undefTok.text)))
        return
    }
    pp.nextRaw()

    name := nameTok.ValueText()
    if def, ok := pp.macros[name]; ok {
        if def.builtin || def.intrinsic != INTRINSIC_NONE {
            pp.diags.Add(DG_UNDEFINE_BUILTIN_DIRECTIVE, nameTok.loc)
        } else {
            delete(pp.macros, name)
        }
    }
    pp.skipToEndOfLine(true)
}

func (pp *Preprocessor) handleResetAll(tok Token) {
    for name, def := range pp.macros {
        if !def.builtin && def.intrinsic == INTRINSIC_NONE {
            delete(pp.macros, name)
        }
    }
    pp.skipToEndOfLine(true)
}

//
//    Conditional compilation
//

func (pp *Preprocessor) readConditionName(dirTok Token) (string, bool) {
    nameTok := pp.peekRaw()
    if (nameTok.kind != TK_IDENT && nameTok.kind != TK_KEYWORD) || !nameTok.IsOnSameLine() {
        pp.diags.Add(DG_EXPECTED_IDENTIFIER, dirTok.loc.Add(len(dirTok.text)))
        return "", false
    }
    pp.nextRaw()
    return nameTok.ValueText(), true
}

func (pp *Preprocessor) handleIfDef(tok Token, invert bool) {
    name, ok := pp.readConditionName(tok)
    if !ok {
        // Keep the stack balanced so the matching `endif still pops.
        pp.branches = append(pp.branches, condBranch{tok: tok, anyTaken: true})
        pp.skipToEndOfLine(false)
        return
    }

    taken := pp.IsDefined(name)
    if invert {
        taken = !taken
    }
    pp.branches = append(pp.branches, condBranch{tok: tok, anyTaken: taken})
    if !taken {
        pp.skipConditionalBranch()
    }
}

func (pp *Preprocessor) handleElse(tok Token) {
    n := len(pp.branches)
    if n == 0 || pp.branches[n-1].inElse {
        pp.diags.Add(DG_UNEXPECTED_CONDITIONAL_DIRECTIVE, tok.loc)
        return
    }
    pp.branches[n-1].inElse = true
    // Reaching `else in the active stream means a previous branch was
    // taken; skip to the matching `endif.
    pp.skipToEndif()
}

func (pp *Preprocessor) handleElsif(tok Token) {
    n := len(pp.branches)
    if n == 0 || pp.branches[n-1].inElse {
        pp.diags.Add(DG_UNEXPECTED_CONDITIONAL_DIRECTIVE, tok.loc)
        return
    }
    pp.readConditionName(tok)
    pp.skipToEndif()
}

func (pp *Preprocessor) handleEndif(tok Token) {
    n := len(pp.branches)
    if n == 0 {
        pp.diags.Add(DG_UNEXPECTED_CONDITIONAL_DIRECTIVE, tok.loc)
        return
    }
    pp.branches = pp.branches[:n-1]
}

// Skips a branch that was not taken, stopping at the first `else or
// satisfied `elsif at the same nesting depth, or at the matching `endif.
func (pp *Preprocessor) skipConditionalBranch() {
    depth := 0
    for {
        tok := pp.nextRaw()
        if tok.kind == TK_EOF {
            pp.diags.Add(DG_UNEXPECTED_CONDITIONAL_DIRECTIVE, pp.topBranchLoc())
            return
        }
        if tok.kind != TK_DIRECTIVE {
            continue
        }

        switch tok.dirKind {
        case DK_IFDEF, DK_IFNDEF:
            depth++
        case DK_ENDIF:
            if depth == 0 {
                pp.branches = pp.branches[:len(pp.branches)-1]
                return
            }
            depth--
        case DK_ELSE:
            if depth == 0 {
                top := &pp.branches[len(pp.branches)-1]
                if !top.anyTaken && !top.inElse {
                    top.anyTaken = true
                    top.inElse = true
                    return
                }
                top.inElse = true
            }
        case DK_ELSIF:
            if depth == 0 {
                top := &pp.branches[len(pp.branches)-1]
                if top.inElse {
                    pp.diags.Add(DG_UNEXPECTED_CONDITIONAL_DIRECTIVE, tok.loc)
                    continue
                }
                if top.anyTaken {
                    continue
                }
                name, ok := pp.readConditionName(tok)
                if ok && pp.IsDefined(name) {
                    top.anyTaken = true
                    return
                }
            }
        }
    }
}

// Skips everything up to and including the matching `endif.
func (pp *Preprocessor) skipToEndif() {
    depth := 0
    for {
        tok := pp.nextRaw()
        if tok.kind == TK_EOF {
            pp.diags.Add(DG_UNEXPECTED_CONDITIONAL_DIRECTIVE, pp.topBranchLoc())
            return
        }
        if tok.kind != TK_DIRECTIVE {
            continue
        }
        switch tok.dirKind {
        case DK_IFDEF, DK_IFNDEF:
            depth++
        case DK_ENDIF:
            if depth == 0 {
                pp.branches = pp.branches[:len(pp.branches)-1]
                return
            }
            depth--
        }
    }
}

func (pp *Preprocessor) topBranchLoc() SourceLocation {
    if len(pp.branches) == 0 {
        return NoLocation
    }
    return pp.branches[len(pp.branches)-1].tok.loc
}

//
//    `include
//

func (pp *Preprocessor) handleInclude(includeTok Token) {
    fileTok := pp.peekRaw()
    if fileTok.kind == TK_EOF || !fileTok.IsOnSameLine() {
        pp.diags.Add(DG_EXPECTED_INCLUDE_FILE_NAME, includeTok.loc.Add(len(includeTok.text)))
        return
    }

    var name string
    var isSystem bool
    nameLoc := fileTok.loc

    switch fileTok.kind {
    case TK_STR_LITERAL:
        pp.nextRaw()
        name = fileTok.StringValue()
    case TK_LT:
        pp.nextRaw()
        isSystem = true
        for {
            t := pp.peekRaw()
            if t.kind == TK_EOF || !t.IsOnSameLine() {
                pp.diags.Add(DG_EXPECTED_INCLUDE_FILE_NAME, nameLoc)
                return
            }
            pp.nextRaw()
            if t.kind == TK_GT {
                break
            }
            name += t.text
        }
    default:
        pp.diags.Add(DG_EXPECTED_INCLUDE_FILE_NAME, fileTok.loc)
        pp.skipToEndOfLine(false)
        return
    }
    pp.skipToEndOfLine(true)

    if len(name) == 0 || len(pp.lexers) >= pp.opts.MaxIncludeDepth {
        pp.diags.Add(DG_COULD_NOT_OPEN_INCLUDE_FILE, nameLoc, name)
        return
    }

    path, contents, err := pp.loadInclude(name, isSystem)
    if err != nil {
        pp.diags.Add(DG_COULD_NOT_OPEN_INCLUDE_FILE, nameLoc, name)
        return
    }

    // The end-of-line check above already pulled the first token after the
    // directive out of the including file; rewind that lexer so the token
    // is read again once the included file is exhausted.
    if n := len(pp.lexers); pp.lookahead.Valid() && n != 0 {
        top := pp.lexers[n-1]
        if pp.lookahead.loc.buffer == top.base.buffer {
            p := pp.lookahead.loc.Offset()
            for _, tv := range pp.lookahead.trivia {
                p -= len(tv.text)
            }
            top.p = p
            pp.lookahead = Token{}
        }
    }

    start := pp.sm.AssignText(path, string(contents))
    pp.PushSource(start)
}

// Resolves an include name against the including file's directory (for
// quoted names) and the configured include directories, reading through an
// LRU file cache.
func (pp *Preprocessor) loadInclude(name string, isSystem bool) (string, []byte, error) {
    var dirs []string
    if !isSystem && len(pp.lexers) != 0 {
        top := pp.lexers[len(pp.lexers)-1]
        dirs = append(dirs, filepath.Dir(pp.sm.bufferAt(top.base).name))
    }
    dirs = append(dirs, pp.opts.IncludeDirs...)

    if filepath.IsAbs(name) {
        contents, err := pp.readCached(name)
        return name, contents, err
    }

    for _, dir := range dirs {
        path := filepath.Join(dir, name)
        contents, err := pp.readCached(path)
        if err == nil {
            return path, contents, nil
        }
    }
    return "", nil, errors.Errorf("include file not found: %s", name)
}

func (pp *Preprocessor) readCached(path string) ([]byte, error) {
    if contents, ok := pp.fileCache.Get(path); ok {
        return contents, nil
    }
    if info, err := os.Stat(path); err != nil || info.IsDir() {
        return nil, errors.Errorf("not a readable file: %s", path)
    }
    contents, err := readSourceFile(path)
    if err != nil {
        return nil, errors.Wrapf(err, "reading include file %s", path)
    }
    // Strip the scanning NUL; AssignText re-terminates.
    contents = contents[:len(contents)-1]
    pp.fileCache.Add(path, contents)
    return contents, nil
}

//
//    `line and keyword versions
//

func (pp *Preprocessor) handleLine(lineTok Token) {
    readNum := func() (int64, bool) {
        t := pp.peekRaw()
        if t.kind != TK_INT_LITERAL || !t.IsOnSameLine() {
            return 0, false
        }
        pp.nextRaw()
        return t.intVal, true
    }

    line, ok := readNum()
    if !ok {
        pp.diags.Add(DG_INVALID_LINE_DIRECTIVE, lineTok.loc)
        pp.skipToEndOfLine(false)
        return
    }

    nameTok := pp.peekRaw()
    if nameTok.kind != TK_STR_LITERAL || !nameTok.IsOnSameLine() {
        pp.diags.Add(DG_INVALID_LINE_DIRECTIVE, lineTok.loc)
        pp.skipToEndOfLine(false)
        return
    }
    pp.nextRaw()

    level, ok := readNum()
    if !ok || level < 0 || level > 2 {
        pp.diags.Add(DG_INVALID_LINE_DIRECTIVE, lineTok.loc)
        pp.skipToEndOfLine(false)
        return
    }
    pp.skipToEndOfLine(true)

    pp.sm.AddLineDirective(lineTok.loc, int(line), nameTok.StringValue(), int(level))
}

var keywordVersions = map[string]bool{
    "1364-1995": true,
    "1364-2001": true,
    "1364-2001-noconfig": true,
    "1364-2005": true,
    "1800-2005": true,
    "1800-2009": true,
    "1800-2012": true,
    "1800-2017": true,
    "1800-2023": true,
}

func (pp *Preprocessor) handleBeginKeywords(tok Token) {
    verTok := pp.peekRaw()
    if verTok.kind != TK_STR_LITERAL || !verTok.IsOnSameLine() {
        pp.diags.Add(DG_EXPECTED_STRING_LITERAL, tok.loc.Add(len(tok.text)))
        pp.skipToEndOfLine(false)
        return
    }
    pp.nextRaw()
    pp.skipToEndOfLine(true)

    version := verTok.StringValue()
    if !keywordVersions[version] {
        pp.diags.Add(DG_UNRECOGNIZED_KEYWORD_VERSION, verTok.loc, version)
        return
    }
    pp.keywordStack = append(pp.keywordStack, version)
}

func (pp *Preprocessor) handleEndKeywords(tok Token) {
    pp.skipToEndOfLine(true)
    if len(pp.keywordStack) == 0 {
        pp.diags.Add(DG_MISMATCHED_END_KEYWORDS_DIRECTIVE, tok.loc)
        return
    }
    pp.keywordStack = pp.keywordStack[:len(pp.keywordStack)-1]
}
