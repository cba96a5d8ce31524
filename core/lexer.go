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

// Character-level lexer producing raw tokens for the preprocessor.
//
// Comments and whitespace are not tokens: they are collected as leading
// trivia on the next real token. A backslash-newline pair becomes a
// LineContinuation token whose raw text swallows the newline, so the token
// that follows it stays on the same logical line.

package core

//
//    Lexer
//

type Lexer struct {
    sm *SourceManager
    diags *Diagnostics
    buf []byte // NUL-terminated
    base SourceLocation
    p int
}

// Creates a lexer over the file buffer that contains 'start'.
func NewLexer(sm *SourceManager, diags *Diagnostics, start SourceLocation) *Lexer {
    lx := new(Lexer)
    lx.sm = sm
    lx.diags = diags
    lx.buf = sm.bufferAt(start).contents
    lx.base = SourceLocation{start.buffer, 0}
    lx.p = start.Offset()
    return lx
}

// Creates a lexer over a detached piece of text; token locations are
// offsets from 'base'. Used to re-lex pasted and split tokens.
func newScratchLexer(text string, base SourceLocation) *Lexer {
    lx := new(Lexer)
    lx.buf = nulTerminate([]byte(text))
    lx.base = base
    return lx
}

func (lx *Lexer) loc(p int) SourceLocation {
    return lx.base.Add(p)
}

// Collects whitespace, newlines and comments preceding the next token.
func (lx *Lexer) lexTrivia() []Trivia {
    var trivia []Trivia
    buf := lx.buf

    for {
        p := lx.p
        c := buf[p]

        switch {
        case IsSpace(c):
            for IsSpace(buf[p]) {
                p++
            }
            trivia = append(trivia, Trivia{TV_SPACE, string(buf[lx.p:p])})
            lx.p = p

        case c == '\n':
            trivia = append(trivia, Trivia{TV_EOL, "\n"})
            lx.p = p + 1

        case StartsWith(buf[p:], "//"):
            for buf[p] != '\n' && buf[p] != 0 {
                p++
            }
            trivia = append(trivia, Trivia{TV_LINE_COMMENT, string(buf[lx.p:p])})
            lx.p = p

        case StartsWith(buf[p:], "/*"):
            p += 2
            for buf[p] != 0 && !StartsWith(buf[p:], "*/") {
                p++
            }
            if buf[p] != 0 {
                p += 2
            }
            trivia = append(trivia, Trivia{TV_BLOCK_COMMENT, string(buf[lx.p:p])})
            lx.p = p

        default:
            return trivia
        }
    }
}

// Produces the next token. At end of input an EOF token carrying the final
// trivia is returned, repeatedly if pulled again.
func (lx *Lexer) Next() Token {
    trivia := lx.lexTrivia()

    buf := lx.buf
    start := lx.p
    loc := lx.loc(start)
    c := buf[start]

    switch {
    case c == 0:
        return NewToken(TK_EOF, trivia, "", loc)

    case c == '`':
        return lx.lexDirective(trivia, start, loc)

    case c == '\\':
        if buf[start+1] == '\n' {
            lx.p = start + 2
            return NewToken(TK_LINE_CONTINUATION, trivia, "\\\n", loc)
        }
        // Escaped identifier: everything up to the next whitespace.
        p := start + 1
        for buf[p] != 0 && buf[p] != '\n' && !IsSpace(buf[p]) {
            p++
        }
        if p == start+1 {
            lx.p = p
            return NewToken(TK_UNKNOWN, trivia, "\\", loc)
        }
        lx.p = p
        return NewToken(TK_IDENT, trivia, string(buf[start:p]), loc)

    case c == '"':
        return lx.lexStringLiteral(trivia, start, loc)

    case IsDigit(c):
        p := start
        for IsDigit(buf[p]) || buf[p] == '_' {
            p++
        }
        lx.p = p
        return NewToken(TK_INT_LITERAL, trivia, string(buf[start:p]), loc)

    case c == '\'' && isBasePrefix(buf, start):
        p := start + 1
        if buf[p] == 's' || buf[p] == 'S' {
            p++
        }
        p++ // base character
        for IsXDigit(buf[p]) || buf[p] == '_' || isUnknownDigit(buf[p]) {
            p++
        }
        lx.p = p
        return NewToken(TK_INT_LITERAL, trivia, string(buf[start:p]), loc)

    case c == '$' && IsIdentStart(buf[start+1]):
        p := start + 1
        for IsIdentCont(buf[p]) {
            p++
        }
        lx.p = p
        return NewToken(TK_SYSTEM_NAME, trivia, string(buf[start:p]), loc)

    case IsIdentStart(c):
        p := start
        for IsIdentCont(buf[p]) {
            p++
        }
        lx.p = p
        text := string(buf[start:p])
        kind := TK_IDENT
        if kwTable[text] {
            kind = TK_KEYWORD
        }
        return NewToken(kind, trivia, text, loc)
    }

    if text, kind := readPunct(buf, start); kind != TK_NONE {
        lx.p = start + len(text)
        return NewToken(kind, trivia, text, loc)
    }

    lx.p = start + 1
    return NewToken(TK_UNKNOWN, trivia, string(buf[start:start+1]), loc)
}

func (lx *Lexer) lexDirective(trivia []Trivia, start int, loc SourceLocation) Token {
    buf := lx.buf
    next := buf[start+1]

    switch {
    case next == '"':
        lx.p = start + 2
        return NewToken(TK_MACRO_QUOTE, trivia, "`\"", loc)

    case next == '`':
        lx.p = start + 2
        return NewToken(TK_MACRO_PASTE, trivia, "``", loc)

    case next == '\\':
        // Escaped macro name: `\foo .
        p := start + 2
        for buf[p] != 0 && buf[p] != '\n' && !IsSpace(buf[p]) {
            p++
        }
        lx.p = p
        text := string(buf[start:p])
        return NewDirectiveToken(trivia, text, loc, DK_MACRO_USAGE)

    case IsIdentStart(next):
        p := start + 1
        for IsIdentCont(buf[p]) {
            p++
        }
        lx.p = p
        text := string(buf[start:p])
        kind, ok := directiveTable[text[1:]]
        if !ok {
            kind = DK_MACRO_USAGE
        }
        return NewDirectiveToken(trivia, text, loc, kind)
    }

    lx.p = start + 1
    return NewToken(TK_UNKNOWN, trivia, "`", loc)
}

func (lx *Lexer) lexStringLiteral(trivia []Trivia, start int, loc SourceLocation) Token {
    buf := lx.buf
    p := start + 1
    for buf[p] != 0 && buf[p] != '\n' && buf[p] != '"' {
        if buf[p] == '\\' && buf[p+1] != 0 && buf[p+1] != '\n' {
            p++
        }
        p++
    }
    if buf[p] == '"' {
        p++
    }
    lx.p = p
    return NewToken(TK_STR_LITERAL, trivia, string(buf[start:p]), loc)
}

func isBasePrefix(buf []byte, p int) bool {
    c := buf[p+1]
    if c == 's' || c == 'S' {
        c = buf[p+2]
    }
    switch c {
    case 'b', 'B', 'o', 'O', 'd', 'D', 'h', 'H':
        return true
    }
    return false
}

func isUnknownDigit(c byte) bool {
    return (c == 'x' || c == 'X' || c == 'z' || c == 'Z' || c == '?')
}

//
//    Punctuators
//

var punctTable = []struct {
    text string
    kind TokenKind
}{
    {"<->", TK_LT_ARROW},
    {"===", TK_EQ_EQ_EQ},
    {"==?", TK_EQ_EQ_QUESTION},
    {"!==", TK_BANG_EQ_EQ},
    {"!=?", TK_BANG_EQ_QUESTION},
    {">>>", TK_ASHR},
    {"&&&", TK_AMP_AMP_AMP},
    {"<<=", TK_SHL_EQ},
    {">>=", TK_SHR_EQ},
    {"==", TK_EQ_EQ},
    {"!=", TK_BANG_EQ},
    {"<=", TK_LT_EQ},
    {">=", TK_GT_EQ},
    {"->", TK_ARROW},
    {"=>", TK_EQ_ARROW},
    {"*>", TK_STAR_ARROW},
    {"+=", TK_PLUS_EQ},
    {"-=", TK_MINUS_EQ},
    {"*=", TK_STAR_EQ},
    {"/=", TK_SLASH_EQ},
    {"%=", TK_PERCENT_EQ},
    {"&=", TK_AMP_EQ},
    {"|=", TK_OR_EQ},
    {"^=", TK_XOR_EQ},
    {"++", TK_PLUS_PLUS},
    {"--", TK_MINUS_MINUS},
    {"**", TK_STAR_STAR},
    {"&&", TK_AMP_AMP},
    {"||", TK_OR_OR},
    {"<<", TK_SHL},
    {">>", TK_SHR},
    {"::", TK_DOUBLE_COLON},
    {"~&", TK_TILDE_AMP},
    {"~|", TK_TILDE_OR},
    {"~^", TK_TILDE_XOR},
    {"^~", TK_XOR_TILDE},
    {"##", TK_DOUBLE_HASH},
    {"(", TK_LPAREN},
    {")", TK_RPAREN},
    {"[", TK_LBRACKET},
    {"]", TK_RBRACKET},
    {"{", TK_LBRACE},
    {"}", TK_RBRACE},
    {";", TK_SEMICOLON},
    {":", TK_COLON},
    {",", TK_COMMA},
    {".", TK_DOT},
    {"/", TK_SLASH},
    {"*", TK_STAR},
    {"+", TK_PLUS},
    {"-", TK_MINUS},
    {"%", TK_PERCENT},
    {"?", TK_QUESTION},
    {"#", TK_HASH},
    {"@", TK_AT},
    {"&", TK_AMP},
    {"|", TK_OR},
    {"^", TK_XOR},
    {"~", TK_TILDE},
    {"=", TK_EQUALS},
    {"<", TK_LT},
    {">", TK_GT},
    {"'", TK_APOSTROPHE},
    {"!", TK_BANG},
    {"$", TK_DOLLAR},
}

func readPunct(buf []byte, p int) (string, TokenKind) {
    for _, pt := range punctTable {
        if StartsWith(buf[p:], pt.text) {
            return pt.text, pt.kind
        }
    }
    return "", TK_NONE
}

var kwTable = map[string]bool{
    "module": true,
    "endmodule": true,
    "interface": true,
    "endinterface": true,
    "package": true,
    "endpackage": true,
    "function": true,
    "endfunction": true,
    "task": true,
    "endtask": true,
    "begin": true,
    "end": true,
    "if": true,
    "else": true,
    "for": true,
    "foreach": true,
    "while": true,
    "do": true,
    "case": true,
    "endcase": true,
    "default": true,
    "return": true,
    "break": true,
    "continue": true,
    "assign": true,
    "always": true,
    "always_comb": true,
    "always_ff": true,
    "initial": true,
    "final": true,
    "generate": true,
    "endgenerate": true,
    "parameter": true,
    "localparam": true,
    "typedef": true,
    "struct": true,
    "union": true,
    "enum": true,
    "packed": true,
    "signed": true,
    "unsigned": true,
    "input": true,
    "output": true,
    "inout": true,
    "wire": true,
    "reg": true,
    "logic": true,
    "bit": true,
    "byte": true,
    "int": true,
    "integer": true,
    "longint": true,
    "shortint": true,
    "real": true,
    "string": true,
    "void": true,
    "const": true,
    "static": true,
    "automatic": true,
    "posedge": true,
    "negedge": true,
    "assert": true,
    "property": true,
    "endproperty": true,
    "sequence": true,
    "endsequence": true,
    "class": true,
    "endclass": true,
    "extends": true,
    "virtual": true,
    "new": true,
    "this": true,
    "super": true,
    "import": true,
    "export": true,
    "genvar": true,
    "modport": true,
    "timeunit": true,
    "timeprecision": true,
}

//
//    Token fabrication helpers used by the macro engine
//

// Converts a run of tokens into a single string literal, as done by the
// stringification operator `" ... `". The result carries the opening
// quote's trivia and location.
func Stringify(openLoc SourceLocation, trivia []Trivia, tokens []Token) Token {
    var raw []byte
    var value []byte
    raw = append(raw, '"')
    for i, tok := range tokens {
        if i != 0 && len(tok.trivia) != 0 {
            raw = append(raw, ' ')
            value = append(value, ' ')
        }
        for j := 0; j < len(tok.text); j++ {
            c := tok.text[j]
            if c == '\\' || c == '"' {
                raw = append(raw, '\\')
            }
            raw = append(raw, c)
        }
        value = append(value, tok.text...)
    }
    raw = append(raw, '"')

    result := Token{kind: TK_STR_LITERAL, text: string(raw), trivia: trivia, loc: openLoc}
    result.strVal = string(value)
    return result
}

// Glues two tokens together and re-lexes the result. Returns the invalid
// token if the concatenation does not lex cleanly into exactly one token.
func ConcatenateTokens(left Token, right Token) Token {
    combined := left.text + right.text
    lx := newScratchLexer(combined, left.loc)

    tok := lx.Next()
    rest := lx.Next()
    if tok.kind == TK_UNKNOWN || rest.kind != TK_EOF || len(tok.trivia) != 0 ||
            tok.text != combined {
        return Token{}
    }

    return tok.WithLocation(left.loc).WithTrivia(left.trivia)
}

// Re-lexes the tail of a composite token starting at the given offset.
// Used to break apart escaped identifiers that embed `` or `" markers.
func SplitTokens(tok Token, offset int) []Token {
    lx := newScratchLexer(tok.text[offset:], tok.loc.Add(offset))
    var out []Token
    for {
        t := lx.Next()
        if t.kind == TK_EOF {
            return out
        }
        out = append(out, t)
    }
}

// Joins a run of tokens into a single block-comment trivia. Used when a
// paste of '/' and '*' fabricates a comment.
func Commentify(tokens []Token) Trivia {
    var sb []byte
    for i, tok := range tokens {
        if i != 0 && len(tok.trivia) != 0 {
            sb = append(sb, ' ')
        }
        sb = append(sb, tok.text...)
    }
    return Trivia{TV_BLOCK_COMMENT, string(sb)}
}
