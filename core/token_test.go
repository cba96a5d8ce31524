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

func TestTokenWithConstructors(t *testing.T) {
    loc := SourceLocation{buffer: 1, offset: 10}
    tok := NewToken(TK_IDENT, []Trivia{{TV_SPACE, " "}}, "foo", loc)

    relocated := tok.WithLocation(SourceLocation{buffer: 2, offset: 0})
    assert.Equal(t, TK_IDENT, relocated.Kind())
    assert.Equal(t, "foo", relocated.RawText())
    assert.Equal(t, BufferID(2), relocated.Location().Buffer())

    // Original must be untouched.
    assert.Equal(t, BufferID(1), tok.Location().Buffer())

    retrivia := tok.WithTrivia(nil)
    assert.Len(t, retrivia.Trivia(), 0)
    assert.Len(t, tok.Trivia(), 1)

    retext := tok.WithRawText("bar")
    assert.Equal(t, "bar", retext.RawText())
    assert.Equal(t, "foo", tok.RawText())
}

func TestTokenWithRawTextReparses(t *testing.T) {
    loc := SourceLocation{buffer: 1}
    num := NewToken(TK_INT_LITERAL, nil, "42", loc)
    require.Equal(t, int64(42), num.IntValue())

    renum := num.WithRawText("1_000")
    assert.Equal(t, int64(1000), renum.IntValue())

    str := NewToken(TK_STR_LITERAL, nil, `"a\"b"`, loc)
    assert.Equal(t, `a"b`, str.StringValue())
}

func TestTokenValueText(t *testing.T) {
    loc := SourceLocation{buffer: 1}
    assert.Equal(t, "foo", NewToken(TK_IDENT, nil, `\foo`, loc).ValueText())
    assert.Equal(t, "FOO", NewDirectiveToken(nil, "`FOO", loc, DK_MACRO_USAGE).ValueText())
    assert.Equal(t, "plain", NewToken(TK_IDENT, nil, "plain", loc).ValueText())
}

func TestTokenIsOnSameLine(t *testing.T) {
    loc := SourceLocation{buffer: 1}
    sameLine := NewToken(TK_IDENT, []Trivia{{TV_SPACE, "  "}}, "a", loc)
    assert.True(t, sameLine.IsOnSameLine())

    newLine := NewToken(TK_IDENT, []Trivia{{TV_SPACE, " "}, {TV_EOL, "\n"}}, "a", loc)
    assert.False(t, newLine.IsOnSameLine())

    continued := NewToken(TK_IDENT, []Trivia{{TV_LINE_CONT, "\\\n"}}, "a", loc)
    assert.False(t, continued.IsOnSameLine())
}

func TestTokenSameness(t *testing.T) {
    loc := SourceLocation{buffer: 1}
    a := NewToken(TK_IDENT, []Trivia{{TV_SPACE, " "}}, "x", loc)
    b := NewToken(TK_IDENT, []Trivia{{TV_SPACE, " "}}, "x", SourceLocation{buffer: 3, offset: 7})
    assert.True(t, isSameToken(a, b), "location must not affect sameness")

    c := NewToken(TK_IDENT, []Trivia{{TV_SPACE, "  "}}, "x", loc)
    assert.False(t, isSameToken(a, c), "trivia text participates in sameness")

    d := NewToken(TK_KEYWORD, []Trivia{{TV_SPACE, " "}}, "x", loc)
    assert.False(t, isSameToken(a, d))
}
