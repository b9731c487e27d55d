package client

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// This module parses the interactive command language:
//
//   get <key>
//   put <key> <value>
//   del <key>
//
// Keys and values are bare words or quoted strings.

var cmdLexer = lexer.MustSimple([]lexer.Rule{
	{`Keyword`, `\b(get|put|del)\b`, nil},
	{`String`, `"(\\"|[^"])*"`, nil},
	{`Word`, `[^\s"]+`, nil},
	{`whitespace`, `\s+`, nil},
})

// Command is one parsed REPL line.
type Command struct {
	Get *GetCmd `  @@`
	Put *PutCmd `| @@`
	Del *DelCmd `| @@`
}

type GetCmd struct {
	Key Arg `"get" @@`
}

type PutCmd struct {
	Key Arg `"put" @@`
	Val Arg `@@`
}

type DelCmd struct {
	Key Arg `"del" @@`
}

// Arg is a bare word or a quoted string.
type Arg struct {
	Str  *string `  @String`
	Word *string `| @Word | @Keyword`
}

// Value returns the argument's text.
func (a Arg) Value() string {
	if a.Str != nil {
		return *a.Str
	}
	if a.Word != nil {
		return *a.Word
	}
	return ""
}

var cmdParser = participle.MustBuild(&Command{},
	participle.Lexer(cmdLexer),
	participle.Unquote("String"),
)

// ParseCommand parses one command line.
func ParseCommand(line string) (*Command, error) {
	cmd := &Command{}
	err := cmdParser.ParseString("", line, cmd)
	return cmd, err
}
