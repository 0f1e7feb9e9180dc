package migrations

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/lineagedb/lineage/pkg/consts"
	"github.com/pkg/errors"
)

type (
	// Span is a half-open byte range [Start, End) into a migration file's
	// text. Spans let the rehash pass rewrite ids in place without
	// reformatting anything else in the file.
	Span struct {
		Start int
		End   int
	}

	// Statement is one statement from a migration body: its raw text
	// (without the trailing semicolon) and where it sits in the file.
	Statement struct {
		Text string
		Span Span
	}

	// Migration is the parsed form of one migration file.
	//
	// Statements excludes the optional `set message := '...'` statement;
	// the message is descriptive only and never participates in the id.
	Migration struct {
		// ID is the content hash recorded in the file ("m1...").
		ID string

		// Parent is the id this migration builds on, or "initial" for
		// the first migration in a chain.
		Parent string

		// Message is the optional free-text annotation, unquoted.
		Message string

		Statements []Statement

		// IDSpan and ParentSpan locate the two ids in the source text
		// so the rehash pass can rewrite them.
		IDSpan     Span
		ParentSpan Span
	}

	// File is a migration file on disk: the parsed migration plus the
	// name it was stored under.
	File struct {
		// Name is the file's base name within the migrations (or
		// fixups) directory.
		Name string

		// Sequence is the 5-digit ordinal from the file name. Zero for
		// fixup files, which are not sequenced.
		Sequence int

		// FixupTarget is the id after the "-" in a fixup file name;
		// empty for ordinary chain migrations.
		FixupTarget string

		Migration
	}
)

// StatementTexts returns the statement texts in order.
func (m *Migration) StatementTexts() []string {
	texts := make([]string, len(m.Statements))
	for i, s := range m.Statements {
		texts[i] = s.Text
	}

	return texts
}

// ExpectedID recomputes the migration's content hash from its parent and
// statements. A mismatch against the recorded ID means the file was edited
// after it was written.
func (m *Migration) ExpectedID() (string, error) {
	h := NewHasher(m.Parent)
	for _, stmt := range m.Statements {
		if err := h.AddStatement(stmt.Text); err != nil {
			return "", err
		}
	}

	return h.Sum(), nil
}

// Filename returns the canonical file name for a migration at the given
// position in the chain, e.g. "00002-m1vrz7u.edgeql".
func Filename(sequence int, id string) string {
	return fmt.Sprintf("%05d-%.7s%s", sequence, id, consts.MigrationExt)
}

// SequenceFromName extracts the 5-digit ordinal from a migration file name.
// Both the canonical "00002-m1vrz7u.edgeql" form and the bare legacy
// "00002.edgeql" form are recognized; ok is false for anything else.
func SequenceFromName(name string) (seq int, legacy, ok bool) {
	base, found := strings.CutSuffix(name, consts.MigrationExt)
	if !found {
		return 0, false, false
	}

	digits, _, hasSuffix := strings.Cut(base, "-")
	if len(digits) != 5 {
		return 0, false, false
	}

	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return 0, false, false
	}

	return n, !hasSuffix, true
}

// Parse parses the stored form of a migration:
//
//	CREATE MIGRATION <id> ONTO <parent> {
//	    <statement>;
//	    ...
//	};
//
// Nested braces inside statements are tracked, so object shapes and DDL
// blocks pass through untouched. A `set message := '<text>'` statement is
// captured into Message instead of Statements. Trailing content after the
// closing "};" is an error.
func Parse(src string) (*Migration, error) {
	tokens, err := Tokenize(src)
	if err != nil {
		return nil, err
	}

	p := &fileParser{src: src, tokens: tokens}
	return p.parse()
}

type fileParser struct {
	src    string
	tokens []lexer.Token
	pos    int
}

func (p *fileParser) parse() (*Migration, error) {
	m := &Migration{}

	if err := p.keyword("CREATE"); err != nil {
		return nil, err
	}
	if err := p.keyword("MIGRATION"); err != nil {
		return nil, err
	}

	id, span, err := p.ident("migration id")
	if err != nil {
		return nil, err
	}
	m.ID, m.IDSpan = id, span

	if err := p.keyword("ONTO"); err != nil {
		return nil, err
	}

	parent, span, err := p.ident("parent id")
	if err != nil {
		return nil, err
	}
	m.Parent, m.ParentSpan = parent, span

	if err := p.expect(symOpenBrace, "{"); err != nil {
		return nil, err
	}

	if err := p.body(m); err != nil {
		return nil, err
	}

	if err := p.expect(symSemicolon, ";"); err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, p.errorf("unexpected %q after closing \"};\"", p.tokens[p.pos].Value)
	}

	return m, nil
}

// body consumes statements up to and including the closing brace.
func (p *fileParser) body(m *Migration) error {
	for {
		tok, err := p.peek("statement or \"}\"")
		if err != nil {
			return err
		}

		if tok.Type == symCloseBrace {
			p.pos++
			return nil
		}

		if err := p.statement(m); err != nil {
			return err
		}
	}
}

// statement consumes one semicolon-terminated statement, tracking brace
// nesting. The recorded span covers the statement text without the
// terminating semicolon.
func (p *fileParser) statement(m *Migration) error {
	start := p.pos
	depth := 0

	for {
		tok, err := p.peek("\";\"")
		if err != nil {
			return err
		}

		switch tok.Type {
		case symOpenBrace:
			depth++
		case symCloseBrace:
			if depth == 0 {
				return p.errorf("unexpected \"}\" inside statement")
			}
			depth--
		case symSemicolon:
			if depth == 0 {
				end := p.pos
				p.pos++
				return p.record(m, p.tokens[start:end])
			}
		}

		p.pos++
	}
}

// record files a completed statement on the migration, diverting
// `set message := '...'` into the Message field.
func (p *fileParser) record(m *Migration, tokens []lexer.Token) error {
	if len(tokens) == 0 {
		// A bare ";" is tolerated and ignored.
		return nil
	}

	if len(tokens) == 4 &&
		tokens[0].Type == symIdent && strings.EqualFold(tokens[0].Value, "set") &&
		tokens[1].Type == symIdent && strings.EqualFold(tokens[1].Value, "message") &&
		tokens[2].Type == symAssign &&
		(tokens[3].Type == symString || tokens[3].Type == symDollar) {
		if m.Message != "" {
			return p.errorf("duplicate `set message` statement")
		}

		msg, err := unquote(tokens[3].Value)
		if err != nil {
			return err
		}
		m.Message = msg

		return nil
	}

	first, last := tokens[0], tokens[len(tokens)-1]
	span := Span{Start: first.Pos.Offset, End: last.Pos.Offset + len(last.Value)}
	m.Statements = append(m.Statements, Statement{
		Text: p.src[span.Start:span.End],
		Span: span,
	})

	return nil
}

func (p *fileParser) peek(want string) (lexer.Token, error) {
	if p.pos >= len(p.tokens) {
		return lexer.Token{}, errors.Errorf("unexpected end of file, expected %s", want)
	}

	return p.tokens[p.pos], nil
}

func (p *fileParser) keyword(word string) error {
	tok, err := p.peek(word)
	if err != nil {
		return err
	}
	if tok.Type != symIdent || !strings.EqualFold(tok.Value, word) {
		return p.errorf("expected %s, found %q", word, tok.Value)
	}

	p.pos++
	return nil
}

func (p *fileParser) ident(what string) (string, Span, error) {
	tok, err := p.peek(what)
	if err != nil {
		return "", Span{}, err
	}
	if tok.Type != symIdent {
		return "", Span{}, p.errorf("expected %s, found %q", what, tok.Value)
	}

	p.pos++
	return tok.Value, Span{Start: tok.Pos.Offset, End: tok.Pos.Offset + len(tok.Value)}, nil
}

func (p *fileParser) expect(sym lexer.TokenType, display string) error {
	tok, err := p.peek(display)
	if err != nil {
		return err
	}
	if tok.Type != sym {
		return p.errorf("expected %q, found %q", display, tok.Value)
	}

	p.pos++
	return nil
}

func (p *fileParser) errorf(format string, args ...any) error {
	pos := ""
	if p.pos < len(p.tokens) {
		t := p.tokens[p.pos]
		pos = fmt.Sprintf(" at %d:%d", t.Pos.Line, t.Pos.Column)
	}

	return errors.Errorf("parse error%s: %s", pos, fmt.Sprintf(format, args...))
}

// unquote strips the delimiters from a string token and resolves backslash
// escapes. Dollar-quoted strings are verbatim.
func unquote(raw string) (string, error) {
	if strings.HasPrefix(raw, "$$") {
		return strings.TrimSuffix(strings.TrimPrefix(raw, "$$"), "$$"), nil
	}
	if len(raw) < 2 {
		return "", errors.Errorf("malformed string literal %q", raw)
	}

	quote := raw[0]
	body := raw[1 : len(raw)-1]

	var sb strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' {
			sb.WriteByte(c)
			continue
		}

		i++
		if i >= len(body) {
			return "", errors.Errorf("dangling escape in string literal %q", raw)
		}

		switch body[i] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case '\\', quote:
			sb.WriteByte(body[i])
		default:
			sb.WriteByte('\\')
			sb.WriteByte(body[i])
		}
	}

	return sb.String(), nil
}
