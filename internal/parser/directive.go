package parser

import (
	"cx/internal/diagnostics"
	"cx/internal/includes"
	"cx/internal/token"
)

// directive implements `'#' ('include' '<' path '>' | 'warn' string)`
// (spec.md §4.5). The leading '#' is still the current token on entry.
func (p *Parser) directive() {
	p.advance() // '#'
	if !p.at(token.Ident) {
		p.error(diagnostics.ErrUnexpectedToken)
		p.resync(stmtFollow, declStart)
		return
	}
	name := p.tok.Lexeme
	p.advance()
	switch name {
	case "include":
		p.includeDirective()
	case "warn":
		p.warnDirective()
	default:
		p.error(diagnostics.ErrUnexpectedToken)
		p.resync(stmtFollow, declStart)
	}
}

// includeDirective resolves '<' path '>' against CX_STDLIB, runs a nested
// library-mode parser over it, and merges its declarations into the
// current global scope. spec.md §4.5: "opens a nested parser on a path
// resolved against a standard-library environment variable, runs it in
// 'library' mode ..., then restores the current line counter ... and
// resumes."
func (p *Parser) includeDirective() {
	line := p.tok.Line
	if !p.expect(token.Lt, diagnostics.ErrUnexpectedToken) {
		return
	}
	path := ""
	for !p.at(token.Gt) && !p.at(token.EOF) && !p.at(token.Semicolon) {
		path += p.tok.Lexeme
		p.advance()
	}
	if !p.expect(token.Gt, diagnostics.ErrUnexpectedToken) {
		return
	}
	if path == "" {
		p.error(diagnostics.ErrLoadingLibrary)
		return
	}

	if p.seenInclude[path] {
		return // already merged; #include is idempotent, not an error
	}
	p.seenInclude[path] = true

	resolved, source, err := includes.Resolve(p.includeDir, path)
	if err != nil {
		p.diag.Parse(diagnostics.ErrLoadingLibrary, line)
		return
	}
	if p.seenInclude[resolved] {
		return
	}
	p.seenInclude[resolved] = true

	savedLine := p.tok.Line
	lib := newLibraryParser(p, source)
	for !lib.at(token.EOF) {
		lib.topLevel()
	}
	p.buf.SetLine(savedLine)
}

// warnDirective implements `'warn' string-literal`: it reports to the
// diagnostic sink without counting against the syntax-error threshold.
func (p *Parser) warnDirective() {
	line := p.tok.Line
	if !p.at(token.StringLit) {
		p.error(diagnostics.ErrUnterminatedString)
		return
	}
	msg := p.tok.Lexeme
	p.advance()
	p.diag.Warn(msg, line)
}
