// Package langs provides the grammar file conventions shared by the manifest
// loader, the build step, the watcher and the artifact detector.
//
// # Single Source of Truth
//
// Source classification (lexer, parser, combined), the component list and
// the generated entry-file naming rule live here so that every component
// derives the same file names from the same grammar.
//
// The rules are DETERMINISTIC and purely name-based; grammar file contents
// are never inspected.
package langs

import (
	"path/filepath"
	"strings"
)

// GrammarExt is the extension of grammar definition files.
const GrammarExt = ".g4"

// Kind classifies a grammar source file.
type Kind string

const (
	KindLexer    Kind = "lexer"
	KindParser   Kind = "parser"
	KindCombined Kind = "combined"
)

// Component is one generated artifact family.
type Component string

const (
	Lexer    Component = "Lexer"
	Parser   Component = "Parser"
	Listener Component = "Listener"
	Visitor  Component = "Visitor"
)

// Components lists every component in table/bundle order.
var Components = []Component{Lexer, Parser, Listener, Visitor}

// FileName returns the lowercase output name of the component ("lexer").
func (c Component) FileName() string {
	return strings.ToLower(string(c))
}

// Required reports whether a missing generated entry for c is fatal.
// Listener and visitor are emitted alongside a parser but are optional.
func (c Component) Required() bool {
	return c == Lexer || c == Parser
}

// IgnoredDirs contains directory prefixes to skip during scanning/watching.
//
// Note: Prefix matching means "." matches ".git", ".github", etc.
var IgnoredDirs = []string{
	".",            // Hidden directories (.git, .github)
	"node_modules", // Node.js dependencies
	"target",       // Maven build output in grammar directories
	"examples",     // Grammar example inputs
	"_scripts",     // Upstream helper scripts
}

// IsIgnoredDir reports whether a directory name matches an ignored prefix.
func IsIgnoredDir(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	for _, prefix := range IgnoredDirs {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// IsGrammarFile reports whether path names a grammar definition.
func IsGrammarFile(path string) bool {
	return filepath.Ext(path) == GrammarExt
}

// Stem returns the grammar file name without directory and extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Classify determines a source's kind from its file name:
// "*Lexer.g4" is a lexer, "*Parser.g4" a parser, anything else combined.
func Classify(path string) Kind {
	stem := Stem(path)
	switch {
	case strings.HasSuffix(stem, string(Lexer)) && stem != string(Lexer):
		return KindLexer
	case strings.HasSuffix(stem, string(Parser)) && stem != string(Parser):
		return KindParser
	default:
		return KindCombined
	}
}

// EntryName returns the generated entry file stem for a component of the
// grammar whose file stem is stem: <GrammarName><Component>, where a lexer or
// parser grammar already named after its component is used as-is.
//
//	EntryName("JSON", Lexer)         == "JSONLexer"
//	EntryName("JavaLexer", Lexer)    == "JavaLexer"
//	EntryName("JavaParser", Visitor) == "JavaParserVisitor"
func EntryName(stem string, c Component) string {
	if (c == Lexer || c == Parser) && strings.HasSuffix(stem, string(c)) && stem != string(c) {
		return stem
	}
	return stem + string(c)
}
