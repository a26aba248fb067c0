package jir

import (
	"fmt"
	"strings"
)

type tokenKind uint8

const (
	tokIdent  tokenKind = iota // names, keywords and dotted class names
	tokSig                     // <C: R m(P)> or <C: T f>, also <init>
	tokNumber                  // 12, -3L, 1.5F
	tokString                  // "abc"
	tokChar                    // 'a'
	tokAt                      // @this, @parameter0, @caughtexception
	tokPunct                   // ( ) { } , = := : . and operators
)

type token struct {
	kind tokenKind
	text string
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// tokenize splits one line into tokens.
func tokenize(line string) ([]token, error) {
	var toks []token
	valueLike := func() bool {
		if len(toks) == 0 {
			return false
		}
		last := toks[len(toks)-1]
		switch last.kind {
		case tokIdent, tokNumber, tokString, tokChar, tokSig:
			return true
		case tokPunct:
			return last.text == ")"
		}
		return false
	}

	for i := 0; i < len(line); {
		c := line[i]
		switch {
		case c == ' ' || c == '\t':
			i++

		case isIdentStart(c):
			j := i + 1
			for j < len(line) {
				if isIdentPart(line[j]) {
					j++
					continue
				}
				if line[j] == '.' && j+1 < len(line) && isIdentStart(line[j+1]) {
					j++
					continue
				}
				break
			}
			toks = append(toks, token{tokIdent, line[i:j]})
			i = j

		case c == '<' && i+1 < len(line) && isIdentStart(line[i+1]):
			depth, j := 0, i
			for ; j < len(line); j++ {
				if line[j] == '<' {
					depth++
				} else if line[j] == '>' {
					depth--
					if depth == 0 {
						break
					}
				}
			}
			if j == len(line) {
				return nil, fmt.Errorf("unterminated signature starting at column %d", i+1)
			}
			toks = append(toks, token{tokSig, line[i : j+1]})
			i = j + 1

		case isDigit(c) || (c == '-' && i+1 < len(line) && isDigit(line[i+1]) && !valueLike()):
			j := i + 1
			for j < len(line) && (isDigit(line[j]) || strings.IndexByte(".eE", line[j]) >= 0 ||
				((line[j] == '-' || line[j] == '+') && (line[j-1] == 'e' || line[j-1] == 'E'))) {
				j++
			}
			if j < len(line) && strings.IndexByte("LFDSB", line[j]) >= 0 {
				j++
			}
			toks = append(toks, token{tokNumber, line[i:j]})
			i = j

		case c == '"' || c == '\'':
			j := i + 1
			for j < len(line) && line[j] != c {
				if line[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(line) {
				return nil, fmt.Errorf("unterminated literal starting at column %d", i+1)
			}
			kind := tokString
			if c == '\'' {
				kind = tokChar
			}
			toks = append(toks, token{kind, line[i : j+1]})
			i = j + 1

		case c == '@':
			j := i + 1
			for j < len(line) && isIdentPart(line[j]) {
				j++
			}
			toks = append(toks, token{tokAt, line[i+1 : j]})
			i = j

		default:
			op := ""
			for _, cand := range []string{":=", "==", "!=", "<=", ">=", "(", ")", "{", "}", ",", "=", ":", ".", "<", ">", "+", "-", "*", "/", "%", "&", "|", "^"} {
				if strings.HasPrefix(line[i:], cand) {
					op = cand
					break
				}
			}
			if op == "" {
				return nil, fmt.Errorf("unexpected character %q at column %d", c, i+1)
			}
			toks = append(toks, token{tokPunct, op})
			i += len(op)
		}
	}
	return toks, nil
}
