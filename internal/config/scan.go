/*
 * MIT License
 *
 * Copyright (c) 2026 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package config

import (
	"fmt"
	"strings"
)

// block is one `name args { ... }` block, or a leaf directive with no children.
type block struct {
	name      string
	args      []string
	children  []*block
	directive bool
}

// scan tokenizes the raw config text into a flat list of tokens: words, `{`, `}`, `;`.
// Comments starting with `#` run to end of line. Quoted strings are not part of this
// bespoke grammar — directive arguments are bare words.
func scan(src string) []string {
	var toks []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}

	inComment := false
	for _, r := range src {
		switch {
		case inComment:
			if r == '\n' {
				inComment = false
			}
		case r == '#':
			flush()
			inComment = true
		case r == '{' || r == '}' || r == ';':
			flush()
			toks = append(toks, string(r))
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks
}

// parseBlocks builds a tree of blocks from the token stream. A directive is
// `word word... ;`; a block is `word word... { ... }`.
func parseBlocks(toks []string) ([]*block, error) {
	pos := 0
	var parse func() ([]*block, error)

	parse = func() ([]*block, error) {
		var out []*block
		var words []string

		for pos < len(toks) {
			t := toks[pos]
			switch t {
			case "}":
				pos++
				return out, nil
			case "{":
				pos++
				if len(words) == 0 {
					return nil, fmt.Errorf("config: unexpected '{' with no block name")
				}
				children, err := parse()
				if err != nil {
					return nil, err
				}
				out = append(out, &block{name: words[0], args: words[1:], children: children})
				words = nil
			case ";":
				pos++
				if len(words) == 0 {
					return nil, fmt.Errorf("config: unexpected ';' with no directive")
				}
				out = append(out, &block{name: words[0], args: words[1:], directive: true})
				words = nil
			default:
				words = append(words, t)
				pos++
			}
		}
		if len(words) != 0 {
			return nil, fmt.Errorf("config: unterminated directive %q", strings.Join(words, " "))
		}
		return out, nil
	}

	root, err := parse()
	if err != nil {
		return nil, err
	}
	if pos != len(toks) {
		return nil, fmt.Errorf("config: unexpected trailing '}'")
	}
	return root, nil
}
