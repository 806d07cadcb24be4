// Package morse maps text to morse symbols and plays them as timed
// tone and indicator pulses.
package morse

import (
	"strings"
	"unicode"
)

// Element is one mark of a symbol.
type Element byte

// Elements.
const (
	Dot  Element = '.'
	Dash Element = '-'
)

// Units returns the length of the element in dot durations.
func (e Element) Units() int {
	if e == Dash {
		return 3
	}
	return 1
}

// Symbol is the element sequence of a character, written with '.' and '-'.
type Symbol string

// Elements returns the elements of the symbol.
func (s Symbol) Elements() []Element {
	els := make([]Element, len(s))
	for n := 0; n < len(s); n++ {
		els[n] = Element(s[n])
	}
	return els
}

var (
	letterSymbols = [26]Symbol{
		".-", "-...", "-.-.", "-..", ".", "..-.", "--.", "....", "..", ".---",
		"-.-", ".-..", "--", "-.", "---", ".--.", "--.-", ".-.", "...", "-",
		"..-", "...-", ".--", "-..-", "-.--", "--..",
	}

	digitSymbols = [10]Symbol{
		"-----", ".----", "..---", "...--", "....-",
		".....", "-....", "--...", "---..", "----.",
	}

	punctuationSymbols = map[rune]Symbol{
		'.':  ".-.-.-",
		',':  "--..--",
		'?':  "..--..",
		';':  "-.-.-.",
		':':  "---...",
		'-':  "-....-",
		'/':  "-..-.",
		'\'': ".----.",
		'"':  ".-..-.",
		'_':  "..--.-",
		'+':  ".-.-.",
		'*':  "-..-",
		'=':  "-...-",
		')':  "-.--.-",
		'(':  "-.--.",
	}
)

// SymbolFor looks c up in the letter, digit and punctuation tables.
// Letters are case-insensitive. Space and anything else have no symbol.
func SymbolFor(c rune) (Symbol, bool) {
	switch {
	case c >= '0' && c <= '9':
		return digitSymbols[c-'0'], true
	case c < unicode.MaxASCII && unicode.IsLetter(c):
		if u := unicode.ToUpper(c); u >= 'A' && u <= 'Z' {
			return letterSymbols[u-'A'], true
		}
		return "", false
	}
	sym, ok := punctuationSymbols[c]
	return sym, ok
}

// Notation writes text in dot-dash notation: symbols separated by a
// space, words by " / ". Characters without a symbol are left out.
func Notation(text string) string {
	var b strings.Builder
	word := false
	for _, c := range text {
		if c == ' ' {
			if word {
				b.WriteString(" /")
				word = false
			}
			continue
		}
		sym, ok := SymbolFor(c)
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(string(sym))
		word = true
	}
	return strings.TrimSuffix(b.String(), " /")
}
