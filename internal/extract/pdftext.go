package extract

import (
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// ContentStreamText extracts the strings shown by text operators (Tj, TJ, ' and ")
// from a decoded PDF page content stream. Line breaks follow the positioning
// operators, so the result is readable but carries no layout.
func ContentStreamText(content []byte) string {
	s := &contentScanner{data: content}
	var (
		out      strings.Builder
		line     strings.Builder
		pending  []string
		operands []float64
		inArray  bool
	)

	flushLine := func() {
		text := collapseSpaces(line.String())
		if text != "" {
			out.WriteString(text)
			out.WriteByte('\n')
		}
		line.Reset()
	}

	for {
		tok, kind, ok := s.next()
		if !ok {
			break
		}

		switch kind {
		case tokString:
			pending = append(pending, decodePDFString(tok))
		case tokArrayStart:
			inArray = true
		case tokArrayEnd:
			inArray = false
		case tokNumber:
			v, _ := strconv.ParseFloat(string(tok), 64)
			// Large negative kerning inside TJ arrays usually stands in for a space
			if inArray && v <= -200 {
				pending = append(pending, " ")
			}
			operands = append(operands, v)
		case tokOperator:
			switch string(tok) {
			case "Tj", "TJ":
				line.WriteString(strings.Join(pending, ""))
			case "'", "\"":
				flushLine()
				line.WriteString(strings.Join(pending, ""))
			case "T*":
				flushLine()
			case "Td", "TD":
				if len(operands) >= 2 && operands[len(operands)-1] != 0 {
					flushLine()
				} else if line.Len() > 0 {
					line.WriteByte(' ')
				}
			case "Tm", "ET":
				flushLine()
			}
			pending = pending[:0]
			operands = operands[:0]
		}
	}
	flushLine()

	return strings.TrimSpace(out.String())
}

type tokenKind int

const (
	tokOther tokenKind = iota
	tokString
	tokNumber
	tokOperator
	tokArrayStart
	tokArrayEnd
)

type contentScanner struct {
	data []byte
	pos  int
}

func isPDFWhitespace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isPDFDelimiter(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

// next returns the next token; strings are returned as raw decoded bytes
func (s *contentScanner) next() ([]byte, tokenKind, bool) {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		switch {
		case isPDFWhitespace(c):
			s.pos++
		case c == '%':
			for s.pos < len(s.data) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
		case c == '(':
			s.pos++
			return s.literalString(), tokString, true
		case c == '<':
			if s.pos+1 < len(s.data) && s.data[s.pos+1] == '<' {
				s.pos += 2
				return []byte("<<"), tokOther, true
			}
			s.pos++
			return s.hexString(), tokString, true
		case c == '>':
			s.pos++
			if s.pos < len(s.data) && s.data[s.pos] == '>' {
				s.pos++
			}
			return []byte(">>"), tokOther, true
		case c == '[':
			s.pos++
			return []byte("["), tokArrayStart, true
		case c == ']':
			s.pos++
			return []byte("]"), tokArrayEnd, true
		case c == '/':
			s.pos++
			start := s.pos
			s.skipRegular()
			return s.data[start:s.pos], tokOther, true
		case c == '{' || c == '}' || c == ')':
			s.pos++
		default:
			start := s.pos
			s.skipRegular()
			tok := s.data[start:s.pos]
			if _, err := strconv.ParseFloat(string(tok), 64); err == nil {
				return tok, tokNumber, true
			}
			return tok, tokOperator, true
		}
	}
	return nil, tokOther, false
}

func (s *contentScanner) skipRegular() {
	for s.pos < len(s.data) && !isPDFWhitespace(s.data[s.pos]) && !isPDFDelimiter(s.data[s.pos]) {
		s.pos++
	}
}

// literalString reads a (...) string after the opening parenthesis, handling
// nesting and escape sequences including three-digit octal codes
func (s *contentScanner) literalString() []byte {
	var buf []byte
	depth := 1
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= len(s.data) {
				return buf
			}
			e := s.data[s.pos]
			s.pos++
			switch e {
			case 'n':
				buf = append(buf, '\n')
			case 'r':
				buf = append(buf, '\r')
			case 't':
				buf = append(buf, '\t')
			case 'b':
				buf = append(buf, '\b')
			case 'f':
				buf = append(buf, '\f')
			case '\r':
				if s.pos < len(s.data) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && s.pos < len(s.data) && s.data[s.pos] >= '0' && s.data[s.pos] <= '7'; i++ {
						v = v*8 + int(s.data[s.pos]-'0')
						s.pos++
					}
					buf = append(buf, byte(v))
				} else {
					buf = append(buf, e)
				}
			}
		case '(':
			depth++
			buf = append(buf, c)
		case ')':
			depth--
			if depth == 0 {
				return buf
			}
			buf = append(buf, c)
		default:
			buf = append(buf, c)
		}
	}
	return buf
}

// hexString reads a <...> string after the opening bracket
func (s *contentScanner) hexString() []byte {
	var digits []byte
	for s.pos < len(s.data) && s.data[s.pos] != '>' {
		c := s.data[s.pos]
		if !isPDFWhitespace(c) {
			digits = append(digits, c)
		}
		s.pos++
	}
	if s.pos < len(s.data) {
		s.pos++
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	decoded, err := hex.DecodeString(string(digits))
	if err != nil {
		return nil
	}
	return decoded
}

// decodePDFString converts raw string bytes to text: UTF-16BE when a byte order
// mark is present, otherwise Windows-1252 (the common simple font encoding).
// Control characters are replaced with spaces.
func decodePDFString(raw []byte) string {
	var text string
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		decoded, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(raw)
		if err == nil {
			text = string(decoded)
		}
	} else {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
		if err == nil {
			text = string(decoded)
		}
	}

	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		if r < 32 || r == 0x7F || r == 0xFFFD {
			return ' '
		}
		return r
	}, text)
}

// collapseSpaces trims and squeezes runs of spaces, tidying spacing before punctuation
func collapseSpaces(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	for _, p := range []string{".", ",", "!", "?", ";", ":"} {
		text = strings.ReplaceAll(text, " "+p, p)
	}
	return text
}
