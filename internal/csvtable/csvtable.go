// Package csvtable reads line-oriented CSV text into tables of string fields.
//
// Quoting follows the Excel dialect: a field may be wrapped in double quotes,
// inside which commas are literal and a doubled quote ("") stands for a single
// quote character. Malformed quoting never fails; it degrades according to the
// tokenizer state table (see ParseRow).
package csvtable

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// maxLineSize bounds a single line accepted by Read.
const maxLineSize = 1 << 20

// Row is an ordered sequence of fields. A Row always has at least one field.
type Row []string

// Table is an ordered sequence of rows, one per line read from the source.
type Table []Row

type parserState int

const (
	stateUnquoted    parserState = iota // outside of quotes
	stateQuoted                         // inside a quoted field
	stateQuotedQuote                    // a quote was seen inside a quoted field
)

// ParseRow splits one line of text into fields.
//
// A character following a closing quote that is neither a comma nor another
// quote is dropped and parsing continues unquoted in the same field, so
// `"ab"c,d` yields ["ab", "d"].
func ParseRow(line string) Row {
	var (
		state parserState
		field strings.Builder
		row   Row
	)

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch state {
		case stateUnquoted:
			switch c {
			case ',':
				row = append(row, field.String())
				field.Reset()
			case '"':
				state = stateQuoted
			default:
				field.WriteByte(c)
			}

		case stateQuoted:
			switch c {
			case '"':
				state = stateQuotedQuote
			default:
				field.WriteByte(c)
			}

		case stateQuotedQuote:
			switch c {
			case ',':
				row = append(row, field.String())
				field.Reset()
				state = stateUnquoted
			case '"':
				field.WriteByte('"')
				state = stateQuoted
			default:
				// TODO: confirm whether trailing text after a closing quote
				// should be kept; it is discarded for now.
				state = stateUnquoted
			}
		}
	}

	return append(row, field.String())
}

// Read reads r a line at a time until it is exhausted and tokenizes every
// line with ParseRow. Both LF and CRLF line endings are accepted.
//
// A read failure stops reading. The rows read up to that point are returned
// together with the error; the failed read itself contributes no row.
func Read(r io.Reader) (Table, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var table Table
	for scanner.Scan() {
		table = append(table, ParseRow(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return table, fmt.Errorf("reading line %d: %w", len(table)+1, err)
	}

	return table, nil
}
