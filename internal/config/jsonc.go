package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// stripJSONC blanks comments and trailing commas so the result is plain
// JSON. Every byte keeps its offset and newlines survive, so decoder errors
// point at the original line and column.
func stripJSONC(content string) (string, error) {
	out := []byte(content)
	comma := -1

	blank := func(from, to int) {
		for i := from; i < to; i++ {
			if out[i] != '\n' && out[i] != '\r' {
				out[i] = ' '
			}
		}
	}

	for i := 0; i < len(out); i++ {
		switch ch := out[i]; {
		case ch == '"':
			end, err := skipString(content, i)
			if err != nil {
				return "", err
			}
			comma = -1
			i = end
		case ch == '/' && i+1 < len(out) && out[i+1] == '/':
			end := strings.IndexAny(content[i:], "\r\n")
			if end < 0 {
				end = len(out) - i
			}
			blank(i, i+end)
			i += end - 1
		case ch == '/' && i+1 < len(out) && out[i+1] == '*':
			end := strings.Index(content[i+2:], "*/")
			if end < 0 {
				return "", errors.New("unterminated block comment in JSONC")
			}
			blank(i, i+2+end+2)
			i += 2 + end + 1
		case ch == ' ', ch == '\t', ch == '\n', ch == '\r':
		case ch == '}', ch == ']':
			if comma >= 0 {
				out[comma] = ' '
			}
			comma = -1
		case ch == ',':
			comma = i
		default:
			comma = -1
		}
	}
	return string(out), nil
}

// skipString returns the index of the quote closing the string opened at
// start.
func skipString(content string, start int) (int, error) {
	for i := start + 1; i < len(content); i++ {
		switch content[i] {
		case '\\':
			i++
		case '"':
			return i, nil
		}
	}
	return 0, errors.New("unterminated string in JSONC")
}

// rejectTrailingData fails when anything but whitespace follows the first
// value.
func rejectTrailingData(decoder *json.Decoder) error {
	_, err := decoder.Token()
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case err == nil:
		return errors.New("multiple JSON values are not allowed")
	default:
		return err
	}
}

// locateDecodeError prefixes syntax and type errors with their position.
func locateDecodeError(content string, err error) error {
	var offset int64
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	default:
		return err
	}
	line, col := lineColumn(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

// lineColumn maps a decoder offset (bytes consumed) to a 1-based position.
func lineColumn(content string, offset int64) (int, int) {
	limit := min(int(offset), len(content)) - 1
	if limit < 0 {
		limit = 0
	}
	prefix := content[:limit]
	return strings.Count(prefix, "\n") + 1, limit - strings.LastIndexByte(prefix, '\n')
}
