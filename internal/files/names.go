package files

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
)

// MaxTitleLength bounds node titles in bytes.
const MaxTitleLength = 255

var validate = validator.New()

// ValidateTitle checks that title can be used as a single path element.
// atRoot additionally rejects the reserved system directory name.
func ValidateTitle(title string, atRoot bool) error {
	if !utf8.ValidString(title) {
		return fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidName, title)
	}
	// validator's max counts runes; the on-disk limit is in bytes.
	if err := validate.Var(title, "required"); err != nil || len(title) > MaxTitleLength {
		return fmt.Errorf("%w: %q must be 1-%d bytes", ErrInvalidName, title, MaxTitleLength)
	}
	if title == "." || title == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, title)
	}
	if strings.ContainsAny(title, "/\\\x00") {
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, title)
	}
	if strings.TrimSpace(title) != title {
		return fmt.Errorf("%w: %q has leading or trailing whitespace", ErrInvalidName, title)
	}
	if atRoot && strings.EqualFold(title, SystemDirName) {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidName, title)
	}
	return nil
}

// sniffContentType reads just enough of r to detect its content type and
// returns a reader that yields the full, unconsumed stream.
func sniffContentType(r io.Reader) (string, io.Reader, error) {
	header := make([]byte, 3072)
	n, err := io.ReadFull(r, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, fmt.Errorf("reading content header: %w", err)
	}
	header = header[:n]
	mime := mimetype.Detect(header)
	return mime.String(), io.MultiReader(bytes.NewReader(header), r), nil
}
