package plaintext

import (
	"bytes"
	"errors"
	"unicode/utf8"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode accepts UTF-8 text only.
func Decode(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !utf8.Valid(raw) {
		return "", domain.WrapError(domain.ErrUnsupportedSourceType, "decode plaintext", errors.New("file is not valid utf-8"))
	}
	return string(raw), nil
}
