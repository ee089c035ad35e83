//go:build lz4

package dircache

import (
	"bytes"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// init registers Lz4 when the module is built with `-tags lz4`. Builds
// without the tag never see tag "1" as valid, and deserializeEncoding
// rejects it as unregistered metadata rather than silently treating it as
// Plain.
func init() {
	registerEncoder(Lz4, encodeLz4)
}

func encodeLz4(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := lz4.NewWriter(&buf)

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("lz4 write: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 close: %w", err)
	}

	return buf.Bytes(), nil
}
