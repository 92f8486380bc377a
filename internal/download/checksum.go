package download

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// ErrUnsupportedChecksum is returned for digests whose length matches no
// known algorithm.
var ErrUnsupportedChecksum = errors.New("unsupported checksum")

// newHash picks the algorithm from the hex digest length and decodes it.
// Hex is accepted in either case.
func newHash(checksum string) (hash.Hash, []byte, error) {
	checksum = strings.TrimSpace(checksum)
	sum, err := hex.DecodeString(checksum)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %q is not hex", ErrUnsupportedChecksum, checksum)
	}

	switch len(sum) {
	case sha1.Size:
		return sha1.New(), sum, nil
	case sha256.Size:
		return sha256.New(), sum, nil
	case sha512.Size:
		return sha512.New(), sum, nil
	default:
		return nil, nil, fmt.Errorf("%w: %d byte digest", ErrUnsupportedChecksum, len(sum))
	}
}

// VerifyFile reports whether the file at path has the given digest.
func VerifyFile(path, checksum string) (bool, error) {
	h, want, err := newHash(checksum)
	if err != nil {
		return false, err
	}

	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return false, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return bytes.Equal(h.Sum(nil), want), nil
}

// SHA256 returns the lowercase hex SHA-256 of data.
func SHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
