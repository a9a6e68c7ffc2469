package upload

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/boxvault/boxvault/pkg/types"
)

// hashBlockSize bounds memory while digesting large box files.
const hashBlockSize = 64 * 1024

func newHasher(algo types.ChecksumType) (hash.Hash, error) {
	switch algo {
	case types.ChecksumMD5:
		return md5.New(), nil
	case types.ChecksumSHA1:
		return sha1.New(), nil
	case types.ChecksumSHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum type: %s", algo)
	}
}

// Digest streams r in fixed-size blocks and returns the hex digest for
// the given algorithm.
func Digest(r io.Reader, algo types.ChecksumType) (string, error) {
	h, err := newHasher(algo)
	if err != nil {
		return "", err
	}

	buf := make([]byte, hashBlockSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify digests r and compares against want, returning a
// ChecksumMismatchError on disagreement.
func Verify(r io.Reader, algo types.ChecksumType, want string) error {
	got, err := Digest(r, algo)
	if err != nil {
		return err
	}
	if got != want {
		return &ChecksumMismatchError{
			Algorithm: string(algo),
			Got:       got,
			Want:      want,
		}
	}
	return nil
}
