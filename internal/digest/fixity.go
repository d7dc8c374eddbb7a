package digest

import (
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
)

// FixityError reports a computed digest that does not match the
// digest an input stream was declared to have.
type FixityError struct {
	Algorithm Algorithm
	Expected  string
	Actual    string
}

func (e *FixityError) Error() string {
	return fmt.Sprintf("digest: fixity check failed: expected %s digest %s, got %s", e.Algorithm, e.Expected, e.Actual)
}

// FixityCheckingReader wraps a source stream and a digest it is
// declared to produce. Reads are fed through the hasher as they pass
// through; on EOF the accumulated digest is compared against the
// declared one and a *FixityError is returned from the Read call that
// observed EOF if they differ. Closing the reader before EOF is
// reached never raises the fixity error - the caller only learns about
// a mismatch by reading the stream to completion.
type FixityCheckingReader struct {
	src       io.ReadCloser
	algorithm Algorithm
	declared  string
	hasher    hash.Hash
	done      bool
	err       error
}

// NewFixityCheckingReader wraps src, checking its content against
// declared once src is fully read.
func NewFixityCheckingReader(src io.ReadCloser, algorithm Algorithm, declared string) (*FixityCheckingReader, error) {
	h, err := New(algorithm)
	if err != nil {
		return nil, err
	}
	return &FixityCheckingReader{
		src:       src,
		algorithm: algorithm,
		declared:  declared,
		hasher:    h,
	}, nil
}

func (r *FixityCheckingReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}

	n, err := r.src.Read(p)
	if n > 0 {
		r.hasher.Write(p[:n])
	}

	if err == nil {
		return n, nil
	}
	if !errors.Is(err, io.EOF) {
		return n, err
	}

	r.done = true
	if fixityErr := r.CheckFixity(); fixityErr != nil {
		r.err = fixityErr
		return n, fixityErr
	}
	return n, io.EOF
}

// Close closes the underlying stream. It never returns or surfaces a
// fixity error - a reader that stops early cares only about I/O
// errors, not about content it chose not to consume.
func (r *FixityCheckingReader) Close() error {
	return r.src.Close()
}

// CheckFixity compares the digest accumulated so far against the
// declared digest. It is safe to call after the stream has been fully
// read; calling it earlier checks a partial digest and will normally
// fail.
func (r *FixityCheckingReader) CheckFixity() error {
	actual := hex.EncodeToString(r.hasher.Sum(nil))
	if !Equal(actual, r.declared) {
		return &FixityError{Algorithm: r.algorithm, Expected: r.declared, Actual: actual}
	}
	return nil
}
