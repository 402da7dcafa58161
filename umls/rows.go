package umls

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// rowReader reads RRF rows one line at a time. A row longer than maxLine
// is drained and reported as ErrMalformedRow so the caller can skip it and
// keep reading.
type rowReader struct {
	r    *bufio.Reader
	buf  []byte
	line int
}

func newRowReader(r io.Reader) *rowReader {
	return &rowReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Line returns the 1-based number of the row last returned by Next.
func (rr *rowReader) Line() int { return rr.line }

// Next returns the next row without its line terminator, or io.EOF once
// the input is exhausted.
func (rr *rowReader) Next() (string, error) {
	rr.buf = rr.buf[:0]
	read, tooLong := false, false
	for {
		chunk, err := rr.r.ReadSlice('\n')
		if len(chunk) > 0 {
			read = true
			if !tooLong && len(rr.buf)+len(chunk) > maxLine+2 {
				tooLong = true
				rr.buf = rr.buf[:0]
			}
			if !tooLong {
				rr.buf = append(rr.buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		if !read {
			return "", io.EOF
		}

		rr.line++
		row := bytes.TrimSuffix(rr.buf, []byte{'\n'})
		row = bytes.TrimSuffix(row, []byte{'\r'})
		if tooLong || len(row) > maxLine {
			return "", fmt.Errorf("%w: line %d exceeds %d bytes", ErrMalformedRow, rr.line, maxLine)
		}
		return string(row), nil
	}
}
