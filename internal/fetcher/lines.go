package fetcher

import (
	"bufio"
	"io"
)

// lineReader splits input on "\n", "\r\n" and a lone "\r". Lines have no length limit.
type lineReader struct {
	br  *bufio.Reader
	buf []byte
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{br: bufio.NewReaderSize(r, 64*1024)}
}

// next returns the next line without its terminator. It returns io.EOF once
// the input is exhausted; a final line without a terminator is still returned.
func (lr *lineReader) next() (string, error) {
	lr.buf = lr.buf[:0]
	for {
		b, err := lr.br.ReadByte()
		if err != nil {
			if err == io.EOF && len(lr.buf) > 0 {
				return string(lr.buf), nil
			}
			return "", err
		}
		switch b {
		case '\n':
			return string(lr.buf), nil
		case '\r':
			if next, err := lr.br.Peek(1); err == nil && next[0] == '\n' {
				_, _ = lr.br.ReadByte()
			}
			return string(lr.buf), nil
		}
		lr.buf = append(lr.buf, b)
	}
}
