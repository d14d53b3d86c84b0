package transport

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// receiveLine returns the bytes up to the next newline, without it. Blank
// lines are skipped. Bytes after the newline stay buffered.
func (c *Conn) receiveLine() ([]byte, error) {
	var msg []byte
	for {
		chunk, err := c.reader.ReadSlice('\n')
		msg = append(msg, chunk...)
		if len(msg) > c.cfg.MaxMessageBytes+1 {
			return nil, ErrMessageTooLarge
		}

		switch {
		case err == nil:
			line := bytes.TrimRight(msg, "\r\n")
			if len(bytes.TrimSpace(line)) == 0 {
				msg = msg[:0]
				continue
			}
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(bytes.TrimSpace(msg)) > 0:
			return nil, io.ErrUnexpectedEOF
		default:
			return nil, err
		}
	}
}

// receiveChunked reads ChunkSize bytes at a time and stops after the first
// read that returns fewer bytes than requested.
func (c *Conn) receiveChunked() ([]byte, error) {
	var msg []byte
	chunk := make([]byte, c.cfg.ChunkSize)
	for {
		n, err := c.conn.Read(chunk)
		msg = append(msg, chunk[:n]...)
		if len(msg) > c.cfg.MaxMessageBytes {
			return nil, ErrMessageTooLarge
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(msg) > 0 {
				return msg, nil
			}
			return nil, err
		}
		if n < c.cfg.ChunkSize {
			return msg, nil
		}
	}
}
