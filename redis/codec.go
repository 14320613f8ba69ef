// Copyright 2026 The Hearty Rabbit Authors
// SPDX-License-Identifier: Apache-2.0

package redis

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// appendCommand appends the RESP encoding of one command to buf: an
// array of bulk strings, each length-prefixed and therefore binary
// safe. This is the only request encoding the store accepts for
// client commands.
func appendCommand(buf []byte, args [][]byte) []byte {
	buf = append(buf, '*')
	buf = strconv.AppendInt(buf, int64(len(args)), 10)
	buf = append(buf, '\r', '\n')
	for _, arg := range args {
		buf = append(buf, '$')
		buf = strconv.AppendInt(buf, int64(len(arg)), 10)
		buf = append(buf, '\r', '\n')
		buf = append(buf, arg...)
		buf = append(buf, '\r', '\n')
	}
	return buf
}

// encodeArgs converts command arguments to their byte representation.
// Supported types: string, []byte, and the integer types the domain
// layers actually pass (key TTLs, cursors, numkeys counts).
func encodeArgs(args []any) ([][]byte, error) {
	encoded := make([][]byte, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case string:
			encoded[i] = []byte(v)
		case []byte:
			encoded[i] = v
		case int:
			encoded[i] = strconv.AppendInt(nil, int64(v), 10)
		case int64:
			encoded[i] = strconv.AppendInt(nil, v, 10)
		case uint64:
			encoded[i] = strconv.AppendUint(nil, v, 10)
		default:
			return nil, fmt.Errorf("redis: unsupported argument type %T at position %d", arg, i)
		}
	}
	return encoded, nil
}

// Decoder incrementally parses RESP replies from a byte stream. It
// tolerates replies split across arbitrarily many read chunks: the
// underlying bufio.Reader simply blocks until the next chunk arrives.
type Decoder struct {
	reader *bufio.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: bufio.NewReader(r)}
}

// Decode reads and returns the next complete reply. An io error from
// the underlying stream is returned as-is; malformed RESP is reported
// as an error wrapping ErrProtocol. Decode never returns a partial
// reply.
func (d *Decoder) Decode() (Reply, error) {
	line, err := d.readLine()
	if err != nil {
		return Reply{}, err
	}
	if len(line) == 0 {
		return Reply{}, fmt.Errorf("%w: empty reply line", ErrProtocol)
	}

	marker, rest := line[0], line[1:]
	switch marker {
	case '+':
		return statusReply(string(rest)), nil

	case '-':
		return errorReply(string(rest)), nil

	case ':':
		n, err := strconv.ParseInt(string(rest), 10, 64)
		if err != nil {
			return Reply{}, fmt.Errorf("%w: bad integer %q", ErrProtocol, rest)
		}
		return integerReply(n), nil

	case '$':
		length, err := strconv.ParseInt(string(rest), 10, 64)
		if err != nil {
			return Reply{}, fmt.Errorf("%w: bad bulk length %q", ErrProtocol, rest)
		}
		if length < 0 {
			return Reply{}, nil // nil bulk string
		}
		payload := make([]byte, length+2)
		if _, err := io.ReadFull(d.reader, payload); err != nil {
			return Reply{}, err
		}
		if payload[length] != '\r' || payload[length+1] != '\n' {
			return Reply{}, fmt.Errorf("%w: bulk string missing terminator", ErrProtocol)
		}
		return stringReply(payload[:length]), nil

	case '*':
		count, err := strconv.ParseInt(string(rest), 10, 64)
		if err != nil {
			return Reply{}, fmt.Errorf("%w: bad array length %q", ErrProtocol, rest)
		}
		if count < 0 {
			return Reply{}, nil // nil array (aborted EXEC)
		}
		elems := make([]Reply, count)
		for i := range elems {
			elem, err := d.Decode()
			if err != nil {
				return Reply{}, err
			}
			elems[i] = elem
		}
		return arrayReply(elems), nil
	}
	return Reply{}, fmt.Errorf("%w: unknown reply marker %q", ErrProtocol, marker)
}

// readLine reads one CRLF-terminated line, without the terminator.
func (d *Decoder) readLine() ([]byte, error) {
	line, err := d.reader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, fmt.Errorf("%w: line missing CRLF terminator", ErrProtocol)
	}
	return line[:len(line)-2], nil
}
