// Package wire reads and writes BER-encoded LDAP messages on a connection
// and builds the handful of response shapes this server sends, on top of
// github.com/lor00x/goldap/message.
package wire

import (
	"bufio"
	"fmt"
	"io"

	"github.com/lor00x/goldap/message"
)

// ReadLDAPMessage reads one BER-encoded LDAP message from r. Unlike a
// single conn.Read, it loops (via io.ReadFull) until the whole frame
// declared by the BER length is in hand, so a message split across TCP
// segments is not mistaken for a short/corrupt one.
func ReadLDAPMessage(r *bufio.Reader) (*message.LDAPMessage, error) {
	header, err := r.Peek(2)
	if err != nil {
		return nil, err
	}

	headerLen, contentLen, err := parseBERLength(r, header)
	if err != nil {
		return nil, err
	}

	total := headerLen + contentLen
	data := make([]byte, total)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read ldap message: %w", err)
	}

	bytes := message.NewBytes(0, data)
	msg, err := message.ReadLDAPMessage(bytes)
	if err != nil {
		return nil, fmt.Errorf("decode ldap message: %w", err)
	}
	return &msg, nil
}

// WriteLDAPMessage BER-encodes msg and writes it to w.
func WriteLDAPMessage(w io.Writer, msg *message.LDAPMessage) error {
	data, err := msg.Write()
	if err != nil {
		return fmt.Errorf("encode ldap message: %w", err)
	}
	if _, err := w.Write(data.Bytes()); err != nil {
		return fmt.Errorf("write ldap message: %w", err)
	}
	return nil
}

// parseBERLength reads the BER length following the tag byte already
// present in header, peeking further into r for the long-form length bytes
// if needed. Returns the header length (tag + length bytes) and the
// content length that follows it.
//
// BER length encoding:
//   - short form: 0xxxxxxx (0-127)
//   - long form: 1xxxxxxx, followed by that many big-endian length bytes
func parseBERLength(r *bufio.Reader, header []byte) (headerLen, contentLen int, err error) {
	lengthByte := header[1]

	if lengthByte&0x80 == 0 {
		return 2, int(lengthByte), nil
	}

	numLengthBytes := int(lengthByte & 0x7F)
	if numLengthBytes == 0 || numLengthBytes > 4 {
		return 0, 0, fmt.Errorf("invalid BER length encoding")
	}

	full, err := r.Peek(2 + numLengthBytes)
	if err != nil {
		return 0, 0, err
	}

	length := 0
	for i := 0; i < numLengthBytes; i++ {
		length = (length << 8) | int(full[2+i])
	}
	return 2 + numLengthBytes, length, nil
}
