package wire

import (
	"bufio"
	"bytes"
	"testing"
	"testing/iotest"

	"github.com/lor00x/goldap/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sql2ldap/sql2ldap/internal/ldapresult"
)

func encodedBindResponse(t *testing.T, messageID int) []byte {
	t.Helper()
	msg := message.NewLDAPMessageWithProtocolOp(NewBindResponse(ldapresult.Success))
	msg.SetMessageID(messageID)
	data, err := msg.Write()
	require.NoError(t, err)
	return data.Bytes()
}

func TestReadLDAPMessageRoundTrip(t *testing.T) {
	raw := encodedBindResponse(t, 7)

	msg, err := ReadLDAPMessage(bufio.NewReader(bytes.NewReader(raw)))
	require.NoError(t, err)
	assert.Equal(t, 7, int(msg.MessageID()))
	_, ok := msg.ProtocolOp().(message.BindResponse)
	assert.True(t, ok, "expected a BindResponse, got %T", msg.ProtocolOp())
}

func TestReadLDAPMessageHandlesFragmentedReads(t *testing.T) {
	// A frame arriving one byte per Read must still decode: the reader has
	// to keep pulling until the declared BER length is buffered.
	raw := encodedBindResponse(t, 3)

	r := bufio.NewReader(iotest.OneByteReader(bytes.NewReader(raw)))
	msg, err := ReadLDAPMessage(r)
	require.NoError(t, err)
	assert.Equal(t, 3, int(msg.MessageID()))
}

func TestReadLDAPMessageBackToBackFrames(t *testing.T) {
	raw := append(encodedBindResponse(t, 1), encodedBindResponse(t, 2)...)

	r := bufio.NewReader(bytes.NewReader(raw))
	first, err := ReadLDAPMessage(r)
	require.NoError(t, err)
	second, err := ReadLDAPMessage(r)
	require.NoError(t, err)
	assert.Equal(t, 1, int(first.MessageID()))
	assert.Equal(t, 2, int(second.MessageID()))
}

func TestReadLDAPMessageRejectsOversizedLengthEncoding(t *testing.T) {
	// 0x85 claims five length bytes; anything past four is rejected before
	// a single content byte is read.
	_, err := ReadLDAPMessage(bufio.NewReader(bytes.NewReader([]byte{0x30, 0x85, 0x01, 0x02, 0x03, 0x04, 0x05})))
	require.Error(t, err)
}

func TestReadLDAPMessageTruncatedFrame(t *testing.T) {
	_, err := ReadLDAPMessage(bufio.NewReader(bytes.NewReader([]byte{0x30, 0x05, 0x02})))
	require.Error(t, err)
}

func TestWriteLDAPMessageMatchesEncoding(t *testing.T) {
	msg := message.NewLDAPMessageWithProtocolOp(NewSearchResultDone(ldapresult.Success))
	msg.SetMessageID(9)

	var buf bytes.Buffer
	require.NoError(t, WriteLDAPMessage(&buf, msg))

	decoded, err := ReadLDAPMessage(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, 9, int(decoded.MessageID()))
	_, ok := decoded.ProtocolOp().(message.SearchResultDone)
	assert.True(t, ok, "expected a SearchResultDone, got %T", decoded.ProtocolOp())
}
