package ldapserver

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/lor00x/goldap/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sql2ldap/sql2ldap/internal/wire"
)

// Hand-encoded BER frames. An LDAP bind request has no configuration-
// dependent parts, so fixed byte sequences keep these tests independent of
// any client library.
var (
	// message id 1, bind version 3, empty name, empty simple password
	anonymousBindID1 = []byte{
		0x30, 0x0c,
		0x02, 0x01, 0x01,
		0x60, 0x07,
		0x02, 0x01, 0x03,
		0x04, 0x00,
		0x80, 0x00,
	}
	// message id 2, same anonymous bind
	anonymousBindID2 = []byte{
		0x30, 0x0c,
		0x02, 0x01, 0x02,
		0x60, 0x07,
		0x02, 0x01, 0x03,
		0x04, 0x00,
		0x80, 0x00,
	}
	// message id 1, bind version 3, name "cn=admin", simple password "x"
	adminBindID1 = []byte{
		0x30, 0x15,
		0x02, 0x01, 0x01,
		0x60, 0x10,
		0x02, 0x01, 0x03,
		0x04, 0x08, 'c', 'n', '=', 'a', 'd', 'm', 'i', 'n',
		0x80, 0x01, 'x',
	}
)

func startTestServer(t *testing.T) net.Addr {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(listener, nil, "dc=example,dc=com", 2, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)
	t.Cleanup(func() {
		cancel()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer stopCancel()
		srv.Stop(stopCtx)
	})
	return listener.Addr()
}

func dialTestServer(t *testing.T, addr net.Addr) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return conn, bufio.NewReader(conn)
}

func TestServerAnswersAnonymousBind(t *testing.T) {
	addr := startTestServer(t)
	conn, reader := dialTestServer(t, addr)

	_, err := conn.Write(anonymousBindID1)
	require.NoError(t, err)

	msg, err := wire.ReadLDAPMessage(reader)
	require.NoError(t, err)
	assert.Equal(t, 1, int(msg.MessageID()))
	_, ok := msg.ProtocolOp().(message.BindResponse)
	require.True(t, ok, "expected a BindResponse, got %T", msg.ProtocolOp())
}

func TestServerRejectsNonAnonymousBindButKeepsConnection(t *testing.T) {
	addr := startTestServer(t)
	conn, reader := dialTestServer(t, addr)

	_, err := conn.Write(adminBindID1)
	require.NoError(t, err)

	first, err := wire.ReadLDAPMessage(reader)
	require.NoError(t, err)
	assert.Equal(t, 1, int(first.MessageID()))
	_, ok := first.ProtocolOp().(message.BindResponse)
	require.True(t, ok, "expected a BindResponse, got %T", first.ProtocolOp())

	// The connection must survive the rejected bind: a follow-up anonymous
	// bind on the same connection still gets answered.
	_, err = conn.Write(anonymousBindID2)
	require.NoError(t, err)

	second, err := wire.ReadLDAPMessage(reader)
	require.NoError(t, err)
	assert.Equal(t, 2, int(second.MessageID()))
}

func TestServerSequentialConnectionsReuseSlots(t *testing.T) {
	addr := startTestServer(t)

	// More connections than the worker cap of 2; closing each one frees
	// its slot for the next.
	for i := 0; i < 3; i++ {
		conn, reader := dialTestServer(t, addr)
		_, err := conn.Write(anonymousBindID1)
		require.NoError(t, err)
		msg, err := wire.ReadLDAPMessage(reader)
		require.NoError(t, err)
		assert.Equal(t, 1, int(msg.MessageID()))
		conn.Close()
	}
}
