package ldapconn

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/sql2ldap/sql2ldap/internal/ldapresult"
	"github.com/sql2ldap/sql2ldap/internal/wire"
)

func newTestConnection(t *testing.T) (*Connection, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(server, nil, "dc=example,dc=com", logger)
	return c, client
}

func TestHandleAbandonUnknownIDIsNoop(t *testing.T) {
	c, _ := newTestConnection(t)
	defer c.conn.Close()
	c.handleAbandon(42, c.logger)
}

func TestHandleAbandonCancelsInFlightSearch(t *testing.T) {
	c, _ := newTestConnection(t)
	defer c.conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	searchCtx, searchCancel := context.WithCancel(ctx)
	c.inFlight[7] = searchCancel

	c.handleAbandon(7, c.logger)

	select {
	case <-searchCtx.Done():
	default:
		t.Fatal("expected abandon to cancel the matching search context")
	}
	if _, stillTracked := c.inFlight[7]; stillTracked {
		t.Fatal("abandon should not itself remove the map entry; the search goroutine does")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	c, _ := newTestConnection(t)
	c.shutdown()
	c.shutdown()
	if !c.isClosed() {
		t.Fatal("expected connection to be closed after shutdown")
	}
}

func TestWriteResponseSkippedAfterClose(t *testing.T) {
	c, _ := newTestConnection(t)
	c.shutdown()

	// writeResponse must return promptly without attempting to write to the
	// now-closed pipe, which would otherwise block forever since nothing is
	// reading from the other end.
	c.writeResponse(1, wire.NewSearchResultDone(ldapresult.Success))
}
