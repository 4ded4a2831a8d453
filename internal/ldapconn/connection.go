// Package ldapconn implements the per-connection LDAP state machine: bind,
// search dispatch, abandon handling, and rejection of everything else.
package ldapconn

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lor00x/goldap/message"

	"github.com/sql2ldap/sql2ldap/internal/directory"
	"github.com/sql2ldap/sql2ldap/internal/ldapresult"
	"github.com/sql2ldap/sql2ldap/internal/wire"
)

// Connection is one TCP client session: Unbound -> Bound(anonymous) ->
// Closed. State is entirely local to the connection and never shared
// across connections.
type Connection struct {
	id       string
	conn     net.Conn
	reader   *bufio.Reader
	executor *directory.Executor
	suffix   string
	logger   *slog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	bound    bool
	closed   bool
	inFlight map[int]context.CancelFunc
	wg       sync.WaitGroup
}

// New wraps an accepted TCP connection. executor runs every search issued
// on it; suffix is the configured naming context.
func New(conn net.Conn, executor *directory.Executor, suffix string, logger *slog.Logger) *Connection {
	id := uuid.NewString()
	return &Connection{
		id:       id,
		conn:     conn,
		reader:   bufio.NewReader(conn),
		executor: executor,
		suffix:   suffix,
		logger:   logger.With("conn_id", id, "remote", conn.RemoteAddr().String()),
		inFlight: make(map[int]context.CancelFunc),
	}
}

// Serve runs the connection's read loop until the client disconnects, sends
// UnbindRequest, a malformed frame is read, or ctx is cancelled (server
// shutdown). It always returns once the connection is fully torn down,
// including waiting for any in-flight search goroutines.
func (c *Connection) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.shutdown()

	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()

	for {
		msg, err := wire.ReadLDAPMessage(c.reader)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Debug("connection closed", "error", err)
			}
			return
		}

		if done := c.dispatch(ctx, msg); done {
			return
		}
	}
}

// dispatch handles one decoded message and reports whether the connection
// should now be closed.
func (c *Connection) dispatch(ctx context.Context, msg *message.LDAPMessage) bool {
	messageID := int(msg.MessageID())
	logger := c.logger.With("message_id", messageID)

	// Only one operation is ever in flight per connection. An abandon is
	// the single message handled while a search is still streaming; an
	// unbind doesn't wait either, since shutdown cancels the search anyway.
	switch msg.ProtocolOp().(type) {
	case message.AbandonRequest, message.UnbindRequest:
	default:
		c.wg.Wait()
	}

	switch op := msg.ProtocolOp().(type) {
	case message.BindRequest:
		c.handleBind(messageID, op, logger)
		return false

	case message.SearchRequest:
		c.handleSearch(ctx, messageID, op, logger)
		return false

	case message.UnbindRequest:
		logger.Debug("unbind received")
		return true

	case message.AbandonRequest:
		c.handleAbandon(int(op), logger)
		return false

	case message.AddRequest:
		logger.Info("rejecting write operation")
		c.writeResponse(messageID, wire.NewAddResponse(ldapresult.UnwillingToPerform))
		return false

	case message.ModifyRequest:
		logger.Info("rejecting write operation")
		c.writeResponse(messageID, wire.NewModifyResponse(ldapresult.UnwillingToPerform))
		return false

	case message.DelRequest:
		logger.Info("rejecting write operation")
		c.writeResponse(messageID, wire.NewDelResponse(ldapresult.UnwillingToPerform))
		return false

	case message.ModifyDNRequest:
		logger.Info("rejecting write operation")
		c.writeResponse(messageID, wire.NewModifyDNResponse(ldapresult.UnwillingToPerform))
		return false

	case message.CompareRequest:
		logger.Info("rejecting compare operation")
		c.writeResponse(messageID, wire.NewCompareResponse(ldapresult.UnwillingToPerform))
		return false

	default:
		logger.Warn("closing connection on unsupported operation")
		c.writeError(messageID, ldapresult.ProtocolError, "unsupported operation")
		return true
	}
}

// handleBind accepts only the anonymous simple bind (empty name, empty
// password); every other form is reported as AuthMethodNotSupported but
// leaves the connection open.
func (c *Connection) handleBind(messageID int, op message.BindRequest, logger *slog.Logger) {
	name := string(op.Name())
	anonymous := op.AuthenticationChoice() == "simple" &&
		name == "" && string(op.AuthenticationSimple()) == ""

	if anonymous {
		c.mu.Lock()
		c.bound = true
		c.mu.Unlock()
		logger.Info("anonymous bind accepted")
		c.writeResponse(messageID, wire.NewBindResponse(ldapresult.Success))
		return
	}

	logger.Info("non-anonymous bind rejected", "name", name)
	c.writeResponse(messageID, wire.NewBindResponse(ldapresult.AuthMethodNotSupported))
}

// handleSearch translates and runs one search. The work happens in its own
// goroutine so the read loop can keep consuming the connection and observe
// an AbandonRequest for this search's message id while results are still
// streaming; dispatch serialises every other operation behind it.
//
// A search with an empty base DN and baseObject scope is the well-known
// RootDSE lookup every real LDAP client issues before binding; it is
// answered directly from the connection's suffix, without ever reaching
// the executor or the database.
func (c *Connection) handleSearch(ctx context.Context, messageID int, op message.SearchRequest, logger *slog.Logger) {
	if string(op.BaseObject()) == "" && int(op.Scope()) == int(directory.ScopeBaseObject) {
		c.writeResponse(messageID, wire.NewRootDSEEntry(c.suffix))
		c.writeResponse(messageID, wire.NewSearchResultDone(ldapresult.Success))
		return
	}

	searchCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.inFlight[messageID] = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.inFlight, messageID)
			c.mu.Unlock()
			cancel()
		}()

		req := buildSearchRequest(op)
		items := c.executor.Search(searchCtx, req)

		count := 0
		for item := range items {
			if item.Entry != nil {
				c.writeResponse(messageID, wire.NewSearchResultEntry(item.Entry))
				count++
				continue
			}
			if item.Outcome != nil {
				c.writeResponse(messageID, wire.NewSearchResultDone(item.Outcome.Code))
				if item.Outcome.CloseConnection {
					logger.Warn("closing connection after protocol error", "error", item.Outcome.Err)
					c.conn.Close()
				}
			}
		}
		logger.Debug("search finished", "entries", count)
	}()
}

func (c *Connection) handleAbandon(targetMessageID int, logger *slog.Logger) {
	c.mu.Lock()
	cancel, ok := c.inFlight[targetMessageID]
	c.mu.Unlock()

	if !ok {
		logger.Debug("abandon for unknown or already-finished search", "target", targetMessageID)
		return
	}
	logger.Info("abandoning search", "target", targetMessageID)
	cancel()
}

func buildSearchRequest(op message.SearchRequest) directory.SearchRequest {
	attrs := make([]string, 0, len(op.Attributes()))
	for _, a := range op.Attributes() {
		attrs = append(attrs, string(a))
	}

	return directory.SearchRequest{
		BaseDN:     string(op.BaseObject()),
		Scope:      directory.Scope(op.Scope()),
		SizeLimit:  int(op.SizeLimit()),
		TimeLimit:  time.Duration(op.TimeLimit()) * time.Second,
		Attributes: attrs,
		Filter:     convertFilter(op.Filter()),
	}
}

func (c *Connection) writeResponse(messageID int, response message.ProtocolOp) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.isClosed() {
		return
	}

	msg := message.NewLDAPMessageWithProtocolOp(response)
	msg.SetMessageID(messageID)
	if err := wire.WriteLDAPMessage(c.conn, msg); err != nil {
		c.logger.Debug("write failed", "error", err)
	}
}

func (c *Connection) writeError(messageID int, code ldapresult.Code, diagnostic string) {
	c.writeResponse(messageID, wire.NewError(code, diagnostic))
}

func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, cancel := range c.inFlight {
		cancel()
	}
	c.mu.Unlock()

	c.conn.Close()
	c.wg.Wait()
}
