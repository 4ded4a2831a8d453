// Package ldapserver owns the TCP listener and bounds how many connections
// run concurrently, handing each accepted connection to internal/ldapconn.
package ldapserver

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/sql2ldap/sql2ldap/internal/directory"
	"github.com/sql2ldap/sql2ldap/internal/ldapconn"
)

// Server accepts connections on a listener and runs each on its own
// goroutine, capped at a configured worker count.
type Server struct {
	listener net.Listener
	executor *directory.Executor
	suffix   string
	logger   *slog.Logger
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
}

// New builds a Server. threads bounds the number of connections served
// concurrently; a value of 0 is treated as 1 rather than unlimited.
func New(listener net.Listener, executor *directory.Executor, suffix string, threads uint32, logger *slog.Logger) *Server {
	if threads == 0 {
		threads = 1
	}
	return &Server{
		listener: listener,
		executor: executor,
		suffix:   suffix,
		logger:   logger,
		sem:      semaphore.NewWeighted(int64(threads)),
	}
}

// Run accepts connections until ctx is cancelled or the listener errors.
// After cancellation it blocks until every in-flight connection has
// finished; any other listener error is returned at once, without waiting.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
			}
			return err
		}

		if err := s.sem.Acquire(ctx, 1); err != nil {
			conn.Close()
			s.wg.Wait()
			return nil
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.sem.Release(1)

			c := ldapconn.New(conn, s.executor, s.suffix, s.logger)
			c.Serve(ctx)
		}()
	}
}

// Stop closes the listener and waits (up to ctx) for in-flight connections
// to drain.
func (s *Server) Stop(ctx context.Context) error {
	s.listener.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
