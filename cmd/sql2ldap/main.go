package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lor00x/goldap/message"
	"github.com/spf13/cobra"

	"github.com/sql2ldap/sql2ldap/internal/directory"
	"github.com/sql2ldap/sql2ldap/internal/ldapserver"
	"github.com/sql2ldap/sql2ldap/internal/mapping"
	"github.com/sql2ldap/sql2ldap/internal/sandbox"
	"github.com/sql2ldap/sql2ldap/internal/sqlbackend"
	"github.com/sql2ldap/sql2ldap/internal/wire"
	"github.com/sql2ldap/sql2ldap/pkg/config"
)

var (
	version = "0.1.0"
	commit  = "dev"

	defaultConfigPath = "/etc/sql2ldap.toml"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sql2ldap [config-file]",
	Short: "sql2ldap - a read-only, SQL-backed LDAP v3 directory server",
	Long:  "Synthesises LDAP directory entries on demand from rows of a single relational database table.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := defaultConfigPath
		if len(args) == 1 {
			path = args[0]
		}
		return runServer(path)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(healthcheckCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sql2ldap version %s (commit: %s)\n", version, commit)
	},
}

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck [address]",
	Short: "Perform an anonymous bind/unbind round trip against a running server",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := "127.0.0.1:389"
		if len(args) == 1 {
			addr = args[0]
		}
		return healthcheck(addr)
	},
}

func runServer(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	cfg, err := config.Load(data)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Server.Debug)
	cfg.Print(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver, err := sqlbackend.Open(ctx, cfg.Sql)
	if err != nil {
		return fmt.Errorf("connect to sql backend: %w", err)
	}
	defer driver.Close()

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.IP, cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("bind listener: %w", err)
	}

	// The sandbox is installed last, after the listener is bound and the
	// SQL pool established: anything startup needs to do outside the
	// allow-list must already be done before this point.
	// It is only installed when server.seccomp is set.
	if cfg.Server.Seccomp {
		if err := sandbox.Install(sandbox.DefaultPolicy); err != nil {
			listener.Close()
			return fmt.Errorf("install sandbox: %w", err)
		}
	}

	table := mapping.New(cfg.Mappings.List())
	executor := directory.NewExecutor(driver, table, cfg.Ldap.Suffix, cfg.Sql.Table)
	srv := ldapserver.New(listener, executor, cfg.Ldap.Suffix, cfg.Server.Threads, logger)

	logger.Info("sql2ldap listening", "address", listener.Addr().String(), "suffix", cfg.Ldap.Suffix)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(stopCtx)
	case err := <-errCh:
		return err
	}
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// anonymousBindRequest and unbindRequest are the fixed BER encoding of an
// LDAP v3 anonymous simple bind (message id 1) and an unbind (message id
// 2): there is nothing configuration-dependent about either, so they are
// reproduced here verbatim rather than built through the server's own
// message-construction helpers (which exist only for the response shapes
// the server sends, not the requests a client sends).
var (
	anonymousBindRequest = []byte{
		0x30, 0x0c, // SEQUENCE, len 12
		0x02, 0x01, 0x01, // INTEGER messageID = 1
		0x60, 0x07, // [APPLICATION 0] BindRequest, len 7
		0x02, 0x01, 0x03, // INTEGER version = 3
		0x04, 0x00, // OCTET STRING name = ""
		0x80, 0x00, // [0] simple = ""
	}
	unbindRequest = []byte{
		0x30, 0x05, // SEQUENCE, len 5
		0x02, 0x01, 0x02, // INTEGER messageID = 2
		0x42, 0x00, // [APPLICATION 2] UnbindRequest, primitive NULL
	}
)

func healthcheck(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := conn.Write(anonymousBindRequest); err != nil {
		return fmt.Errorf("send bind request: %w", err)
	}
	msg, err := wire.ReadLDAPMessage(bufio.NewReader(conn))
	if err != nil {
		return fmt.Errorf("read bind response: %w", err)
	}
	if _, ok := msg.ProtocolOp().(message.BindResponse); !ok {
		return fmt.Errorf("unexpected response to anonymous bind: %T", msg.ProtocolOp())
	}

	if _, err := conn.Write(unbindRequest); err != nil {
		return fmt.Errorf("send unbind request: %w", err)
	}

	fmt.Println("Health check passed")
	return nil
}
