package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/heysubinoy/opus/api/proto"
	"github.com/heysubinoy/opus/internal/auth"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const defaultPort = 5432

type options struct {
	host    string
	user    string
	newUser string
	port    int
	verbose bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "opus -h <host> (-U <username> | -N <username>) [-p <port>]",
		Short: "Interactive client for the opus key-value store",
		Example: `  opus -h localhost -U alice
  opus -h localhost -N bob -p 6000`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.port < 1 || opts.port > 65535 {
				return fmt.Errorf("invalid port %d: must be between 1 and 65535", opts.port)
			}
			return run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	// -h is the host, so help gets a long flag only.
	f.Bool("help", false, "help for opus")
	f.StringVarP(&opts.host, "host", "h", "", "server host address")
	f.StringVarP(&opts.user, "user", "U", "", "username for authentication")
	f.StringVarP(&opts.newUser, "new-user", "N", "", "register a new user with this username")
	f.IntVarP(&opts.port, "port", "p", defaultPort, "server port")
	f.BoolVar(&opts.verbose, "verbose", false, "log connection details")

	cmd.MarkFlagRequired("host")
	cmd.MarkFlagsMutuallyExclusive("user", "new-user")
	cmd.MarkFlagsOneRequired("user", "new-user")

	return cmd
}

func run(ctx context.Context, opts options) error {
	level := hclog.Warn
	if opts.verbose {
		level = hclog.Debug
	}
	logger := hclog.New(&hclog.LoggerOptions{Name: "opus", Level: level, Output: os.Stderr})

	addr := net.JoinHostPort(opts.host, strconv.Itoa(opts.port))
	logger.Debug("connecting", "addr", addr)

	conn, err := grpc.NewClient("passthrough:///"+addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()
	client := proto.NewOpusClient(conn)

	session, err := authenticate(ctx, client, opts)
	if err != nil {
		return err
	}
	username := proto.StringField(session, proto.FieldUsername)
	logger.Debug("authenticated", "user", username, "role", proto.StringField(session, proto.FieldRole))
	fmt.Printf("Welcome %s!\n", username)

	return repl(ctx, client, proto.StringField(session, proto.FieldToken), logger)
}

func authenticate(ctx context.Context, client proto.OpusClient, opts options) (*structpb.Struct, error) {
	stdin := bufio.NewReader(os.Stdin)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if opts.newUser != "" {
		password, err := readPassword(stdin, "Enter password: ")
		if err != nil {
			return nil, err
		}
		if len(password) < auth.MinPasswordLength {
			return nil, fmt.Errorf("password must be at least %d characters", auth.MinPasswordLength)
		}
		confirm, err := readPassword(stdin, "Confirm password: ")
		if err != nil {
			return nil, err
		}
		if password != confirm {
			return nil, fmt.Errorf("passwords do not match")
		}
		session, err := client.Register(ctx, proto.Credentials(opts.newUser, password))
		if err != nil {
			return nil, fmt.Errorf("registration failed: %s", status.Convert(err).Message())
		}
		fmt.Println("User registered successfully.")
		return session, nil
	}

	password, err := readPassword(stdin, "Enter your password: ")
	if err != nil {
		return nil, err
	}
	session, err := client.Login(ctx, proto.Credentials(opts.user, password))
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %s", status.Convert(err).Message())
	}
	return session, nil
}

// readPassword prompts without echo on a terminal and falls back to a plain
// line read when stdin is piped.
func readPassword(stdin *bufio.Reader, prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
