package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/zulandar/semaphore/internal/scale"
)

// DefaultCLITimeout bounds one control command invocation.
const DefaultCLITimeout = 30 * time.Second

// Runner runs an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner is the production Runner backed by os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// CLIOpts configures a CLIDispatcher.
type CLIOpts struct {
	// Command is the argv template. Placeholders {host} {port} {db} {list}
	// and {token} are substituted per argument.
	Command []string
	Host    string
	Port    int
	DB      int
	List    string
	Timeout time.Duration
	Runner  Runner // defaults to ExecRunner
}

// CLIDispatcher delivers tokens by invoking an external control command,
// redis-cli by default.
type CLIDispatcher struct {
	command []string
	vars    map[string]string
	timeout time.Duration
	runner  Runner
}

// NewCLIDispatcher validates opts and returns a dispatcher.
func NewCLIDispatcher(opts CLIOpts) (*CLIDispatcher, error) {
	if len(opts.Command) == 0 || opts.Command[0] == "" {
		return nil, fmt.Errorf("dispatch: cli command is required")
	}
	hasToken := false
	for _, arg := range opts.Command {
		if strings.Contains(arg, "{token}") {
			hasToken = true
		}
	}
	if !hasToken {
		return nil, fmt.Errorf("dispatch: cli command must contain a {token} placeholder")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultCLITimeout
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	return &CLIDispatcher{
		command: opts.Command,
		vars: map[string]string{
			"{host}": opts.Host,
			"{port}": strconv.Itoa(opts.Port),
			"{db}":   strconv.Itoa(opts.DB),
			"{list}": opts.List,
		},
		timeout: opts.Timeout,
		runner:  opts.Runner,
	}, nil
}

// argv expands the command template for token.
func (d *CLIDispatcher) argv(token string) []string {
	pairs := make([]string, 0, 2*len(d.vars)+2)
	for k, v := range d.vars {
		pairs = append(pairs, k, v)
	}
	pairs = append(pairs, "{token}", token)
	r := strings.NewReplacer(pairs...)

	out := make([]string, len(d.command))
	for i, arg := range d.command {
		out[i] = r.Replace(arg)
	}
	return out
}

// Dispatch runs the control command and parses the list length it prints.
func (d *CLIDispatcher) Dispatch(ctx context.Context, sig scale.Signal) (Result, error) {
	if sig.Token == "" {
		return Result{}, &Error{Kind: KindUnexpected, Backend: "cli", Err: fmt.Errorf("empty token")}
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	argv := d.argv(sig.Token)
	out, err := d.runner.Run(ctx, argv[0], argv[1:]...)
	reply := strings.TrimSpace(string(out))

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Result{}, &Error{Kind: KindTimeout, Backend: "cli", Err: fmt.Errorf("%s exceeded %s", argv[0], d.timeout)}
	}
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return Result{}, &Error{Kind: KindUnexpected, Backend: "cli", Err: err}
		}
		return Result{}, &Error{Kind: classifyReply(reply, KindTransportError), Backend: "cli", Err: fmt.Errorf("%s: %s: %w", argv[0], reply, err)}
	}

	depth, ok := parseIntegerReply(reply)
	if !ok {
		return Result{}, &Error{Kind: classifyReply(reply, KindUnexpected), Backend: "cli", Err: fmt.Errorf("unrecognized reply %q", reply)}
	}
	return Result{Accepted: true, QueueDepth: depth}, nil
}

// parseIntegerReply reads "5" or "(integer) 5".
func parseIntegerReply(reply string) (int64, bool) {
	reply = strings.TrimSpace(strings.TrimPrefix(reply, "(integer)"))
	n, err := strconv.ParseInt(reply, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// classifyReply inspects control command output for known failure text.
func classifyReply(reply string, fallback Kind) Kind {
	lower := strings.ToLower(reply)
	switch {
	case strings.Contains(lower, "could not connect"),
		strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "name or service not known"),
		strings.Contains(lower, "no route to host"):
		return KindTransportUnavailable
	case strings.Contains(lower, "timed out"), strings.Contains(lower, "timeout"):
		return KindTimeout
	case strings.HasPrefix(reply, "(error)"),
		strings.HasPrefix(reply, "ERR"),
		strings.HasPrefix(reply, "WRONGTYPE"),
		strings.HasPrefix(reply, "NOAUTH"),
		strings.HasPrefix(reply, "READONLY"),
		strings.HasPrefix(reply, "OOM"):
		return KindTransportError
	default:
		return fallback
	}
}
