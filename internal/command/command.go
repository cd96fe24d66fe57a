// Package command maps textual commands onto kv.Store operations.
package command

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/heysubinoy/opus/internal/auth"
	"github.com/heysubinoy/opus/pkg/kv"
	"github.com/jmgilman/go/errors"
	"github.com/mattn/go-shellwords"
)

// Flusher persists pending changes on demand.
type Flusher interface {
	Flush(ctx context.Context) error
}

type handler func(ctx context.Context, d *Dispatcher, args []string) (Reply, error)

// Spec describes one command.
type Spec struct {
	Name    string
	Usage   string
	Summary string
	MinArgs int // not counting the command name
	MaxArgs int // -1 for variadic
	Perm    string
	run     handler
}

// Mutates reports whether the command changes replicated state.
func (s *Spec) Mutates() bool {
	return s.Perm == auth.PermWrite
}

var table = map[string]*Spec{}

func register(s *Spec, aliases ...string) {
	table[s.Name] = s
	for _, a := range aliases {
		table[a] = s
	}
}

func init() {
	register(&Spec{Name: "set", Usage: "SET key value", Summary: "Set key to a string value, replacing any existing value",
		MinArgs: 2, MaxArgs: 2, Perm: auth.PermWrite, run: cmdSet})
	register(&Spec{Name: "get", Usage: "GET key", Summary: "Get the string value of key",
		MinArgs: 1, MaxArgs: 1, Perm: auth.PermRead, run: cmdGet})
	register(&Spec{Name: "lpush", Usage: "LPUSH key value [value ...]", Summary: "Prepend values to a list",
		MinArgs: 2, MaxArgs: -1, Perm: auth.PermWrite, run: cmdPush(true)})
	register(&Spec{Name: "rpush", Usage: "RPUSH key value [value ...]", Summary: "Append values to a list",
		MinArgs: 2, MaxArgs: -1, Perm: auth.PermWrite, run: cmdPush(false)})
	register(&Spec{Name: "lpop", Usage: "LPOP key", Summary: "Remove and return the first element of a list",
		MinArgs: 1, MaxArgs: 1, Perm: auth.PermWrite, run: cmdPop(true)})
	register(&Spec{Name: "rpop", Usage: "RPOP key", Summary: "Remove and return the last element of a list",
		MinArgs: 1, MaxArgs: 1, Perm: auth.PermWrite, run: cmdPop(false)})
	register(&Spec{Name: "llen", Usage: "LLEN key", Summary: "Get the length of a list",
		MinArgs: 1, MaxArgs: 1, Perm: auth.PermRead, run: cmdLen})
	register(&Spec{Name: "lrange", Usage: "LRANGE key start stop", Summary: "Get a range of list elements; negative indexes count from the end",
		MinArgs: 3, MaxArgs: 3, Perm: auth.PermRead, run: cmdRange})
	register(&Spec{Name: "sadd", Usage: "SADD key member [member ...]", Summary: "Add members to a set",
		MinArgs: 2, MaxArgs: -1, Perm: auth.PermWrite, run: cmdAdd})
	register(&Spec{Name: "sismember", Usage: "SISMEMBER key member", Summary: "Check whether member belongs to a set",
		MinArgs: 2, MaxArgs: 2, Perm: auth.PermRead, run: cmdContains})
	register(&Spec{Name: "srem", Usage: "SREM key member [member ...]", Summary: "Remove members from a set",
		MinArgs: 2, MaxArgs: -1, Perm: auth.PermWrite, run: cmdRemove})
	register(&Spec{Name: "scard", Usage: "SCARD key", Summary: "Get the number of members in a set",
		MinArgs: 1, MaxArgs: 1, Perm: auth.PermRead, run: cmdCard})
	register(&Spec{Name: "smembers", Usage: "SMEMBERS key", Summary: "Get all members of a set",
		MinArgs: 1, MaxArgs: 1, Perm: auth.PermRead, run: cmdMembers})
	register(&Spec{Name: "exists", Usage: "EXISTS key", Summary: "Check whether key exists",
		MinArgs: 1, MaxArgs: 1, Perm: auth.PermRead, run: cmdExists})
	register(&Spec{Name: "del", Usage: "DEL key", Summary: "Delete a key of any kind",
		MinArgs: 1, MaxArgs: 1, Perm: auth.PermWrite, run: cmdDelete})
	register(&Spec{Name: "type", Usage: "TYPE key", Summary: "Get the kind of value stored at key",
		MinArgs: 1, MaxArgs: 1, Perm: auth.PermRead, run: cmdType})
	register(&Spec{Name: "clear", Usage: "CLEAR", Summary: "Remove all keys",
		MinArgs: 0, MaxArgs: 0, Perm: auth.PermWrite, run: cmdClear}, "flushall")
	register(&Spec{Name: "dbsize", Usage: "DBSIZE", Summary: "Get the number of keys",
		MinArgs: 0, MaxArgs: 0, Perm: auth.PermRead, run: cmdSize})
	register(&Spec{Name: "flush", Usage: "FLUSH", Summary: "Write pending changes to the persistence backend",
		MinArgs: 0, MaxArgs: 0, Perm: auth.PermAdmin, run: cmdFlush})
	register(&Spec{Name: "ping", Usage: "PING [message]", Summary: "Check the connection",
		MinArgs: 0, MaxArgs: 1, Perm: auth.PermRead, run: cmdPing})
}

// Lookup finds a command by name, ignoring case.
func Lookup(name string) (*Spec, bool) {
	s, ok := table[strings.ToLower(name)]
	return s, ok
}

// Commands returns every command once, sorted by name.
func Commands() []*Spec {
	seen := make(map[*Spec]bool, len(table))
	out := make([]*Spec, 0, len(table))
	for _, s := range table {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Split tokenizes a command line, honouring shell-style quoting.
func Split(line string) ([]string, error) {
	args, err := shellwords.Parse(line)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "invalid command line")
	}
	return args, nil
}

// Dispatcher executes commands against a store.
type Dispatcher struct {
	store   kv.Store
	flusher Flusher
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithFlusher enables the flush command.
func WithFlusher(f Flusher) Option {
	return func(d *Dispatcher) { d.flusher = f }
}

// NewDispatcher returns a Dispatcher over store.
func NewDispatcher(store kv.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{store: store}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Size returns the number of keys in the underlying store.
func (d *Dispatcher) Size() int {
	return d.store.Size()
}

// Dispatch runs args[0] with the remaining arguments.
func (d *Dispatcher) Dispatch(ctx context.Context, args []string) (Reply, error) {
	if len(args) == 0 {
		return Reply{}, errors.New(errors.CodeInvalidInput, "empty command")
	}
	spec, ok := Lookup(args[0])
	if !ok {
		return Reply{}, errors.Newf(errors.CodeNotImplemented, "unknown command '%s'", args[0])
	}
	rest := args[1:]
	if len(rest) < spec.MinArgs || (spec.MaxArgs >= 0 && len(rest) > spec.MaxArgs) {
		return Reply{}, errors.Newf(errors.CodeInvalidInput, "wrong number of arguments for '%s' command, usage: %s", spec.Name, spec.Usage)
	}
	return spec.run(ctx, d, rest)
}

func cmdSet(_ context.Context, d *Dispatcher, args []string) (Reply, error) {
	if err := d.store.Set(args[0], args[1]); err != nil {
		return Reply{}, err
	}
	return OK, nil
}

func cmdGet(_ context.Context, d *Dispatcher, args []string) (Reply, error) {
	v, ok, err := d.store.Get(args[0])
	if err != nil || !ok {
		return Nil(), err
	}
	return String(v), nil
}

func cmdPush(front bool) handler {
	return func(_ context.Context, d *Dispatcher, args []string) (Reply, error) {
		push := d.store.PushBack
		if front {
			push = d.store.PushFront
		}
		n, err := push(args[0], args[1:]...)
		if err != nil {
			return Reply{}, err
		}
		return Int(n), nil
	}
}

func cmdPop(front bool) handler {
	return func(_ context.Context, d *Dispatcher, args []string) (Reply, error) {
		pop := d.store.PopBack
		if front {
			pop = d.store.PopFront
		}
		v, ok, err := pop(args[0])
		if err != nil || !ok {
			return Nil(), err
		}
		return String(v), nil
	}
}

func cmdLen(_ context.Context, d *Dispatcher, args []string) (Reply, error) {
	n, err := d.store.Len(args[0])
	if err != nil {
		return Reply{}, err
	}
	return Int(n), nil
}

func cmdRange(_ context.Context, d *Dispatcher, args []string) (Reply, error) {
	start, err := parseIndex(args[1])
	if err != nil {
		return Reply{}, err
	}
	stop, err := parseIndex(args[2])
	if err != nil {
		return Reply{}, err
	}
	items, err := d.store.Range(args[0], start, stop)
	if err != nil {
		return Reply{}, err
	}
	return Array(items), nil
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Newf(errors.CodeInvalidInput, "value is not an integer or out of range: %q", s)
	}
	return n, nil
}

func cmdAdd(_ context.Context, d *Dispatcher, args []string) (Reply, error) {
	n, err := d.store.Add(args[0], args[1:]...)
	if err != nil {
		return Reply{}, err
	}
	return Int(n), nil
}

func cmdContains(_ context.Context, d *Dispatcher, args []string) (Reply, error) {
	ok, err := d.store.Contains(args[0], args[1])
	if err != nil {
		return Reply{}, err
	}
	return Bool(ok), nil
}

func cmdRemove(_ context.Context, d *Dispatcher, args []string) (Reply, error) {
	n, err := d.store.Remove(args[0], args[1:]...)
	if err != nil {
		return Reply{}, err
	}
	return Int(n), nil
}

func cmdCard(_ context.Context, d *Dispatcher, args []string) (Reply, error) {
	n, err := d.store.Card(args[0])
	if err != nil {
		return Reply{}, err
	}
	return Int(n), nil
}

func cmdMembers(_ context.Context, d *Dispatcher, args []string) (Reply, error) {
	members, err := d.store.Members(args[0])
	if err != nil {
		return Reply{}, err
	}
	return Array(members), nil
}

func cmdExists(_ context.Context, d *Dispatcher, args []string) (Reply, error) {
	return Bool(d.store.Exists(args[0])), nil
}

func cmdDelete(_ context.Context, d *Dispatcher, args []string) (Reply, error) {
	ok, err := d.store.Delete(args[0])
	if err != nil {
		return Reply{}, err
	}
	return Bool(ok), nil
}

func cmdType(_ context.Context, d *Dispatcher, args []string) (Reply, error) {
	k, ok := d.store.KindOf(args[0])
	if !ok {
		return Status("none"), nil
	}
	return Status(k.String()), nil
}

func cmdClear(_ context.Context, d *Dispatcher, _ []string) (Reply, error) {
	if err := d.store.Clear(); err != nil {
		return Reply{}, err
	}
	return OK, nil
}

func cmdSize(_ context.Context, d *Dispatcher, _ []string) (Reply, error) {
	return Int(d.store.Size()), nil
}

func cmdFlush(ctx context.Context, d *Dispatcher, _ []string) (Reply, error) {
	if d.flusher == nil {
		return Reply{}, errors.New(errors.CodeInvalidConfig, "persistence is not configured")
	}
	if err := d.flusher.Flush(ctx); err != nil {
		return Reply{}, err
	}
	return OK, nil
}

func cmdPing(_ context.Context, _ *Dispatcher, args []string) (Reply, error) {
	if len(args) == 1 {
		return String(args[0]), nil
	}
	return Status("PONG"), nil
}
