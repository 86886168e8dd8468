package tether

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
)

// Message is the single shape exchanged on the event channel. Config holds
// the record serialized as a JSON string.
type Message struct {
	Name   string `json:"name"`
	Config string `json:"config"`
}

// RecordSource delivers records pushed by a producer, bypassing the file.
type RecordSource interface {
	Listen(ctx context.Context) <-chan *Record
}

// Channel carries records between a parent producer and a child consumer as
// newline delimited JSON messages.
//
// One goroutine reads the underlying reader for the life of the channel.
// Listen attaches a listener to it; a later Listen takes over once the
// earlier listener's context ends, so nothing read is lost in between.
type Channel struct {
	r      io.Reader
	w      io.Writer
	logger *slog.Logger

	mu      sync.Mutex
	closers []io.Closer

	readOnce sync.Once
	records  chan *Record

	// listenMu is held by the active listener; held is a record it took
	// but could not hand over before its context ended.
	listenMu sync.Mutex
	held     *Record
}

var _ RecordSource = (*Channel)(nil)

// NewChannel creates a channel reading from r and writing to w. Either may be
// nil for a one-directional channel.
func NewChannel(r io.Reader, w io.Writer) *Channel {
	c := &Channel{r: r, w: w, logger: slog.Default()}
	if rc, ok := r.(io.Closer); ok {
		c.closers = append(c.closers, rc)
	}
	if wc, ok := w.(io.Closer); ok {
		c.closers = append(c.closers, wc)
	}
	return c
}

// Logger sets the logger used for malformed messages.
func (c *Channel) Logger(l *slog.Logger) *Channel {
	c.logger = l
	return c
}

// Send writes rec as one message.
func (c *Channel) Send(rec *Record) error {
	if c.w == nil {
		return errors.New("event channel is receive-only")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	line, err := json.Marshal(Message{Name: ChannelName, Config: string(data)})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Listen delivers decoded records until the reader is exhausted or ctx is
// canceled. Messages with another name are ignored; malformed ones are
// logged and skipped.
func (c *Channel) Listen(ctx context.Context) <-chan *Record {
	out := make(chan *Record)
	if c.r == nil {
		close(out)
		return out
	}

	c.readOnce.Do(func() {
		c.records = make(chan *Record)
		go c.read()
	})
	go c.forward(ctx, out)
	return out
}

func (c *Channel) read() {
	defer close(c.records)
	scanner := bufio.NewScanner(c.r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		if rec, ok := c.decode(scanner.Bytes()); ok {
			c.records <- rec
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
		c.logger.Warn("event channel read error", "error", err)
	}
}

func (c *Channel) forward(ctx context.Context, out chan<- *Record) {
	defer close(out)
	c.listenMu.Lock()
	defer c.listenMu.Unlock()

	for {
		rec := c.held
		c.held = nil
		if rec == nil {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-c.records:
				if !ok {
					return
				}
				rec = r
			}
		}
		select {
		case out <- rec:
		case <-ctx.Done():
			c.held = rec
			return
		}
	}
}

func (c *Channel) decode(line []byte) (*Record, bool) {
	if len(line) == 0 {
		return nil, false
	}
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		c.logger.Warn("malformed event channel message", "error", err)
		return nil, false
	}
	if msg.Name != ChannelName {
		return nil, false
	}
	var rec Record
	if err := json.Unmarshal([]byte(msg.Config), &rec); err != nil {
		c.logger.Error("failed to parse config message", "error", err)
		return nil, false
	}
	return &rec, true
}

// Close closes the underlying reader and writer when they support it.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// InheritedChannel opens the channel passed down by a parent process, or
// returns nil when there is none.
func InheritedChannel(e Env) *Channel {
	if e.ChannelFD <= 2 {
		return nil
	}
	f := os.NewFile(uintptr(e.ChannelFD), ChannelName)
	if f == nil {
		return nil
	}
	return NewChannel(f, nil)
}

// SpawnWithChannel starts cmd with a pipe it can open via InheritedChannel
// and returns the sending side.
func SpawnWithChannel(cmd *exec.Cmd) (*Channel, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel pipe: %w", err)
	}

	cmd.ExtraFiles = append(cmd.ExtraFiles, pr)
	fd := 2 + len(cmd.ExtraFiles)
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env, ChannelFDEnv+"="+strconv.Itoa(fd))

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}
	// The child holds its own copy of the read end.
	_ = pr.Close()

	return NewChannel(nil, pw), nil
}
