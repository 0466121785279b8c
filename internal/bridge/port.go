package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Port is one side of the message channel between the board and the embedded
// agent panel. Receive blocks until a message arrives, the peer closes, or
// ctx is done.
type Port interface {
	Receive(ctx context.Context) (Message, error)
	Send(m Message) error
}

// ChannelPort is an in-process Port over a pair of channels. The test (or a
// host embedding both sides) writes to In and reads from Out.
type ChannelPort struct {
	In  chan Message
	Out chan Message

	closeOnce sync.Once
}

// NewChannelPort returns a buffered in-process port.
func NewChannelPort() *ChannelPort {
	return &ChannelPort{
		In:  make(chan Message, 32),
		Out: make(chan Message, 32),
	}
}

func (p *ChannelPort) Receive(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case m, ok := <-p.In:
		if !ok {
			return Message{}, io.EOF
		}
		return m, nil
	}
}

func (p *ChannelPort) Send(m Message) error {
	select {
	case p.Out <- m:
		return nil
	default:
		return fmt.Errorf("outbound channel full")
	}
}

// Close ends the inbound stream; a blocked Receive returns io.EOF.
func (p *ChannelPort) Close() {
	p.closeOnce.Do(func() { close(p.In) })
}

// JSONLPort speaks one JSON message per line over a reader/writer pair, for
// driving the bridge from a host process over a pipe.
type JSONLPort struct {
	scanner *bufio.Scanner

	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLPort wraps r and w. Lines that do not parse are skipped rather than
// tearing the stream down.
func NewJSONLPort(r io.Reader, w io.Writer) *JSONLPort {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &JSONLPort{scanner: sc, enc: json.NewEncoder(w)}
}

func (p *JSONLPort) Receive(ctx context.Context) (Message, error) {
	for p.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return Message{}, err
		}
		line := p.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var m Message
		if err := json.Unmarshal(line, &m); err != nil {
			continue
		}
		return m, nil
	}
	if err := p.scanner.Err(); err != nil {
		return Message{}, err
	}
	return Message{}, io.EOF
}

func (p *JSONLPort) Send(m Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(m)
}
