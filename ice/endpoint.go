package ice

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/stun/v3"
	"github.com/pkg/errors"
)

// endpointObserver receives demultiplexed traffic from an endpoint's
// read loop. The Agent implements this; kept as an interface so endpoint
// tests can use a fake.
type endpointObserver interface {
	onSTUNRequest(e *endpoint, m *stun.Message, raw []byte, addr net.Addr)
	onData(e *endpoint, data []byte, addr net.Addr)
	onEndpointClosed(e *endpoint)
}

// endpoint is one UDP transport backing a local candidate: a bare socket
// for host/srflx candidates, or the PacketConn handed back by a TURN
// allocation for relay candidates. Grounded on internal/ice/base.go's
// Base type and readLoop.
type endpoint struct {
	component int
	conn      net.PacketConn
	observer  endpointObserver
	log       logging.LeveledLogger

	mu           sync.Mutex
	transactions map[string]*stunTransaction
	closed       bool
	closeCh      chan struct{}
}

type stunTransaction struct {
	resultCh chan transactionResult
}

type transactionResult struct {
	msg  *stun.Message
	addr net.Addr
	err  error
}

const (
	rtoInitial    = 500 * time.Millisecond
	rtoMultiplier = 2
	rtoMax        = 3 * time.Second
)

func newEndpoint(component int, conn net.PacketConn, observer endpointObserver, log logging.LeveledLogger) *endpoint {
	e := &endpoint{
		component:    component,
		conn:         conn,
		observer:     observer,
		log:          log,
		transactions: make(map[string]*stunTransaction),
		closeCh:      make(chan struct{}),
	}
	go e.readLoop()
	return e
}

func (e *endpoint) localAddr() net.Addr { return e.conn.LocalAddr() }

// readLoop classifies each inbound datagram and dispatches it, per spec
// §4.2: STUN success/error routed to the matching transaction, STUN
// request forwarded to the agent with the raw bytes, everything else
// treated as opaque application data.
func (e *endpoint) readLoop() {
	buf := make([]byte, 1500)
	for {
		n, addr, err := e.conn.ReadFrom(buf)
		if err != nil {
			e.closeTransactions(err)
			e.observer.onEndpointClosed(e)
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])

		if !stun.IsMessage(data) {
			e.observer.onData(e, data, addr)
			continue
		}
		m := &stun.Message{Raw: data}
		if err := m.Decode(); err != nil {
			e.observer.onData(e, data, addr)
			continue
		}

		switch m.Type.Class {
		case stun.ClassSuccessResponse, stun.ClassErrorResponse:
			e.deliver(m, addr, nil)
		case stun.ClassRequest:
			e.observer.onSTUNRequest(e, m, data, addr)
		default:
			e.observer.onData(e, data, addr)
		}
	}
}

func (e *endpoint) deliver(m *stun.Message, addr net.Addr, err error) {
	key := string(m.TransactionID[:])
	e.mu.Lock()
	t, ok := e.transactions[key]
	e.mu.Unlock()
	if !ok {
		return
	}
	select {
	case t.resultCh <- transactionResult{msg: m, addr: addr, err: err}:
	default:
	}
}

func (e *endpoint) closeTransactions(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.transactions {
		select {
		case t.resultCh <- transactionResult{err: err}:
		default:
		}
	}
}

// request registers a STUN transaction for msg, drives its retransmission
// timer, and removes it on exit regardless of outcome (spec §5
// cancellation guarantee). retransmissions == 0 sends exactly once.
func (e *endpoint) request(ctx context.Context, msg *stun.Message, addr net.Addr, retransmissions int) (*stun.Message, net.Addr, error) {
	key := string(msg.TransactionID[:])
	t := &stunTransaction{resultCh: make(chan transactionResult, 1)}

	e.mu.Lock()
	e.transactions[key] = t
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.transactions, key)
		e.mu.Unlock()
	}()

	rto := rtoInitial
	attempt := 0
	for {
		if _, err := e.conn.WriteTo(msg.Raw, addr); err != nil {
			return nil, nil, errors.Wrap(err, "ice: write stun request")
		}

		timer := time.NewTimer(rto)
		select {
		case res := <-t.resultCh:
			timer.Stop()
			if res.err != nil {
				return nil, nil, res.err
			}
			return res.msg, res.addr, nil
		case <-timer.C:
			if attempt >= retransmissions {
				return nil, nil, newError(KindConnectionLost, "stun transaction timed out")
			}
			attempt++
			rto *= rtoMultiplier
			if rto > rtoMax {
				rto = rtoMax
			}
		case <-ctx.Done():
			timer.Stop()
			return nil, nil, ctx.Err()
		case <-e.closeCh:
			timer.Stop()
			return nil, nil, ErrClosed
		}
	}
}

func (e *endpoint) sendData(data []byte, addr net.Addr) error {
	_, err := e.conn.WriteTo(data, addr)
	return err
}

func (e *endpoint) sendSTUN(m *stun.Message, addr net.Addr) error {
	_, err := e.conn.WriteTo(m.Raw, addr)
	return err
}

func (e *endpoint) close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	close(e.closeCh)
	return e.conn.Close()
}
