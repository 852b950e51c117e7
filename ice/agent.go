package ice

import (
	"context"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/stun/v3"
)

const (
	// periodicCheckTick is the cadence of the periodic-check driver
	// started by Connect. Spec §6.
	periodicCheckTick = 20 * time.Millisecond
	// gatherDeadline bounds srflx/relay discovery. Spec §6.
	gatherDeadline = 5 * time.Second
)

// localCandidate pairs a Candidate with the endpoint that carries its
// traffic. A host candidate's endpoint is its own socket; a srflx
// candidate shares its base host candidate's endpoint; a relay
// candidate owns a dedicated (TURN-backed) endpoint.
type localCandidate struct {
	candidate Candidate
	endpoint  *endpoint
}

type bufferedCheck struct {
	msg      *stun.Message
	raw      []byte
	addr     net.Addr
	endpoint *endpoint
}

// checklistResult is the single-shot terminal signal for Connect.
type checklistResult struct {
	event EventKind
}

// Agent is an ICE agent for a single media stream. All state is owned by
// a single goroutine (loop); every exported method that touches state
// submits a closure through runSync and blocks for its result, which is
// the Go re-expression of the single-threaded cooperative model in
// spec §5 (grounded on the vendored pion/ice Agent's chanTask/run/
// taskLoop pattern).
type Agent struct {
	config AgentConfig
	log    logging.LeveledLogger

	taskCh    chan func()
	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// --- state below is only ever touched from loop() ---

	controlling bool
	tieBreaker  uint64

	localUsername  string
	localPassword  string
	remoteUsername string
	remotePassword string
	remoteIsLite   bool

	localCandidates  []*localCandidate
	remoteCandidates []Candidate

	checklist  []*CandidatePair
	nominated  map[int]*CandidatePair
	nominating map[int]bool

	earlyChecks    []bufferedCheck
	earlyChecksDone bool

	activeComponents map[int]bool

	gatherStarted bool
	gatherDone    bool
	remoteEnd     bool
	checksDone    bool
	closed        bool

	checklistDoneCh chan checklistResult

	inbound   chan inboundDatum
	events    chan ConnectionEvent
	eventOnce sync.Once

	consentCancel context.CancelFunc

	mdns     MDNSResolver
	ownsMDNS bool
}

type inboundDatum struct {
	component int
	data      []byte
	addr      net.Addr
	lost      bool
}

// NewAgent constructs an Agent and starts its task loop. Candidates are
// not gathered until GatherCandidates is called.
func NewAgent(config AgentConfig) (*Agent, error) {
	ownsMDNS := config.MDNSResolver == nil
	if err := config.initWithDefaults(); err != nil {
		return nil, err
	}

	tieBreaker, err := generateTieBreaker()
	if err != nil {
		return nil, err
	}

	a := &Agent{
		config:           config,
		log:              config.LoggerFactory.NewLogger("ice"),
		taskCh:           make(chan func()),
		closeCh:          make(chan struct{}),
		controlling:      config.Controlling,
		tieBreaker:       tieBreaker,
		localUsername:    config.LocalUsername,
		localPassword:    config.LocalPassword,
		nominated:        make(map[int]*CandidatePair),
		nominating:       make(map[int]bool),
		activeComponents: make(map[int]bool),
		checklistDoneCh:  make(chan checklistResult, 1),
		inbound:          make(chan inboundDatum, 64),
		events:           make(chan ConnectionEvent, 4),
		mdns:             config.MDNSResolver,
		ownsMDNS:         ownsMDNS,
	}
	for c := 1; c <= config.Components; c++ {
		a.activeComponents[c] = true
	}

	a.wg.Add(1)
	go a.loop()
	return a, nil
}

func (a *Agent) loop() {
	defer a.wg.Done()
	for {
		select {
		case task := <-a.taskCh:
			task()
		case <-a.closeCh:
			a.drainTasks()
			return
		}
	}
}

// drainTasks lets already-queued submitters observe ErrClosed instead of
// blocking forever once loop has exited.
func (a *Agent) drainTasks() {
	for {
		select {
		case task := <-a.taskCh:
			task()
		default:
			return
		}
	}
}

// runSync submits f to the task loop and blocks until it has run.
// Returns ErrClosed if the agent is already closed.
func (a *Agent) runSync(f func(*Agent)) error {
	done := make(chan struct{})
	task := func() {
		f(a)
		close(done)
	}
	select {
	case a.taskCh <- task:
	case <-a.closeCh:
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-a.closeCh:
		return nil
	}
}

// runSyncErr is runSync for closures that can themselves fail.
func (a *Agent) runSyncErr(f func(*Agent) error) error {
	var callErr error
	err := a.runSync(func(a *Agent) {
		callErr = f(a)
	})
	if err != nil {
		return err
	}
	return callErr
}

func (a *Agent) LocalUsername() string { return a.localUsername }
func (a *Agent) LocalPassword() string { return a.localPassword }

// LocalCandidates returns the candidates eligible for signaling to the
// peer. Under TransportPolicyRelay, host and srflx candidates are
// withheld per spec §9.
func (a *Agent) LocalCandidates() []Candidate {
	var out []Candidate
	_ = a.runSync(func(a *Agent) {
		for _, lc := range a.localCandidates {
			if a.config.TransportPolicy == TransportPolicyRelay &&
				lc.candidate.Type != CandidateTypeRelay {
				continue
			}
			out = append(out, lc.candidate)
		}
	})
	return out
}

func (a *Agent) RemoteCandidates() []Candidate {
	var out []Candidate
	_ = a.runSync(func(a *Agent) {
		out = append(out, a.remoteCandidates...)
	})
	return out
}

// SetRemoteCredentials sets the remote ufrag/password learned out of
// band through signaling.
func (a *Agent) SetRemoteCredentials(ufrag, password string) error {
	return a.runSyncErr(func(a *Agent) error {
		a.remoteUsername = ufrag
		a.remotePassword = password
		return nil
	})
}

func (a *Agent) SetRemoteIsLite(lite bool) error {
	return a.runSyncErr(func(a *Agent) error {
		a.remoteIsLite = lite
		return nil
	})
}

// ensureMDNS returns the agent's mDNS resolver, acquiring the process-
// wide singleton on first call if the agent wasn't given one. Must run
// on the task loop. Spec §5/§9: "acquired on first remote .local
// candidate."
func (a *Agent) ensureMDNS() MDNSResolver {
	if a.mdns == nil {
		a.mdns = acquireMDNSResolver()
	}
	return a.mdns
}

// GetDefaultCandidate returns the highest-priority local candidate for
// component, or false if none has been gathered.
func (a *Agent) GetDefaultCandidate(component int) (Candidate, bool) {
	var (
		best  Candidate
		found bool
	)
	_ = a.runSync(func(a *Agent) {
		for _, lc := range a.localCandidates {
			if lc.candidate.Component != component {
				continue
			}
			if !found || lc.candidate.Priority > best.Priority {
				best = lc.candidate
				found = true
			}
		}
	})
	return best, found
}

// SetSelectedPair bypasses negotiation entirely, installing a nominated
// pair directly; used when the peer does not speak ICE (spec §4.1).
func (a *Agent) SetSelectedPair(component int, localFoundation, remoteFoundation string) error {
	return a.runSyncErr(func(a *Agent) error {
		var local *localCandidate
		for _, lc := range a.localCandidates {
			if lc.candidate.Component == component && lc.candidate.Foundation == localFoundation {
				local = lc
				break
			}
		}
		var remote *Candidate
		for i := range a.remoteCandidates {
			if a.remoteCandidates[i].Component == component && a.remoteCandidates[i].Foundation == remoteFoundation {
				remote = &a.remoteCandidates[i]
				break
			}
		}
		if local == nil || remote == nil {
			return newError(KindInvalidArgument, "no matching local/remote candidate for component %d", component)
		}
		pair := newCandidatePair(local.candidate, *remote, a.controlling)
		pair.state = PairSucceeded
		pair.nominated = true
		a.checklist = append(a.checklist, pair)
		a.installNominated(component, pair)
		return nil
	})
}

// GetEvent blocks until the next ConnectionEvent, ctx expires, or the
// agent closes. At most one awaiter is expected, per spec §4.1.
func (a *Agent) GetEvent(ctx context.Context) (ConnectionEvent, error) {
	select {
	case ev := <-a.events:
		return ev, nil
	case <-ctx.Done():
		return ConnectionEvent{}, ctx.Err()
	case <-a.closeCh:
		return ConnectionEvent{Kind: EventClosed}, nil
	}
}

func (a *Agent) postEvent(kind EventKind) {
	select {
	case a.events <- ConnectionEvent{Kind: kind}:
	default:
	}
}

// Send writes data to the nominated pair of component 1.
func (a *Agent) Send(data []byte) error { return a.SendTo(data, 1) }

// SendTo writes data through the nominated pair's endpoint for
// component.
func (a *Agent) SendTo(data []byte, component int) error {
	return a.runSyncErr(func(a *Agent) error {
		pair, ok := a.nominated[component]
		if !ok {
			return ErrNoNominatedPair
		}
		ep := a.findEndpoint(pair.Local)
		if ep == nil {
			return ErrNoNominatedPair
		}
		return ep.sendData(data, pair.Remote.addr())
	})
}

// findEndpoint locates the endpoint backing local candidate c.
func (a *Agent) findEndpoint(c Candidate) *endpoint {
	for _, lc := range a.localCandidates {
		if lc.candidate.Component == c.Component && lc.candidate.IP.Equal(c.IP) && lc.candidate.Port == c.Port {
			return lc.endpoint
		}
	}
	return nil
}

// Recv reads the next datagram received on component 1's nominated pair.
func (a *Agent) Recv(ctx context.Context) ([]byte, error) {
	return a.RecvFrom(ctx, 1)
}

// RecvFrom reads the next datagram for component, blocking until data
// arrives, ctx expires, or the transport is lost.
func (a *Agent) RecvFrom(ctx context.Context, component int) ([]byte, error) {
	var ready bool
	_ = a.runSync(func(a *Agent) {
		_, ready = a.nominated[component]
	})
	if !ready {
		return nil, ErrNoNominatedPair
	}
	for {
		select {
		case d := <-a.inbound:
			if d.lost {
				return nil, ErrClosed
			}
			if d.component != component {
				continue
			}
			return d.data, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-a.closeCh:
			return nil, ErrClosed
		}
	}
}

// Close tears the agent down exactly once: cancels consent, posts
// ICE_FAILED if the checklist wait is still pending, releases the mDNS
// reference, closes every endpoint, and emits ConnectionClosed.
func (a *Agent) Close() error {
	err := a.runSync(func(a *Agent) {
		if a.closed {
			return
		}
		a.closed = true

		if a.consentCancel != nil {
			a.consentCancel()
		}
		select {
		case a.checklistDoneCh <- checklistResult{event: EventFailed}:
		default:
		}
		if a.ownsMDNS && a.mdns != nil {
			releaseMDNSResolver()
		}
		for _, lc := range a.localCandidates {
			_ = lc.endpoint.close()
		}
		a.localCandidates = nil

		a.eventOnce.Do(func() { a.postEvent(EventClosed) })
	})
	if err == ErrClosed {
		// An earlier Close already tore the agent down.
		return nil
	}
	if err != nil {
		return err
	}
	a.closeOnce.Do(func() { close(a.closeCh) })
	a.wg.Wait()
	return nil
}

func mathRandFloat(lo, hi float64) float64 {
	return lo + rand.Float64()*(hi-lo)
}
