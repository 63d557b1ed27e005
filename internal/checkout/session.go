package checkout

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"minter/internal/logger"
	"minter/internal/postmint"

	"go.uber.org/zap"
)

type Notice struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type HostEvent struct {
	Type  string          `json:"type"`
	Share *postmint.Share `json:"share,omitempty"`
	At    time.Time       `json:"at"`
}

const (
	EventAddMiniApp = "add_mini_app"
	EventShare      = "share"
)

// Session is one checkout of one song by one buyer.
type Session struct {
	ID string

	svc        *Service
	songTitle  string
	artistName string

	mu         sync.Mutex
	request    MintRequest
	state      State
	inFlight   bool
	closed     bool
	touched    time.Time
	affordable *bool
	allowance  *big.Int
	notices    []Notice
	events     []HostEvent
	outcome    *postmint.Outcome
}

type Snapshot struct {
	ID         string            `json:"id"`
	State      State             `json:"state"`
	Request    MintRequest       `json:"request"`
	SongTitle  string            `json:"songTitle"`
	Quote      *Quote            `json:"quote,omitempty"`
	Affordable *bool             `json:"affordable,omitempty"`
	Label      string            `json:"label"`
	InFlight   bool              `json:"inFlight"`
	Notices    []Notice          `json:"notices"`
	Events     []HostEvent       `json:"events"`
	Outcome    *postmint.Outcome `json:"outcome,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := Snapshot{
		ID:         s.ID,
		State:      s.state,
		Request:    s.request,
		SongTitle:  s.songTitle,
		Affordable: s.affordable,
		Label:      s.labelLocked(),
		InFlight:   s.inFlight,
		Notices:    append([]Notice(nil), s.notices...),
		Events:     append([]HostEvent(nil), s.events...),
		Outcome:    s.outcome,
	}
	if quote, err := s.request.Quote(s.request.Quantity, s.request.Method); err == nil {
		snapshot.Quote = &quote
	}
	return snapshot
}

func (s *Session) labelLocked() string {
	switch {
	case s.state == Success:
		return "Minted"
	case s.state == Confirming || s.inFlight:
		return "Confirming..."
	case s.affordable != nil && !*s.affordable:
		return "Insufficient balance"
	}
	return "Mint"
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Request() MintRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.request
}

func (s *Session) SetQuantity(quantity int64) error {
	if err := ValidateQuantity(quantity); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	s.request.Quantity = quantity
	s.affordable = nil
	return nil
}

func (s *Session) SetPaymentMethod(method PaymentMethod) error {
	if _, err := ParsePaymentMethod(string(method)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	s.request.Method = method
	s.affordable = nil
	return nil
}

func (s *Session) editableLocked() error {
	switch {
	case s.closed:
		return ErrSessionClosed
	case s.inFlight:
		return ErrInFlight
	case s.state != Initial:
		return fmt.Errorf("%w: session is %s", ErrInvalidTransition, s.state)
	}
	return nil
}

// Refresh re-reads the live rate and the buyer's affordability for the
// selected payment method.
func (s *Session) Refresh(ctx context.Context) error {
	if err := s.refreshRate(ctx); err != nil {
		logger.Warn("checkout: rate refresh failed", zap.String("session", s.ID), zap.Error(err))
	}

	_, err := s.CheckAffordability(ctx, s.Request().Method)
	return err
}

func (s *Session) refreshRate(ctx context.Context) error {
	if s.svc.feed == nil {
		return ErrInvalidRate
	}

	rate, err := s.svc.feed.NativeUSDRate(ctx)
	if err != nil {
		return err
	}
	if !rate.IsPositive() {
		return ErrInvalidRate
	}

	s.mu.Lock()
	s.request.Rate = rate
	s.mu.Unlock()
	return nil
}

// CheckAffordability compares the required total for method against the
// buyer's live balance in that currency.
func (s *Session) CheckAffordability(ctx context.Context, method PaymentMethod) (bool, error) {
	request := s.Request()

	quote, err := request.Quote(request.Quantity, method)
	if err != nil {
		return false, err
	}

	var balance *big.Int
	switch method {
	case Stablecoin:
		balance, err = s.svc.wallet.TokenBalance(ctx, s.svc.opts.StablecoinAddress, request.Buyer)
	case Native:
		balance, err = s.svc.wallet.NativeBalance(ctx, request.Buyer)
	}
	if err != nil {
		return false, fmt.Errorf("checkout: read balance: %w", err)
	}

	affordable := balance.Cmp(quote.MinorUnits()) >= 0

	s.mu.Lock()
	if s.request.Method == method {
		s.affordable = &affordable
	}
	s.mu.Unlock()

	return affordable, nil
}

func (s *Session) refreshAllowance(ctx context.Context) (*big.Int, error) {
	request := s.Request()

	allowance, err := s.svc.wallet.Allowance(ctx, s.svc.opts.StablecoinAddress, request.Buyer, s.svc.opts.SaleContractAddress)
	if err != nil {
		logger.Warn("checkout: allowance refresh failed", zap.String("session", s.ID), zap.Error(err))
		return nil, err
	}

	s.mu.Lock()
	s.allowance = allowance
	s.mu.Unlock()
	return allowance, nil
}

// begin claims the session for one submission flow.
func (s *Session) begin(quantity int64, method PaymentMethod) error {
	if err := ValidateQuantity(quantity); err != nil {
		return err
	}
	if _, err := ParsePaymentMethod(string(method)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	s.inFlight = true
	s.request.Quantity = quantity
	s.request.Method = method
	return nil
}

// end releases the in-flight claim; a session closed meanwhile leaves the
// registry now.
func (s *Session) end() {
	s.mu.Lock()
	s.inFlight = false
	s.touched = time.Now()
	closed := s.closed
	s.mu.Unlock()

	if closed {
		s.svc.remove(s.ID)
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.touched = now
	s.mu.Unlock()
}

// expire closes the session when it has been idle for ttl with nothing in flight.
func (s *Session) expire(now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight || now.Sub(s.touched) < ttl {
		return false
	}
	s.closed = true
	return true
}

// close marks the session closed and reports whether a flow is still running.
func (s *Session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.inFlight
}

func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(to)
}

func (s *Session) transitionLocked(to State) error {
	if !s.state.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, to)
	}
	logger.Debug("checkout: state transition", zap.String("session", s.ID), zap.Stringer("from", s.state), zap.Stringer("to", to))
	s.state = to
	return nil
}

// enterConfirming is called once the wallet reports a pending transaction.
func (s *Session) enterConfirming() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Confirming {
		return nil
	}
	return s.transitionLocked(Confirming)
}

func (s *Session) notice(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, Notice{Message: message, At: time.Now()})
}

func (s *Session) event(event HostEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.At = time.Now()
	s.events = append(s.events, event)
}

// sessionHost exposes a session to the post-mint pipeline.
type sessionHost struct {
	session *Session
}

func (h sessionHost) PromptAddMiniApp(ctx context.Context) error {
	h.session.mu.Lock()
	closed := h.session.closed
	h.session.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	h.session.event(HostEvent{Type: EventAddMiniApp})
	return nil
}

func (h sessionHost) Notice(message string) {
	h.session.notice(message)
}

func (h sessionHost) Share(share postmint.Share) {
	h.session.event(HostEvent{Type: EventShare, Share: &share})
}
