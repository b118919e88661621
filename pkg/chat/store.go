package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"portfolio-chat/internal/pkg/logger"
	"portfolio-chat/pkg/events"
	"portfolio-chat/pkg/feedback"
	"portfolio-chat/pkg/typing"

	"github.com/google/uuid"
)

type State string

const (
	StateIdle      State = "idle"
	StateSending   State = "sending"
	StateStreaming State = "streaming"
	StateCompleted State = "completed"
	StateStopped   State = "stopped"
	StateFailed    State = "failed"
)

// Streamer opens a chat stream. *Client implements it.
type Streamer interface {
	StreamChat(ctx context.Context, req ChatRequest, messageID string, onUpdate func(StreamUpdate)) (*ChatResponse, error)
}

// Sessions is the part of the session manager the store needs.
type Sessions interface {
	GetSessionID(ctx context.Context) (string, error)
	ResetSession(ctx context.Context) (string, error)
}

type FeedbackSubmitter interface {
	Submit(ctx context.Context, req feedback.Request) (feedback.Receipt, error)
}

type StoreOptions struct {
	Typing   typing.Options
	Feedback FeedbackSubmitter
	Events   events.Publisher
	Logger   logger.ILogger
	// OnChange runs after every visible mutation, outside the store lock. It
	// may read the store but must not call Stop, Clear or ResetSession.
	OnChange func()
	NewID    func() string
	Now      func() time.Time
}

// Store owns the ordered conversation and drives one send at a time.
type Store struct {
	streamer Streamer
	sessions Sessions
	feedback FeedbackSubmitter
	events   events.Publisher
	logger   logger.ILogger
	onChange func()
	typing   typing.Options
	newID    func() string
	now      func() time.Time

	mu           sync.Mutex
	messages     []Message
	state        State
	lastErr      *Error
	loading      bool
	lastQuestion string

	// Per-send bookkeeping, valid while inFlight.
	inFlight  bool
	stopped   bool
	cancel    context.CancelFunc
	done      chan struct{}
	animator  *typing.Animator
	activeID  string
	sessionID string
}

func NewStore(streamer Streamer, sessions Sessions, opts StoreOptions) *Store {
	log := logger.OrNop(opts.Logger)
	if opts.Feedback == nil {
		opts.Feedback = feedback.NewSubmitter(nil, log)
	}
	if opts.Events == nil {
		opts.Events = events.NopBus{}
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		streamer: streamer,
		sessions: sessions,
		feedback: opts.Feedback,
		events:   opts.Events,
		logger:   log,
		onChange: opts.OnChange,
		typing:   opts.Typing,
		newID:    opts.NewID,
		now:      opts.Now,
		state:    StateIdle,
	}
}

// Messages returns a snapshot of the conversation.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.clone()
	}
	return out
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// LastError is the error surfaced by the last failed send, nil otherwise.
func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastErr == nil {
		return nil
	}
	return s.lastErr
}

// DismissError clears the surfaced error without retrying.
func (s *Store) DismissError() {
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
	s.notify()
}

func validateQuestion(question string) (string, error) {
	question = strings.TrimSpace(question)
	n := utf8.RuneCountInString(question)
	if n == 0 || n > MaxQuestionLength {
		return "", validationError(fmt.Sprintf("question must be between 1 and %d characters", MaxQuestionLength))
	}
	return question, nil
}

// Send appends the question and an assistant placeholder, streams the answer
// into the placeholder and blocks until the send completed, failed or was
// stopped. A concurrent Send fails with ErrSendInFlight. Stopping is not an
// error.
func (s *Store) Send(ctx context.Context, question string) error {
	question, err := validateQuestion(question)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return ErrSendInFlight
	}
	sendCtx, cancel := context.WithCancel(ctx)
	s.inFlight = true
	s.stopped = false
	s.cancel = cancel
	s.done = make(chan struct{})
	s.loading = true
	s.state = StateSending
	s.lastErr = nil
	s.lastQuestion = question
	done := s.done
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.inFlight = false
		s.cancel = nil
		s.done = nil
		s.animator = nil
		s.activeID = ""
		s.mu.Unlock()
		close(done)
	}()

	return s.attempt(sendCtx, question, true)
}

func (s *Store) attempt(ctx context.Context, question string, allowReset bool) error {
	sessionID, err := s.sessions.GetSessionID(ctx)
	if err != nil {
		return s.fail(ctx, "", &Error{Kind: KindNetwork, Message: "session unavailable", Err: err})
	}

	userID, assistantID := s.newID(), s.newID()
	animator := typing.NewAnimator(s.typing)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	now := s.now()
	s.messages = append(s.messages,
		Message{ID: userID, Role: RoleUser, Content: question, Timestamp: now},
		Message{ID: assistantID, Role: RoleAssistant, Timestamp: now},
	)
	s.animator = animator
	s.activeID = assistantID
	s.sessionID = sessionID
	s.mu.Unlock()
	s.notify()

	s.publish(ctx, events.TypeMessageSent, map[string]interface{}{
		"session_id": sessionID,
		"message_id": userID,
		"question":   question,
	})

	animator.Start(func(text string) { s.reveal(assistantID, text) })

	resp, err := s.streamer.StreamChat(ctx, ChatRequest{Question: question, SessionID: sessionID}, assistantID, func(u StreamUpdate) {
		s.applyStreamUpdate(assistantID, &u)
		if u.Answer != nil {
			animator.Push(*u.Answer)
		}
	})

	if err == nil {
		animator.Push(resp.Answer)
		if waitErr := animator.WaitCaughtUp(ctx, utf8.RuneCountInString(resp.Answer)); waitErr != nil {
			animator.Stop()
			if s.isStopped() {
				return nil
			}
			ce := classifyTransport(ctx, waitErr)
			if ce.Kind == KindAborted {
				s.freeze(ctx, assistantID)
				return nil
			}
			return s.fail(ctx, assistantID, ce)
		}
		animator.Stop()
		return s.complete(ctx, assistantID, resp)
	}

	animator.Stop()
	if s.isStopped() {
		return nil
	}

	ce := classifyTransport(ctx, err)
	if ce.Kind == KindAborted {
		// Cancelled by the caller's context rather than Stop: freeze like a stop.
		s.freeze(ctx, assistantID)
		return nil
	}

	if ce.Kind == KindSessionExpired && allowReset {
		s.logger.Warn("CHAT", "Session expired, resetting and resending", map[string]interface{}{
			"session_id": sessionID,
		})
		s.removeMessages(userID, assistantID)
		newID, resetErr := s.sessions.ResetSession(ctx)
		if resetErr != nil {
			return s.fail(ctx, "", &Error{Kind: KindSessionExpired, StatusCode: ce.StatusCode, Message: ce.Message, Err: resetErr})
		}
		s.publish(ctx, events.TypeSessionReset, map[string]interface{}{
			"previous_session_id": sessionID,
			"session_id":          newID,
			"reason":              "expired",
		})
		return s.attempt(ctx, question, false)
	}

	return s.fail(ctx, assistantID, ce)
}

func (s *Store) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// reveal is the animator callback for the active assistant message.
func (s *Store) reveal(id, text string) {
	s.mu.Lock()
	if s.stopped || s.activeID != id {
		s.mu.Unlock()
		return
	}
	if m := s.findLocked(id); m != nil {
		m.Content = text
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) applyStreamUpdate(id string, u *StreamUpdate) {
	s.mu.Lock()
	if s.stopped || s.activeID != id {
		s.mu.Unlock()
		return
	}
	s.state = StateStreaming
	if m := s.findLocked(id); m != nil {
		m.applyUpdate(u)
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) complete(ctx context.Context, id string, resp *ChatResponse) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	if m := s.findLocked(id); m != nil {
		m.applyFinal(resp)
	}
	s.state = StateCompleted
	s.loading = false
	sessionID := s.sessionID
	s.mu.Unlock()
	s.notify()

	if resp.SessionID != sessionID {
		s.logger.Debug("CHAT", "Backend answered under a different session id", map[string]interface{}{
			"session_id":         sessionID,
			"backend_session_id": resp.SessionID,
		})
	}
	s.publish(ctx, events.TypeMessageCompleted, map[string]interface{}{
		"session_id":   sessionID,
		"message_id":   id,
		"sources":      len(resp.Sources),
		"grounded":     resp.Grounded,
		"answer_runes": utf8.RuneCountInString(resp.Answer),
	})
	return nil
}

// fail drops the placeholder and surfaces err. The user message stays so
// Retry can resend it.
func (s *Store) fail(ctx context.Context, placeholderID string, err *Error) error {
	s.mu.Lock()
	if placeholderID != "" {
		s.removeLocked(placeholderID)
	}
	s.state = StateFailed
	s.loading = false
	s.lastErr = err
	sessionID := s.sessionID
	s.mu.Unlock()
	s.notify()

	s.logger.Error("CHAT", "Chat request failed", map[string]interface{}{
		"session_id": sessionID,
		"kind":       string(err.Kind),
		"status":     err.StatusCode,
		"error":      err.Error(),
	})
	s.publish(ctx, events.TypeMessageFailed, map[string]interface{}{
		"session_id": sessionID,
		"kind":       string(err.Kind),
		"status":     err.StatusCode,
	})
	return err
}

func (s *Store) freeze(ctx context.Context, id string) {
	s.mu.Lock()
	s.stopped = true
	s.state = StateStopped
	s.loading = false
	sessionID := s.sessionID
	s.mu.Unlock()
	s.notify()

	s.publish(ctx, events.TypeMessageStopped, map[string]interface{}{
		"session_id": sessionID,
		"message_id": id,
	})
}

// Stop aborts the in-flight send. Content revealed so far stays as the
// message's final text, and no error is recorded. Stop returns once the
// send has unwound.
func (s *Store) Stop() {
	s.mu.Lock()
	if !s.inFlight {
		s.mu.Unlock()
		return
	}
	if s.stopped || !s.loading {
		// Already stopped, or finished and only unwinding.
		done := s.done
		s.mu.Unlock()
		<-done
		return
	}
	s.stopped = true
	s.state = StateStopped
	s.loading = false
	cancel, done, anim := s.cancel, s.done, s.animator
	id, sessionID := s.activeID, s.sessionID
	s.mu.Unlock()

	cancel()
	// Outside the lock: the animator callback takes s.mu.
	if anim != nil {
		anim.Stop()
	}
	<-done
	s.notify()

	s.logger.Info("CHAT", "Generation stopped", map[string]interface{}{
		"session_id": sessionID,
		"message_id": id,
	})
	s.publish(context.Background(), events.TypeMessageStopped, map[string]interface{}{
		"session_id": sessionID,
		"message_id": id,
	})
}

// Retry resends the last question after a failure.
func (s *Store) Retry(ctx context.Context) error {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return ErrSendInFlight
	}
	if s.state != StateFailed || s.lastQuestion == "" {
		s.mu.Unlock()
		return ErrNothingToRetry
	}
	question := s.lastQuestion
	if n := len(s.messages); n > 0 {
		last := s.messages[n-1]
		if last.Role == RoleUser && last.Content == question {
			s.messages = s.messages[:n-1]
		}
	}
	s.mu.Unlock()

	return s.Send(ctx, question)
}

// Clear stops any in-flight send and drops the conversation. The session is
// kept.
func (s *Store) Clear() {
	s.Stop()

	s.mu.Lock()
	s.messages = nil
	s.state = StateIdle
	s.lastErr = nil
	s.lastQuestion = ""
	s.mu.Unlock()
	s.notify()
}

// ResetSession stops any in-flight send, starts a new session and replaces
// the conversation with an empty one.
func (s *Store) ResetSession(ctx context.Context) (string, error) {
	s.Stop()

	previous, _ := s.sessions.GetSessionID(ctx)
	id, err := s.sessions.ResetSession(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.messages = nil
	s.state = StateIdle
	s.lastErr = nil
	s.lastQuestion = ""
	s.mu.Unlock()
	s.notify()

	s.publish(ctx, events.TypeSessionReset, map[string]interface{}{
		"previous_session_id": previous,
		"session_id":          id,
		"reason":              "user",
	})
	return id, nil
}

// SubmitFeedback rates an assistant message. The message is marked rated
// whether or not delivery succeeded; only invalid input is an error.
func (s *Store) SubmitFeedback(ctx context.Context, messageID string, thumbsUp bool, comment string) (feedback.Receipt, error) {
	s.mu.Lock()
	m := s.findLocked(messageID)
	if m == nil || m.Role != RoleAssistant {
		s.mu.Unlock()
		return feedback.Receipt{}, ErrUnknownMessage
	}
	s.mu.Unlock()

	sessionID, err := s.sessions.GetSessionID(ctx)
	if err != nil {
		return feedback.Receipt{}, err
	}

	req := feedback.NewRequest(sessionID, messageID, thumbsUp, comment)
	receipt, err := s.feedback.Submit(ctx, req)
	if err != nil {
		return receipt, err
	}

	state := &FeedbackState{ThumbsUp: thumbsUp, Delivered: receipt.Delivered}
	if req.Comment != nil {
		state.Comment = *req.Comment
	}

	s.mu.Lock()
	if m := s.findLocked(messageID); m != nil {
		m.Feedback = state
	}
	s.mu.Unlock()
	s.notify()

	s.publish(ctx, events.TypeFeedbackSubmitted, map[string]interface{}{
		"session_id": sessionID,
		"message_id": messageID,
		"thumbs_up":  thumbsUp,
		"delivered":  receipt.Delivered,
	})
	return receipt, nil
}

func (s *Store) findLocked(id string) *Message {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return &s.messages[i]
		}
	}
	return nil
}

func (s *Store) removeLocked(id string) {
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

func (s *Store) removeMessages(ids ...string) {
	s.mu.Lock()
	for _, id := range ids {
		s.removeLocked(id)
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

func (s *Store) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if errors.Is(ctx.Err(), context.Canceled) {
		ctx = context.Background()
	}
	if err := s.events.Publish(ctx, events.New(eventType, data)); err != nil {
		s.logger.Warn("EVENTS", "Failed to publish chat event", map[string]interface{}{
			"event_type": eventType,
			"error":      err.Error(),
		})
	}
}
