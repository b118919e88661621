// Package feedback submits thumbs-up/down ratings for assistant answers.
// Submission is fire-and-forget: delivery failures never reach the user.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"portfolio-chat/internal/pkg/logger"

	"github.com/go-playground/validator/v10"
)

const MaxCommentLength = 500

var ErrInvalidFeedback = errors.New("feedback: invalid request")

// Request is the wire body of POST /feedback.
type Request struct {
	SessionID string  `json:"session_id" validate:"required"`
	MessageID string  `json:"message_id" validate:"required"`
	ThumbsUp  *bool   `json:"thumbs_up" validate:"required"`
	Comment   *string `json:"comment"`
}

// Sender delivers a validated request to the backend.
type Sender interface {
	PostFeedback(ctx context.Context, req Request) error
}

// Receipt tells the caller what happened. Submitted is always true once
// validation passed.
type Receipt struct {
	Submitted bool
	Delivered bool
}

type Submitter struct {
	sender   Sender
	logger   logger.ILogger
	validate *validator.Validate
}

func NewSubmitter(sender Sender, log logger.ILogger) *Submitter {
	return &Submitter{
		sender:   sender,
		logger:   logger.OrNop(log),
		validate: validator.New(),
	}
}

// NewRequest builds a request, truncating the comment and turning an empty
// one into null.
func NewRequest(sessionID, messageID string, thumbsUp bool, comment string) Request {
	return Request{
		SessionID: sessionID,
		MessageID: messageID,
		ThumbsUp:  &thumbsUp,
		Comment:   NormalizeComment(comment),
	}
}

// NormalizeComment trims the comment and caps it at MaxCommentLength runes.
func NormalizeComment(comment string) *string {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil
	}
	if r := []rune(comment); len(r) > MaxCommentLength {
		comment = string(r[:MaxCommentLength])
	}
	return &comment
}

// Validate reports missing mandatory fields as ErrInvalidFeedback.
func (s *Submitter) Validate(req Request) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return fmt.Errorf("%w: missing %s", ErrInvalidFeedback, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidFeedback, err)
	}
	return nil
}

// Submit validates and sends the request. Only validation failures are
// returned; transport errors are logged and reflected in Receipt.Delivered.
func (s *Submitter) Submit(ctx context.Context, req Request) (Receipt, error) {
	if req.Comment != nil {
		req.Comment = NormalizeComment(*req.Comment)
	}
	if err := s.Validate(req); err != nil {
		return Receipt{}, err
	}

	if s.sender == nil {
		return Receipt{Submitted: true}, nil
	}

	if err := s.sender.PostFeedback(ctx, req); err != nil {
		s.logger.Warn("FEEDBACK", "Failed to deliver feedback", map[string]interface{}{
			"session_id": req.SessionID,
			"message_id": req.MessageID,
			"error":      err.Error(),
		})
		return Receipt{Submitted: true}, nil
	}

	s.logger.Info("FEEDBACK", "Feedback delivered", map[string]interface{}{
		"session_id": req.SessionID,
		"message_id": req.MessageID,
		"thumbs_up":  *req.ThumbsUp,
	})
	return Receipt{Submitted: true, Delivered: true}, nil
}
