package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	opReply = "chat.reply"

	// MaxHistory bounds the number of prior messages forwarded to the model.
	MaxHistory = 20
	// MaxMessageLength bounds a single user message in bytes.
	MaxMessageLength = 4000

	FallbackEmptyReply = "Still processing data... try again in a moment."
	FallbackFailure    = "Sorry, my AI core glitched. Could you say that again?"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one turn of a conversation.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

var (
	// ErrEmptyMessage indicates that the user message is blank.
	ErrEmptyMessage = errors.New("chat: message is required")
	// ErrMessageTooLong indicates that the user message exceeds MaxMessageLength.
	ErrMessageTooLong = errors.New("chat: message too long")
	// ErrInvalidRole indicates a history entry with an unknown role.
	ErrInvalidRole = errors.New("chat: invalid history role")
)

// Completer produces the model's next turn.
type Completer interface {
	Complete(ctx context.Context, systemInstruction string, history []Message, message string) (string, error)
}

// PersonaSource supplies the system instruction at request time.
type PersonaSource interface {
	SystemInstruction(ctx context.Context) string
}

type ServiceConfig struct {
	Completer Completer
	Persona   PersonaSource
	Logger    *zap.Logger
}

// Service answers visitor questions. Completion failures never reach the
// caller; they turn into fixed fallback replies.
type Service struct {
	completer Completer
	persona   PersonaSource
	logger    *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Completer == nil {
		return nil, errors.New("chat: completer is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{completer: cfg.Completer, persona: cfg.Persona, logger: logger}, nil
}

// ValidateRequest checks the inputs of Reply.
func ValidateRequest(history []Message, message string) error {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return ErrEmptyMessage
	}
	if len(trimmed) > MaxMessageLength {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLong, len(trimmed))
	}
	for index, entry := range history {
		if entry.Role != RoleUser && entry.Role != RoleModel {
			return fmt.Errorf("%w: %q at %d", ErrInvalidRole, entry.Role, index)
		}
	}
	return nil
}

// Reply returns the model's answer to message. Only input validation
// produces an error.
func (s *Service) Reply(ctx context.Context, history []Message, message string) (string, error) {
	if err := ValidateRequest(history, message); err != nil {
		return "", err
	}
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}

	instruction := ""
	if s.persona != nil {
		instruction = s.persona.SystemInstruction(ctx)
	}

	reply, err := s.completer.Complete(ctx, instruction, history, strings.TrimSpace(message))
	if err != nil {
		s.logger.Error("chat completion failed",
			zap.String("operation", opReply),
			zap.String("reason", "completion_failed"),
			zap.Error(err))
		return FallbackFailure, nil
	}
	if strings.TrimSpace(reply) == "" {
		s.logger.Warn("chat completion empty",
			zap.String("operation", opReply),
			zap.String("reason", "empty_reply"))
		return FallbackEmptyReply, nil
	}
	return reply, nil
}
