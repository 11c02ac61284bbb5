package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"companion-chat/backend/ai"
	"companion-chat/backend/internal/models"
	"companion-chat/backend/pkg/logger"
	"companion-chat/backend/shared/observability"

	"go.opentelemetry.io/otel/attribute"
)

// Turn modes
const (
	ModeText  = models.MessageTypeText
	ModeImage = models.MessageTypeImage
)

// TurnRequest is one user turn in a session
type TurnRequest struct {
	CharacterID uint   `json:"characterId"`
	SessionID   string `json:"sessionId"`
	Text        string `json:"text"`
	Mode        string `json:"mode"`
	Model       string `json:"model"`
}

// TurnResult holds the messages persisted by a turn, in insertion order
type TurnResult struct {
	Messages []models.ChatMessage `json:"messages"`
}

// TurnNotifier observes a running turn. Either method may be called from the
// goroutine running SendTurn.
type TurnNotifier interface {
	SetTyping(active bool)
	MessagePersisted(msg *models.ChatMessage)
}

type nopNotifier struct{}

func (nopNotifier) SetTyping(bool)                       {}
func (nopNotifier) MessagePersisted(*models.ChatMessage) {}

// TurnConfig tunes a TurnService
type TurnConfig struct {
	DefaultModel string
	MaxHistory   int
	RelayTimeout time.Duration
}

// TurnService drives a chat turn: user message, relay call, AI-side message.
// Relay failures end in a persisted fallback message instead of an error.
type TurnService struct {
	messages   *MessageService
	characters CharacterGetter
	chat       ai.ChatCompleter
	images     ai.ImageGenerator
	config     TurnConfig
	metrics    *observability.Metrics
	log        *logger.Logger
}

func NewTurnService(messages *MessageService, characters CharacterGetter, chat ai.ChatCompleter, images ai.ImageGenerator, cfg TurnConfig, metrics *observability.Metrics, log *logger.Logger) *TurnService {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 50
	}
	if cfg.RelayTimeout <= 0 {
		cfg.RelayTimeout = 30 * time.Second
	}
	return &TurnService{
		messages:   messages,
		characters: characters,
		chat:       chat,
		images:     images,
		config:     cfg,
		metrics:    metrics,
		log:        log,
	}
}

func (s *TurnService) normalize(req *TurnRequest) error {
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return fmt.Errorf("%w: text is required", ErrInvalidTurn)
	}
	if req.Mode == "" {
		req.Mode = ModeText
	}
	if req.Mode != ModeText && req.Mode != ModeImage {
		return fmt.Errorf("%w: mode must be text or image", ErrInvalidTurn)
	}
	if err := ValidateSessionID(req.SessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTurn, err)
	}
	if req.Model == "" {
		req.Model = s.config.DefaultModel
	}
	return nil
}

// SendTurn persists the user message, calls the chat or image relay once and
// persists the AI-side reply. A nil notifier is allowed.
func (s *TurnService) SendTurn(ctx context.Context, req TurnRequest, notifier TurnNotifier) (*TurnResult, error) {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if err := s.normalize(&req); err != nil {
		return nil, err
	}

	character, err := s.characters.GetCharacter(ctx, req.CharacterID)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.Tracer().Start(ctx, "chat.turn")
	defer span.End()
	span.SetAttributes(
		attribute.Int("character.id", int(req.CharacterID)),
		attribute.String("turn.mode", req.Mode),
	)

	log := s.log.WithContext(ctx).WithSession(req.CharacterID, req.SessionID)

	t := &turn{
		service:  s,
		req:      req,
		notifier: notifier,
		// the reply must land even if the caller goes away mid-relay
		ctx: context.WithoutCancel(ctx),
	}

	if err := t.persist(req.Text, true, req.Mode); err != nil {
		return nil, err
	}

	var outcome string
	if req.Mode == ModeImage {
		outcome, err = t.runImage(character, log)
	} else {
		outcome, err = t.runText(character, log)
	}
	if err != nil {
		s.metrics.RecordTurn(ctx, req.Mode, "error")
		return nil, err
	}

	span.SetAttributes(attribute.String("turn.outcome", outcome))
	s.metrics.RecordTurn(ctx, req.Mode, outcome)
	return &TurnResult{Messages: t.persisted}, nil
}

type turn struct {
	service   *TurnService
	req       TurnRequest
	notifier  TurnNotifier
	ctx       context.Context
	persisted []models.ChatMessage
}

func (t *turn) persist(content string, isUser bool, messageType string) error {
	msg := &models.ChatMessage{
		CharacterID: t.req.CharacterID,
		SessionID:   t.req.SessionID,
		Content:     content,
		IsUser:      isUser,
		MessageType: messageType,
	}
	if err := t.service.messages.repo.Create(t.ctx, msg); err != nil {
		return fmt.Errorf("persist turn message: %w", err)
	}
	t.persisted = append(t.persisted, *msg)
	t.notifier.MessagePersisted(msg)
	return nil
}

func (t *turn) runText(character *models.Character, log *logger.Logger) (string, error) {
	history, err := t.service.messages.RecentTextMessages(t.ctx, t.req.CharacterID, t.req.SessionID, t.service.config.MaxHistory)
	if err != nil {
		log.LogError(err, "Failed to load history, sending latest turn only")
		history = t.persisted
	}

	reply, err := t.relay(func(ctx context.Context) (string, error) {
		return t.service.chat.Complete(ctx, t.req.Model, ai.BuildConversation(character, history))
	})

	outcome := "success"
	if err != nil || strings.TrimSpace(reply) == "" {
		log.Warn("Chat relay failed, persisting fallback", "model", t.req.Model, "error", errString(err))
		reply = ai.ChatFallbackMessage
		outcome = "fallback"
	}

	return outcome, t.persist(reply, false, models.MessageTypeText)
}

func (t *turn) runImage(character *models.Character, log *logger.Logger) (string, error) {
	if err := t.persist(ai.ImageAcknowledgement(t.req.Text), false, models.MessageTypeText); err != nil {
		return "", err
	}

	url, err := t.relay(func(ctx context.Context) (string, error) {
		res, err := t.service.images.Generate(ctx, ai.ImageRequest{
			Prompt: ai.PosePrompt(character, t.req.Text),
			Style:  ai.StyleNatural,
		})
		if err != nil {
			return "", err
		}
		return res.URL, nil
	})

	if err != nil || url == "" {
		log.Warn("Image relay failed, persisting fallback", "error", errString(err))
		return "fallback", t.persist(ai.ImageFallbackMessage, false, models.MessageTypeText)
	}
	return "success", t.persist(url, false, models.MessageTypeImage)
}

// relay makes the single upstream attempt with the typing indicator raised
func (t *turn) relay(call func(ctx context.Context) (string, error)) (result string, err error) {
	t.notifier.SetTyping(true)
	defer t.notifier.SetTyping(false)

	ctx, cancel := context.WithTimeout(t.ctx, t.service.config.RelayTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			result, err = "", fmt.Errorf("relay panicked: %v", r)
		}
	}()

	return call(ctx)
}

func errString(err error) string {
	if err == nil {
		return "empty reply"
	}
	return err.Error()
}
