// Package translation swaps bot replies to another language and back.
package translation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/PabloGalante/chicha/internal/domain"
	"github.com/PabloGalante/chicha/internal/observability"
)

// NotifierFunc picks where a session's notifications go.
type NotifierFunc func(sessionID domain.SessionID) domain.Notifier

type Service struct {
	messages   domain.MessageStore
	translator domain.Translator
	notifier   NotifierFunc
}

func NewService(messages domain.MessageStore, translator domain.Translator, notifier NotifierFunc) *Service {
	return &Service{
		messages:   messages,
		translator: translator,
		notifier:   notifier,
	}
}

// Translate replaces the displayed text of a bot message with its
// translation and keeps the original for Revert. A message that is already
// translated is translated again from its original text.
func (s *Service) Translate(
	ctx context.Context,
	sessionID domain.SessionID,
	messageID domain.MessageID,
	code string,
) (*domain.Message, error) {

	log := observability.LoggerFromContext(ctx).With(
		"session_id", sessionID,
		"message_id", messageID,
		"target", code,
	)

	lang, err := Lookup(code)
	if err != nil {
		return nil, err
	}

	msg, err := s.translatable(sessionID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.TranslatedTo == lang.Code {
		return msg, nil
	}

	source := msg.Text
	if msg.Translated() {
		source = msg.Original
	}

	var translated string
	err = errors.New("translator not configured")
	if s.translator != nil {
		translated, err = s.translator.Translate(ctx, source, lang.Code)
	}
	if err == nil && strings.TrimSpace(translated) == "" {
		err = errors.New("empty translation")
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrTranslation, err)
		log.Error("translation failed", "error", err)
		s.notify(ctx, sessionID, "Translation Error", "Failed to translate message. Please try again.")
		return nil, err
	}

	msg.Original = source
	msg.Text = norm.NFC.String(translated)
	msg.TranslatedTo = lang.Code

	if err := s.messages.UpdateMessage(msg); err != nil {
		log.Error("failed to store translation", "error", err)
		return nil, fmt.Errorf("store translation: %w", err)
	}

	log.Info("message translated", "language", lang.Name)
	return msg, nil
}

// Revert restores the original text of a translated message. Reverting an
// untranslated message is a no-op.
func (s *Service) Revert(ctx context.Context, sessionID domain.SessionID, messageID domain.MessageID) (*domain.Message, error) {
	msg, err := s.messages.GetMessage(sessionID, messageID)
	if err != nil {
		return nil, err
	}
	if !msg.Translated() {
		return msg, nil
	}

	msg.Text = msg.Original
	msg.Original = ""
	msg.TranslatedTo = ""

	if err := s.messages.UpdateMessage(msg); err != nil {
		observability.LoggerFromContext(ctx).Error("failed to revert translation",
			"session_id", sessionID,
			"message_id", messageID,
			"error", err,
		)
		return nil, fmt.Errorf("revert translation: %w", err)
	}
	return msg, nil
}

func (s *Service) translatable(sessionID domain.SessionID, messageID domain.MessageID) (*domain.Message, error) {
	msg, err := s.messages.GetMessage(sessionID, messageID)
	if err != nil {
		return nil, err
	}
	if !msg.IsFromBot() {
		return nil, fmt.Errorf("%w: only bot messages can be translated", domain.ErrValidation)
	}
	if msg.Processing {
		return nil, fmt.Errorf("%w: message is still being generated", domain.ErrValidation)
	}
	return msg, nil
}

func (s *Service) notify(ctx context.Context, sessionID domain.SessionID, title, desc string) {
	if s.notifier == nil {
		return
	}
	n := s.notifier(sessionID)
	if n == nil {
		return
	}
	n.Notify(ctx, domain.Notification{
		Kind:        domain.NotificationDestructive,
		Title:       title,
		Description: desc,
		CreatedAt:   time.Now(),
	})
}
