package chat

import (
	"context"
	"sessionchat/internal/storage"
)

// SetTyping records the latest typing state of user in chat
func (s *Service) SetTyping(ctx context.Context, userID int64, chatKey string, typing bool) error {
	ref, err := parseKey(chatKey)
	if err != nil {
		return err
	}

	err = s.store.InTx(ctx, func(tx *storage.Tx) error {
		if err := s.participant(ctx, tx.Queries, userID, ref, false); err != nil {
			return err
		}
		return tx.UpsertTyping(ctx, userID, ref.Key(), typing, s.now())
	})

	return notFound(err)
}

// TypingIndicators returns users typing in chat within the typing window
func (s *Service) TypingIndicators(ctx context.Context, chatKey string) ([]storage.TypingIndicator, error) {
	ref, err := parseKey(chatKey)
	if err != nil {
		return nil, err
	}

	indicators, err := s.store.ActiveTyping(ctx, ref.Key(), s.now().Add(-s.cfg.TypingWindow))
	if err != nil {
		return nil, err
	}
	for i := range indicators {
		s.withPresence(indicators[i].User)
	}

	return indicators, nil
}

// SweepTypingIndicators deletes typing rows not updated within the typing TTL whatever their flag.
// The TTL is longer than the typing window so an indicator is hidden before its row disappears.
func (s *Service) SweepTypingIndicators(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteTypingBefore(ctx, s.now().Add(-s.cfg.TypingTTL))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Debugf("Swept %d typing indicators", n)
	}
	return n, nil
}
