package account

import (
	"context"
	"fmt"

	"Genie/lib/sl"
	"Genie/storage"
)

// TermsAccepted is the gate checked before any functional command. A missing
// record counts as pending.
func TermsAccepted(rec *storage.UserRecord) bool {
	return rec != nil && rec.AcceptedTerms
}

// AcceptTerms moves the user from pending to accepted. Accepting again is a
// no-op, there is no way back.
func (s *Service) AcceptTerms(ctx context.Context, userId int64) error {
	if err := s.ledger.Update(ctx, userId, storage.Mutation{AcceptTerms: true}, s.clock()); err != nil {
		return fmt.Errorf("accepting terms: %w", err)
	}
	s.log.With(sl.User(userId)).Info("terms accepted")
	return nil
}
