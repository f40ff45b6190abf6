package chat

import (
	"context"
	"golang.org/x/crypto/bcrypt"
	"sessionchat/internal/storage"
	"strings"
)

// NewGroup holds createGroup input
type NewGroup struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=280"`
	Private     bool   `json:"private"`
	// bcrypt ignores bytes past 72
	Password  string `json:"password" validate:"required_if=Private true,max=72"`
	CreatedBy int64  `json:"user" validate:"gt=0"`
}

// CreateGroup creates a group whose first member is its creator. Passwords of private groups are
// stored as bcrypt hashes; public groups ignore the password.
func (s *Service) CreateGroup(ctx context.Context, in NewGroup) (storage.Group, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := s.check(in); err != nil {
		return storage.Group{}, err
	}

	var hash string
	if in.Private {
		b, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.PasswordCost)
		if err != nil {
			return storage.Group{}, err
		}
		hash = string(b)
	}

	now := s.now()

	var g storage.Group
	err := s.store.InTx(ctx, func(tx *storage.Tx) error {
		if _, err := tx.UserByID(ctx, in.CreatedBy); err != nil {
			return err
		}

		var err error
		g, err = tx.CreateGroup(ctx, storage.Group{
			Name:         in.Name,
			Description:  in.Description,
			IsPrivate:    in.Private,
			PasswordHash: hash,
			CreatedBy:    in.CreatedBy,
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}

		if _, err := tx.AddMember(ctx, g.ID, in.CreatedBy, now); err != nil {
			return err
		}
		g.MemberCount = 1

		return nil
	})
	if err != nil {
		return storage.Group{}, notFound(err)
	}

	s.logger.Infof("User (id: %d) created group (id: %d)", in.CreatedBy, g.ID)

	return g, nil
}

// JoinGroup adds user to group. Joining a group twice is a no-op.
// Private groups require the password: an empty one is a validation error, a wrong one is ErrInvalidPassword.
func (s *Service) JoinGroup(ctx context.Context, groupID, userID int64, password string) error {
	if groupID < 1 {
		return invalid("group", "must be greater than 0")
	}
	if userID < 1 {
		return invalid("user", "must be greater than 0")
	}

	err := s.store.InTx(ctx, func(tx *storage.Tx) error {
		g, err := tx.GroupByID(ctx, groupID)
		if err != nil {
			return err
		}
		if _, err := tx.UserByID(ctx, userID); err != nil {
			return err
		}

		member, err := tx.IsMember(ctx, groupID, userID)
		if err != nil {
			return err
		}
		if member {
			return nil
		}

		if g.IsPrivate {
			if password == "" {
				return invalid("password", "is required to join a private group")
			}
			if bcrypt.CompareHashAndPassword([]byte(g.PasswordHash), []byte(password)) != nil {
				return ErrInvalidPassword
			}
		}

		_, err = tx.AddMember(ctx, groupID, userID, s.now())
		return err
	})

	return notFound(err)
}

// LeaveGroup removes user from group. Leaving a group the user is not member of is a no-op.
func (s *Service) LeaveGroup(ctx context.Context, groupID, userID int64) error {
	if groupID < 1 {
		return invalid("group", "must be greater than 0")
	}
	if userID < 1 {
		return invalid("user", "must be greater than 0")
	}

	err := s.store.InTx(ctx, func(tx *storage.Tx) error {
		if _, err := tx.GroupByID(ctx, groupID); err != nil {
			return err
		}
		_, err := tx.RemoveMember(ctx, groupID, userID)
		return err
	})

	return notFound(err)
}

// PublicGroups lists groups anybody can join without a password
func (s *Service) PublicGroups(ctx context.Context) ([]storage.Group, error) {
	return s.store.PublicGroups(ctx)
}

// UserGroups lists groups the user is member of
func (s *Service) UserGroups(ctx context.Context, userID int64) ([]storage.Group, error) {
	if _, err := s.store.UserByID(ctx, userID); err != nil {
		return nil, notFound(err)
	}
	return s.store.UserGroups(ctx, userID)
}
