package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alexanderramin/crq/internal/db"
	"github.com/alexanderramin/crq/internal/domain"
	"github.com/alexanderramin/crq/internal/repository"
	"github.com/google/uuid"
)

type userService struct {
	uow        db.UnitOfWork
	users      repository.UserRepo
	chainLimit int
	observer   UseCaseObserver
}

// NewUserService builds the user administration service. chainLimit bounds
// the supervisor chain walk; zero selects domain.DefaultSupervisorChainLimit.
func NewUserService(uow db.UnitOfWork, users repository.UserRepo, chainLimit int, observers ...UseCaseObserver) UserService {
	if chainLimit <= 0 {
		chainLimit = domain.DefaultSupervisorChainLimit
	}
	return &userService{
		uow:        uow,
		users:      users,
		chainLimit: chainLimit,
		observer:   useCaseObserverOrNoop(observers),
	}
}

func (s *userService) Register(ctx context.Context, in RegisterInput) (out *domain.User, err error) {
	startedAt := time.Now()
	fields := map[string]any{"username": in.Username}
	defer func() { observe(ctx, s.observer, "user-register", startedAt, fields, &err) }()

	in.Normalize()
	if err = validateInput(in); err != nil {
		return nil, err
	}

	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		users := repository.NewSQLiteUserRepo(tx)
		if _, err := users.GetByUsername(ctx, in.Username); err == nil {
			return domain.Invalid("username %q is already taken", in.Username)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		now := time.Now().UTC()
		u := &domain.User{
			ID:         uuid.New().String(),
			Username:   in.Username,
			Email:      in.Email,
			FirstName:  in.FirstName,
			LastName:   in.LastName,
			Department: in.Department,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := users.Create(ctx, u); err != nil {
			return err
		}
		fields["user_id"] = u.ID
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *userService) Get(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *userService) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.users.GetByUsername(ctx, username)
}

func (s *userService) Resolve(ctx context.Context, ref string) (*domain.User, error) {
	return loadUser(ctx, s.users, ref)
}

func (s *userService) List(ctx context.Context) ([]*domain.User, error) {
	return s.users.List(ctx)
}

func (s *userService) ListByRole(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	all, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*domain.User
	for _, u := range all {
		if u.HasRole(role) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *userService) Subordinates(ctx context.Context, userID string) ([]*domain.User, error) {
	u, err := loadUser(ctx, s.users, userID)
	if err != nil {
		return nil, err
	}
	return s.users.ListSubordinates(ctx, u.ID)
}

func (s *userService) SetSupervisor(ctx context.Context, userID string, supervisorID *string) (*domain.User, error) {
	return s.mutate(ctx, "user-set-supervisor", userID, func(ctx context.Context, users repository.UserRepo, u *domain.User) error {
		if supervisorID == nil {
			u.SupervisorID = nil
			return nil
		}
		sup, err := loadUser(ctx, users, *supervisorID)
		if err != nil {
			return fmt.Errorf("supervisor: %w", err)
		}
		if err := domain.CheckSupervisorChain(ctx, u.ID, sup.ID, s.chainLimit, users.SupervisorOf); err != nil {
			return err
		}
		u.SupervisorID = &sup.ID
		return nil
	})
}

func (s *userService) SetCABMember(ctx context.Context, userID string, member bool) (*domain.User, error) {
	return s.mutate(ctx, "user-set-cab", userID, func(_ context.Context, _ repository.UserRepo, u *domain.User) error {
		u.IsCABMember = member
		return nil
	})
}

func (s *userService) SetSupportPersonnel(ctx context.Context, userID string, support bool) (*domain.User, error) {
	return s.mutate(ctx, "user-set-support", userID, func(_ context.Context, _ repository.UserRepo, u *domain.User) error {
		u.IsSupportPersonnel = support
		return nil
	})
}

func (s *userService) SetRoles(ctx context.Context, userID string, roles []domain.Role) (*domain.User, error) {
	normalized, err := domain.NormalizeRoles(roles)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "user-set-roles", userID, func(_ context.Context, _ repository.UserRepo, u *domain.User) error {
		u.ExtraRoles = normalized
		return nil
	})
}

func (s *userService) mutate(ctx context.Context, name, ref string, fn func(ctx context.Context, users repository.UserRepo, u *domain.User) error) (out *domain.User, err error) {
	startedAt := time.Now()
	fields := map[string]any{"user": ref}
	defer func() { observe(ctx, s.observer, name, startedAt, fields, &err) }()

	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		users := repository.NewSQLiteUserRepo(tx)
		u, err := loadUser(ctx, users, ref)
		if err != nil {
			return err
		}
		fields["user_id"] = u.ID
		if err := fn(ctx, users, u); err != nil {
			return err
		}
		u.UpdatedAt = time.Now().UTC()
		if err := users.Update(ctx, u); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
