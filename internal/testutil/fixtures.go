package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alexanderramin/crq/internal/domain"
	"github.com/google/uuid"
)

var testNumberCounter atomic.Int64

// User options
type UserOption func(*domain.User)

func WithSupervisor(id string) UserOption {
	return func(u *domain.User) {
		u.SupervisorID = &id
	}
}

func AsCABMember() UserOption {
	return func(u *domain.User) {
		u.IsCABMember = true
	}
}

func AsSupport() UserOption {
	return func(u *domain.User) {
		u.IsSupportPersonnel = true
	}
}

func WithRoles(roles ...domain.Role) UserOption {
	return func(u *domain.User) {
		u.ExtraRoles = roles
	}
}

func WithName(first, last string) UserOption {
	return func(u *domain.User) {
		u.FirstName = first
		u.LastName = last
	}
}

func NewTestUser(username string, opts ...UserOption) *domain.User {
	now := time.Now().UTC()
	u := &domain.User{
		ID:        uuid.New().String(),
		Username:  username,
		Email:     username + "@example.com",
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Change request options
type ChangeRequestOption func(*domain.ChangeRequest)

func WithStatus(s domain.Status) ChangeRequestOption {
	return func(cr *domain.ChangeRequest) {
		cr.Status = s
	}
}

func WithPriority(p domain.Priority) ChangeRequestOption {
	return func(cr *domain.ChangeRequest) {
		cr.Priority = p
	}
}

func WithSchedule(start, end time.Time) ChangeRequestOption {
	return func(cr *domain.ChangeRequest) {
		cr.ScheduledStart = &start
		cr.ScheduledEnd = &end
	}
}

func WithNumber(number string) ChangeRequestOption {
	return func(cr *domain.ChangeRequest) {
		cr.Number = number
	}
}

func WithCABTally(pending, approved int) ChangeRequestOption {
	return func(cr *domain.ChangeRequest) {
		cr.CAB = domain.CABTally{Pending: pending, Approved: approved}
	}
}

// NewTestChangeRequest builds a draft owned by creatorID with a unique
// number in year 1999, well clear of anything the allocator hands out in tests.
func NewTestChangeRequest(creatorID, title string, opts ...ChangeRequestOption) *domain.ChangeRequest {
	now := time.Now().UTC().Truncate(time.Second)
	n := testNumberCounter.Add(1)
	cr := domain.NewChangeRequest(
		uuid.New().String(),
		fmt.Sprintf("CR-1999-%05d", n),
		creatorID,
		domain.Details{Title: title, Description: title + " description"},
		now,
	)
	cr.Version = 1
	for _, opt := range opts {
		opt(cr)
	}
	return cr
}
