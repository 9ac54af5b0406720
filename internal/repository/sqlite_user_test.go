package repository

import (
	"context"
	"testing"

	"github.com/alexanderramin/crq/internal/domain"
	"github.com/alexanderramin/crq/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepo_CreateAndGet(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewSQLiteUserRepo(database)

	boss := testutil.NewTestUser("boss", testutil.WithRoles(domain.RoleManager, domain.RoleAdmin))
	require.NoError(t, repo.Create(ctx, boss))
	emp := testutil.NewTestUser("emp", testutil.WithSupervisor(boss.ID), testutil.AsSupport(), testutil.WithName("Eve", "Ops"))
	require.NoError(t, repo.Create(ctx, emp))

	got, err := repo.GetByID(ctx, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, "emp", got.Username)
	assert.Equal(t, "Eve Ops", got.FullName())
	require.NotNil(t, got.SupervisorID)
	assert.Equal(t, boss.ID, *got.SupervisorID)
	assert.True(t, got.IsSupportPersonnel)
	assert.False(t, got.IsCABMember)

	gotBoss, err := repo.GetByUsername(ctx, "BOSS")
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleManager, domain.RoleAdmin}, gotBoss.ExtraRoles)
	assert.Nil(t, gotBoss.SupervisorID)
}

func TestUserRepo_NotFound(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewSQLiteUserRepo(database)

	_, err := repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.GetByUsername(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.SupervisorOf(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	err = repo.Update(ctx, testutil.NewTestUser("ghost"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUserRepo_DuplicateUsername(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewSQLiteUserRepo(database)

	require.NoError(t, repo.Create(ctx, testutil.NewTestUser("dup")))
	assert.Error(t, repo.Create(ctx, testutil.NewTestUser("dup")))
}

func TestUserRepo_ListsAndSupervisor(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewSQLiteUserRepo(database)

	boss := testutil.NewTestUser("boss", testutil.AsCABMember())
	require.NoError(t, repo.Create(ctx, boss))
	a := testutil.NewTestUser("alice", testutil.WithSupervisor(boss.ID))
	b := testutil.NewTestUser("bob", testutil.WithSupervisor(boss.ID), testutil.AsCABMember())
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "alice", all[0].Username)

	cab, err := repo.ListCABMembers(ctx)
	require.NoError(t, err)
	require.Len(t, cab, 2)
	assert.Equal(t, "bob", cab[0].Username)
	assert.Equal(t, "boss", cab[1].Username)

	subs, err := repo.ListSubordinates(ctx, boss.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	sup, err := repo.SupervisorOf(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, sup)
	assert.Equal(t, boss.ID, *sup)

	sup, err = repo.SupervisorOf(ctx, boss.ID)
	require.NoError(t, err)
	assert.Nil(t, sup)
}

func TestUserRepo_Update(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewSQLiteUserRepo(database)

	boss := testutil.NewTestUser("boss")
	u := testutil.NewTestUser("u", testutil.WithSupervisor("")) // empty supervisor stored as NULL
	require.NoError(t, repo.Create(ctx, boss))
	require.NoError(t, repo.Create(ctx, u))

	u.SupervisorID = &boss.ID
	u.IsCABMember = true
	u.ExtraRoles = []domain.Role{domain.RoleSupervisor}
	require.NoError(t, repo.Update(ctx, u))

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.IsCABMember)
	assert.True(t, got.HasRole(domain.RoleSupervisor))
	assert.True(t, got.SupervisedBy(boss.ID))

	got.SupervisorID = nil
	require.NoError(t, repo.Update(ctx, got))
	sup, err := repo.SupervisorOf(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, sup)
}
