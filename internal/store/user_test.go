package store

import (
	"errors"
	"testing"

	"github.com/dukerupert/hearth/internal/model"
)

func TestUserCreate(t *testing.T) {
	db := setupTestDB(t)
	h, _ := seedHousehold(t, db, "Acme", "alice")
	us := NewUserStore(db)

	u, err := us.Create(t.Context(), &model.User{HouseholdID: h.ID, Name: "Bob", Username: "  Bob ", PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.Username != "bob" {
		t.Errorf("username = %q, want %q", u.Username, "bob")
	}
	if u.Role != model.RoleMember {
		t.Errorf("role = %q, want %q", u.Role, model.RoleMember)
	}
	if u.Avatar != model.DefaultAvatar {
		t.Errorf("avatar = %q, want %q", u.Avatar, model.DefaultAvatar)
	}
}

func TestUserCreateDuplicateUsernameAcrossHouseholds(t *testing.T) {
	db := setupTestDB(t)
	_, _ = seedHousehold(t, db, "Acme", "john")
	h2, _ := seedHousehold(t, db, "Globex", "bob")
	us := NewUserStore(db)

	_, err := us.Create(t.Context(), &model.User{HouseholdID: h2.ID, Name: "John", Username: "JOHN", PasswordHash: "hash"})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("err = %v, want ErrUsernameTaken", err)
	}
}

func TestUserGetByUsername(t *testing.T) {
	db := setupTestDB(t)
	_, alice := seedHousehold(t, db, "Acme", "alice")
	us := NewUserStore(db)

	u, err := us.GetByUsername(t.Context(), "ALICE")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if u == nil || u.ID != alice.ID {
		t.Fatalf("got %+v, want alice", u)
	}
	if u.PasswordHash != "hash" {
		t.Errorf("password hash = %q, want %q", u.PasswordHash, "hash")
	}

	missing, err := us.GetByUsername(t.Context(), "nobody")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown username")
	}
}

func TestUserListAndInHousehold(t *testing.T) {
	db := setupTestDB(t)
	h1, alice := seedHousehold(t, db, "Acme", "alice")
	_, bob := seedHousehold(t, db, "Globex", "bob")
	us := NewUserStore(db)

	carol, err := us.Create(t.Context(), &model.User{HouseholdID: h1.ID, Name: "Carol", Username: "carol", PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	users, err := us.ListByHousehold(t.Context(), h1.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 2 || users[0].ID != alice.ID || users[1].ID != carol.ID {
		t.Errorf("users = %+v, want alice then carol", users)
	}

	if ok, _ := us.InHousehold(t.Context(), h1.ID, carol.ID); !ok {
		t.Error("expected carol in household")
	}
	if ok, _ := us.InHousehold(t.Context(), h1.ID, bob.ID); ok {
		t.Error("expected bob not in household")
	}
	if ok, _ := us.InHousehold(t.Context(), h1.ID, model.FamilyOwner); ok {
		t.Error("family sentinel has no user row")
	}
}
