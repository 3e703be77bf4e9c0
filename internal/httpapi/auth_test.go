package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"specsbiz/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func legacyOwnerStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"rahim": {
				Username:  "rahim",
				Password:  "rahim123",
				Role:      domain.RoleOwner,
				OwnerID:   "shop-rahim",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := legacyOwnerStore()

	manager := NewAuthManager("test-secret", time.Hour, "493817", store, nil)
	resp, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "Rahim",
		Password: "rahim123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.OwnerID != "shop-rahim" {
		t.Fatalf("expected owner namespace shop-rahim, got %q", resp.OwnerID)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestParseTokenCarriesOwnerNamespace(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "493817", legacyOwnerStore(), nil)
	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "rahim", Password: "rahim123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "rahim" || actor.Role != domain.RoleOwner || actor.OwnerID != "shop-rahim" {
		t.Fatalf("unexpected actor %+v", actor)
	}

	other := NewAuthManager("another-secret", time.Hour, "493817", nil, nil)
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestParseTokenRejectsMissingNamespace(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "493817", nil, nil)
	token, err := manager.sign("ghost", domain.RoleOwner, "", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected token without owner namespace to be rejected")
	}
}

func TestCreateStaffStoresPasswordHash(t *testing.T) {
	store := legacyOwnerStore()

	manager := NewAuthManager("test-secret", time.Hour, "493817", store, nil)
	staffUser, err := manager.CreateStaff(context.Background(), "shop-rahim", domain.StaffCreateRequest{
		Username: "Sumon",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("create staff failed: %v", err)
	}
	if staffUser.Username != "sumon" || staffUser.Role != domain.RoleStaff {
		t.Fatalf("unexpected staff user %+v", staffUser)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	var found *domain.UserAccount
	for i := range users {
		if users[i].Username == "sumon" {
			found = &users[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("expected staff account to be saved")
	}
	if !strings.HasPrefix(found.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", found.Password)
	}
	if found.OwnerID != "shop-rahim" {
		t.Fatalf("expected staff in owner namespace, got %q", found.OwnerID)
	}

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "sumon", Password: "pass1234"})
	if err != nil {
		t.Fatalf("login with hashed staff failed: %v", err)
	}
	if resp.Role != domain.RoleStaff || resp.OwnerID != "shop-rahim" {
		t.Fatalf("unexpected login response %+v", resp)
	}

	if got := manager.ListStaff(context.Background(), "shop-rahim"); len(got) != 1 {
		t.Fatalf("expected 1 staff account, got %d", len(got))
	}
	if got := manager.ListStaff(context.Background(), "someone-else"); len(got) != 0 {
		t.Fatalf("expected staff listing scoped to owner, got %d", len(got))
	}
}

func TestCreateAccountRejectsBadInput(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "493817", legacyOwnerStore(), nil)
	cases := []struct {
		name    string
		ownerID string
		role    string
		req     domain.StaffCreateRequest
	}{
		{"short username", "shop-rahim", domain.RoleStaff, domain.StaffCreateRequest{Username: "ab", Password: "pass1234"}},
		{"space in username", "shop-rahim", domain.RoleStaff, domain.StaffCreateRequest{Username: "new staff", Password: "pass1234"}},
		{"short password", "shop-rahim", domain.RoleStaff, domain.StaffCreateRequest{Username: "newstaff", Password: "123"}},
		{"duplicate", "shop-rahim", domain.RoleStaff, domain.StaffCreateRequest{Username: "rahim", Password: "pass1234"}},
		{"unknown role", "shop-rahim", "admin", domain.StaffCreateRequest{Username: "newstaff", Password: "pass1234"}},
		{"missing namespace", "", domain.RoleStaff, domain.StaffCreateRequest{Username: "newstaff", Password: "pass1234"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := manager.CreateAccount(context.Background(), tc.ownerID, tc.role, tc.req); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestManagerPINIsHashedAndStillValidates(t *testing.T) {
	store := &userStoreStub{users: map[string]domain.UserAccount{}}
	manager := NewAuthManager("test-secret", time.Hour, "654321", store, nil)

	if manager.managerPIN == "654321" {
		t.Fatalf("expected manager pin to be stored as hash, got plain-text")
	}

	if !manager.ValidateManagerPIN("654321") {
		t.Fatalf("expected manager pin validation to succeed")
	}

	if manager.ValidateManagerPIN("111111") {
		t.Fatalf("expected wrong manager pin to fail")
	}
}
