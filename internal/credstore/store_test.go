package credstore

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"parley/pkg/types"
)

func writeCredFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestStore_Validate(t *testing.T) {
	store := New(writeCredFile(t,
		"alice,password123,GENERAL\n"+
			"bob,hunter2,admin\n"+
			"malformed-line\n"+
			"carol,secret,WIZARD\n"))

	cases := []struct {
		name     string
		username string
		password string
		wantUser string
		wantRole types.Role
	}{
		{"valid general", "alice", "password123", "alice", types.RoleGeneral},
		{"valid admin lowercase role", "bob", "hunter2", "bob", types.RoleAdmin},
		{"wrong password", "alice", "nope", "", ""},
		{"unknown user", "dave", "password123", "", ""},
		{"empty username", "", "", "", ""},
		{"matching entry with bad role", "carol", "secret", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u := store.Validate(tc.username, tc.password)
			if tc.wantUser == "" {
				if u != nil {
					t.Fatalf("expected nil user, got %+v", u)
				}
				return
			}
			if u == nil {
				t.Fatal("expected a user, got nil")
			}
			if u.Role != tc.wantRole {
				t.Errorf("role = %s, want %s", u.Role, tc.wantRole)
			}
			if u.ID != u.Username {
				t.Errorf("user ID %q should be derived from username %q", u.ID, u.Username)
			}
		})
	}
}

func TestStore_ValidateBcryptEntry(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	store := New(writeCredFile(t, "erin,"+string(hash)+",GENERAL\n"))

	if u := store.Validate("erin", "s3cret"); u == nil {
		t.Error("bcrypt entry should match the original password")
	}
	if u := store.Validate("erin", "wrong"); u != nil {
		t.Error("bcrypt entry should reject a wrong password")
	}
}

func TestStore_ListAllSkipsInvalidLines(t *testing.T) {
	store := New(writeCredFile(t,
		"alice,password123,GENERAL\n"+
			"broken\n"+
			"carol,secret,WIZARD\n"+
			"bob,hunter2,ADMIN\n"))

	users := store.ListAll()
	if len(users) != 2 {
		t.Fatalf("expected 2 valid users, got %d", len(users))
	}
	if users[0].Username != "alice" || users[1].Username != "bob" {
		t.Errorf("unexpected users: %v, %v", users[0].Username, users[1].Username)
	}
}

func TestStore_MissingFileIsSoftFailure(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "does-not-exist.txt"))
	if u := store.Validate("alice", "password123"); u != nil {
		t.Error("missing file should yield no user, not a crash")
	}
	if users := store.ListAll(); users != nil {
		t.Error("missing file should yield an empty list")
	}
}
