// Package credstore reads user credentials from a flat text file with one
// "username,password,role" entry per line. The password field holds either a
// plaintext password or a bcrypt hash (recognized by its "$2" prefix).
package credstore

import (
	"bufio"
	"log"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"parley/pkg/types"
)

// Store is a read-only view over the credential file. It keeps no state
// between calls, so edits to the file are picked up on the next lookup.
type Store struct {
	path string
}

// New creates a store backed by the given file path.
func New(path string) *Store {
	return &Store{path: path}
}

// Validate scans the credential file for the first entry matching both
// username and password and returns the corresponding user, or nil when no
// entry matches. Malformed lines are skipped; a matching line with an
// unparseable role fails the whole lookup. A missing or unreadable file is
// logged and treated as "no match".
func (s *Store) Validate(username, password string) *types.User {
	if username == "" {
		return nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		log.Printf("credstore: cannot open %s: %v", s.path, err)
		return nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name, pass, roleField, ok := splitEntry(scanner.Text())
		if !ok {
			continue
		}
		if name != username || !passwordMatches(pass, password) {
			continue
		}

		role, err := types.ParseRole(roleField)
		if err != nil {
			log.Printf("credstore: entry for %s has invalid role %q", name, roleField)
			return nil
		}
		return types.NewUser(name, role)
	}
	if err := scanner.Err(); err != nil {
		log.Printf("credstore: error reading %s: %v", s.path, err)
	}
	return nil
}

// ListAll returns every syntactically valid entry in the file. Entries with
// too few fields or an unknown role are skipped.
func (s *Store) ListAll() []*types.User {
	f, err := os.Open(s.path)
	if err != nil {
		log.Printf("credstore: cannot open %s: %v", s.path, err)
		return nil
	}
	defer f.Close()

	var users []*types.User
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name, _, roleField, ok := splitEntry(scanner.Text())
		if !ok {
			continue
		}
		role, err := types.ParseRole(roleField)
		if err != nil {
			continue
		}
		users = append(users, types.NewUser(name, role))
	}
	if err := scanner.Err(); err != nil {
		log.Printf("credstore: error reading %s: %v", s.path, err)
	}
	return users
}

// Find returns the entry for the given username, or nil when absent.
func (s *Store) Find(username string) *types.User {
	for _, u := range s.ListAll() {
		if u.Username == username {
			return u
		}
	}
	return nil
}

func splitEntry(line string) (name, pass, role string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", "", "", false
	}
	parts := strings.Split(line, ",")
	if len(parts) < 3 {
		return "", "", "", false
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2]), true
}

func passwordMatches(stored, supplied string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(supplied)) == nil
	}
	return stored == supplied
}
