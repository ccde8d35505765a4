package storage

import (
	"fmt"
	"sort"
	"strings"
)

const userKeyPrefix = "user:"

func userKey(username string) string {
	return userKeyPrefix + username
}

// UpsertUser stores a user record.
func (s *Storage) UpsertUser(user User) error {
	if user.Name == "" {
		return fmt.Errorf("user name must not be empty")
	}
	return s.ds.Set(userKey(user.Name), &user)
}

// GetUser returns a user record, or nil if unknown.
func (s *Storage) GetUser(username string) (*User, error) {
	user := &User{}
	exists, err := s.ds.Get(userKey(username), user)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return user, nil
}

// UserByAPIKey finds the user owning an api key. Returns nil when no user
// matches.
func (s *Storage) UserByAPIKey(apiKey string) (*User, error) {
	users, err := s.Users()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].APIKey == apiKey {
			return &users[i], nil
		}
	}
	return nil, nil
}

// Users lists all stored user records, ordered by name.
func (s *Storage) Users() ([]User, error) {
	var users []User
	for _, key := range s.ds.Keys() {
		name, ok := strings.CutPrefix(key, userKeyPrefix)
		if !ok {
			continue
		}
		user, err := s.GetUser(name)
		if err != nil {
			return nil, err
		}
		if user != nil {
			users = append(users, *user)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

// MarkCredentialInvalid flags a user's Discord credential as needing
// re-authentication. The flag is cleared by the next successful UpsertUser.
func (s *Storage) MarkCredentialInvalid(username string) error {
	user, err := s.GetUser(username)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("unknown user %s", username)
	}

	user.CredentialInvalid = true
	return s.ds.Set(userKey(username), user)
}
