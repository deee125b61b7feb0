package auth

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ekaya-inc/ekaya-streams/pkg/apperrors"
)

// ErrAccessDenied is returned when a user lacks a required permission letter.
var ErrAccessDenied = apperrors.ErrAccessDenied

// Permission letters.
const (
	PermRead    = 'r'
	PermWrite   = 'w'
	PermExecute = 'x'
	PermCreate  = 'c'
	PermDelete  = 'd'
	PermPublish = 'p'
)

// Group is a named set of roles.
type Group struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// User is the authenticated principal of a connection.
type User struct {
	ID     string  `json:"id"`
	Login  string  `json:"login"`
	Groups []Group `json:"groups"`
}

// Anonymous returns the user of connections without a token.
// roles may be empty, in which case every permission check fails.
func Anonymous(roles []string) *User {
	u := &User{Login: "anonymous"}
	if len(roles) > 0 {
		u.Groups = []Group{{Name: "anonymous", Roles: slices.Clone(roles)}}
	}
	return u
}

// Roles lists the distinct roles of every group in first-seen order.
func (u *User) Roles() []string {
	if u == nil {
		return nil
	}
	var roles []string
	for _, g := range u.Groups {
		for _, r := range g.Roles {
			if !slices.Contains(roles, r) {
				roles = append(roles, r)
			}
		}
	}
	return roles
}

// Permissions returns the sorted union of letters granted to the user's
// roles by permMap (role -> letters).
func Permissions(u *User, permMap map[string]string) string {
	var letters []rune
	for _, role := range u.Roles() {
		for _, l := range permMap[role] {
			if !slices.Contains(letters, l) {
				letters = append(letters, l)
			}
		}
	}
	slices.Sort(letters)
	return string(letters)
}

// CheckPerms succeeds iff every letter of required is granted.
func CheckPerms(u *User, permMap map[string]string, required string) error {
	granted := Permissions(u, permMap)
	for _, l := range required {
		if !strings.ContainsRune(granted, l) {
			return fmt.Errorf("%w: %q required, %q granted", ErrAccessDenied, required, granted)
		}
	}
	return nil
}

// IntersectPerms keeps only the letters of allow in every role's entry.
// Roles left without letters are dropped.
func IntersectPerms(permMap map[string]string, allow string) map[string]string {
	out := make(map[string]string, len(permMap))
	for role, letters := range permMap {
		kept := strings.Map(func(r rune) rune {
			if strings.ContainsRune(allow, r) {
				return r
			}
			return -1
		}, letters)
		if kept != "" {
			out[role] = kept
		}
	}
	return out
}
