package wom

import (
	"strings"

	"golang.org/x/text/cases"
)

// Player is the player part of a group membership
type Player struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

// Membership is one player's membership in a group
type Membership struct {
	PlayerID int64  `json:"playerId"`
	GroupID  int64  `json:"groupId"`
	Role     Role   `json:"role"`
	Player   Player `json:"player"`
}

// Group is the group details payload from GET /groups/{id}
type Group struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	MemberCount int          `json:"memberCount"`
	Memberships []Membership `json:"memberships"`
}

// Snapshot indexes a group's memberships for reconciliation
type Snapshot struct {
	roles map[int64]Role
	names map[int64]string
	ids   map[string]int64
}

// NewSnapshot builds the id→role, id→username and folded username→id lookups
func NewSnapshot(g *Group) *Snapshot {
	s := &Snapshot{
		roles: make(map[int64]Role, len(g.Memberships)),
		names: make(map[int64]string, len(g.Memberships)),
		ids:   make(map[string]int64, len(g.Memberships)),
	}
	for _, m := range g.Memberships {
		s.roles[m.Player.ID] = m.Role
		s.names[m.Player.ID] = m.Player.Username
		s.ids[FoldName(m.Player.Username)] = m.Player.ID
	}
	return s
}

// Len returns the number of members in the snapshot
func (s *Snapshot) Len() int {
	return len(s.roles)
}

// Role returns a player's current role
func (s *Snapshot) Role(playerID int64) (Role, bool) {
	r, ok := s.roles[playerID]
	return r, ok
}

// Username returns a player's current username
func (s *Snapshot) Username(playerID int64) (string, bool) {
	n, ok := s.names[playerID]
	return n, ok
}

// Lookup finds a player id by exact, case-insensitive username
func (s *Snapshot) Lookup(name string) (int64, bool) {
	id, ok := s.ids[FoldName(name)]
	return id, ok
}

// FoldName case-folds a name for comparison
func FoldName(name string) string {
	return cases.Fold().String(name)
}

// SameName reports whether two names are equal ignoring case
func SameName(a, b string) bool {
	return FoldName(a) == FoldName(b)
}

// SanitizeName normalizes a user-entered RSN: dashes and underscores become
// spaces and runs of whitespace collapse to one space.
func SanitizeName(rsn string) string {
	r := strings.NewReplacer("-", " ", "_", " ")
	return strings.Join(strings.Fields(r.Replace(rsn)), " ")
}
