package models

import "sort"

// Connection is one live transport session attached to a group.
type Connection struct {
	ConnectionID string `db:"connection_id" json:"connection_id"`
	Username     string `db:"username" json:"username"`
	GroupName    string `db:"group_name" json:"-"`
}

// Group binds the live connections of one conversation under its canonical name.
type Group struct {
	Name        string       `db:"name" json:"name"`
	Connections []Connection `json:"connections"`
}

// HasUser reports whether any connection in the group belongs to username.
func (g *Group) HasUser(username string) bool {
	if g == nil {
		return false
	}
	for _, c := range g.Connections {
		if c.Username == username {
			return true
		}
	}
	return false
}

// ConnectionIDs returns the ids of the group's connections in sorted order.
func (g *Group) ConnectionIDs() []string {
	if g == nil {
		return nil
	}
	ids := make([]string, 0, len(g.Connections))
	for _, c := range g.Connections {
		ids = append(ids, c.ConnectionID)
	}
	sort.Strings(ids)
	return ids
}
