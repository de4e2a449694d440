// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

// Permission is a bitmask; each set bit grants one capability.
type Permission int64

const (
	PermFollow           Permission = 0x01
	PermComment          Permission = 0x02
	PermWriteArticles    Permission = 0x04
	PermModerateComments Permission = 0x08
	PermAdminister       Permission = 0x80
)

// Seeded role names.
const (
	RoleUser          = "User"
	RoleModerator     = "Moderator"
	RoleAdministrator = "Administrator"
)

type Role struct {
	ID          int64      `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	IsDefault   bool       `db:"is_default" json:"is_default"`
	Permissions Permission `db:"permissions" json:"permissions"`
}

// Has reports whether all bits of perm are set on the role.
func (r Role) Has(perm Permission) bool {
	return r.Permissions&perm == perm
}
