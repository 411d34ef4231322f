package model

import "strings"

// Role is a user's access level.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleParent  Role = "parent"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleParent:
		return true
	}
	return false
}

// User is a staff member or parent who signs in with a 4-digit PIN.
type User struct {
	ID        string   `json:"id"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Role      Role     `json:"role"`
	PIN       string   `json:"pin,omitempty"`
	ChildIDs  []string `json:"child_ids,omitempty"`
}

// FullName returns "First Last", trimmed.
func (u User) FullName() string {
	return joinName(u.FirstName, u.LastName)
}

// Relation links a student to one of its parents.
type Relation struct {
	StudentID string `json:"student_id"`
	ParentID  string `json:"parent_id"`
}

// SaveUserRequest is the payload for creating or editing a user.
// ChildIDs only applies to parents.
type SaveUserRequest struct {
	FirstName string   `json:"first_name" binding:"required,min=1,max=100"`
	LastName  string   `json:"last_name" binding:"required,min=1,max=100"`
	Role      Role     `json:"role" binding:"required,oneof=admin teacher parent"`
	PIN       string   `json:"pin" binding:"required,pin4"`
	ChildIDs  []string `json:"child_ids" binding:"omitempty,dive,required"`
}

// UserListQuery holds the sort parameters of the user list.
type UserListQuery struct {
	Sort string `form:"sort" binding:"omitempty,oneof=lastName firstName role children children-no"`
	Dir  string `form:"dir" binding:"omitempty,oneof=asc desc"`
}

// PinAvailableQuery checks whether a PIN is free, ignoring ExcludeID.
type PinAvailableQuery struct {
	PIN       string `form:"pin" binding:"required,pin4"`
	ExcludeID string `form:"exclude_id"`
}

func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}
