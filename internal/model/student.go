package model

// Student is a roster entry. CheckedIn is the current presence flag.
type Student struct {
	ID        string   `json:"id"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Grade     string   `json:"grade"`
	CheckedIn bool     `json:"checked_in"`
	ParentIDs []string `json:"parent_ids,omitempty"`
}

// FullName returns "First Last", trimmed.
func (s Student) FullName() string {
	return joinName(s.FirstName, s.LastName)
}

// Parent is the short form of a user attached to a student listing.
type Parent struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// StudentWithParents is a student listing row for the admin screen.
type StudentWithParents struct {
	Student
	Parents []Parent `json:"parents"`
}

// CreateStudentRequest is the payload for adding a student.
type CreateStudentRequest struct {
	FirstName string `json:"first_name" binding:"required,min=1,max=100"`
	LastName  string `json:"last_name" binding:"required,min=1,max=100"`
	Grade     string `json:"grade" binding:"max=20"`
}

// UpdateStudentRequest is the payload for editing a student.
type UpdateStudentRequest struct {
	FirstName string `json:"first_name" binding:"required,min=1,max=100"`
	LastName  string `json:"last_name" binding:"required,min=1,max=100"`
	Grade     string `json:"grade" binding:"max=20"`
}

// StudentListQuery holds the sort parameters of the student list.
type StudentListQuery struct {
	Sort string `form:"sort" binding:"omitempty,oneof=lastName firstName grade"`
	Dir  string `form:"dir" binding:"omitempty,oneof=asc desc"`
}
