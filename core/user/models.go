package user

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sikhya/portal/core"
)

// Role of a user. The zero value means the user has not been onboarded yet.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

type User struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Email     string         `json:"email,omitempty"`
	Phone     string         `json:"phone,omitempty"`
	School    string         `json:"school,omitempty"`
	StudentID string         `json:"student_id,omitempty"`
	Role      Role           `json:"role,omitempty"`
	Grade     core.Grade     `json:"grade,omitempty"`
	Subjects  []core.Subject `json:"subjects"`
	CreatedAt time.Time      `json:"created_at"` // UTC
	UpdatedAt time.Time      `json:"updated_at"` // UTC
}

func (u User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u User) IsStudent() bool { return u.Role == RoleStudent }

// Teaches reports whether subj is one of the user's declared subjects.
func (u User) Teaches(subj core.Subject) bool {
	return core.ContainsSubject(u.Subjects, subj)
}

// NewTeacher contains information needed to register a teacher.
type NewTeacher struct {
	Name     string         `json:"name" validate:"required,notblank"`
	Email    string         `json:"email" validate:"required,email"`
	Phone    string         `json:"phone"`
	School   string         `json:"school"`
	Grade    core.Grade     `json:"grade" validate:"required,grade"`
	Subjects []core.Subject `json:"subjects" validate:"omitempty,unique,dive,subject"`
}

func (nt *NewTeacher) Validate(validate *validator.Validate) error {
	nt.Name = core.CleanString(nt.Name)
	nt.Email = core.CleanString(nt.Email, true /* lower */)
	nt.Phone = core.CleanString(nt.Phone)
	nt.School = core.CleanString(nt.School)
	nt.Grade = core.Grade(core.CleanString(string(nt.Grade)))
	return validate.Struct(nt)
}

// NewStudent contains information needed to register a student.
type NewStudent struct {
	Name      string     `json:"name" validate:"required,notblank"`
	StudentID string     `json:"student_id" validate:"required,notblank"`
	Grade     core.Grade `json:"grade" validate:"required,grade"`
	School    string     `json:"school"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.StudentID = core.CleanString(ns.StudentID)
	ns.Grade = core.Grade(core.CleanString(string(ns.Grade)))
	ns.School = core.CleanString(ns.School)
	return validate.Struct(ns)
}

// NewAdmin identifies the account to create or promote to RoleAdmin.
type NewAdmin struct {
	Name  string `json:"name" validate:"required,notblank"`
	Email string `json:"email" validate:"required,email"`
}

func (na *NewAdmin) Validate(validate *validator.Validate) error {
	na.Name = core.CleanString(na.Name)
	na.Email = core.CleanString(na.Email, true /* lower */)
	return validate.Struct(na)
}

type StudentLogin struct {
	StudentID string `json:"student_id" validate:"required,notblank"`
}

func (sl *StudentLogin) Validate(validate *validator.Validate) error {
	sl.StudentID = core.CleanString(sl.StudentID)
	return validate.Struct(sl)
}

// StudentProfile is what a user provides when onboarding as a student.
type StudentProfile struct {
	Grade core.Grade `json:"grade" validate:"required,grade"`
}

func (sp *StudentProfile) Validate(validate *validator.Validate) error {
	sp.Grade = core.Grade(core.CleanString(string(sp.Grade)))
	return validate.Struct(sp)
}
