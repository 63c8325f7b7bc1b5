package user

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/ratiba/core"
)

// Roles
const (
	// Admin
	RoleAdmin          = "admin:"
	RoleAdminOwner     = "admin:owner"
	RoleAdminPrincipal = "admin:principal"

	// Teacher
	RoleTeacher = "teacher:"

	// Student
	RoleStudent = "student:"
)

// Role names, as shown to the web clients.
const (
	RoleNameAdmin   = "admin"
	RoleNameTeacher = "teacher"
	RoleNameStudent = "student"
)

var (
	AdminRoles   = []string{RoleAdmin, RoleAdminOwner, RoleAdminPrincipal}
	TeacherRoles = []string{RoleTeacher}
	StudentRoles = []string{RoleStudent}
	AllRoles     = getAllRoles()

	rolePriorities = map[string]int{
		// Admins: 30 - 21
		RoleAdminOwner:     30,
		RoleAdminPrincipal: 29,
		RoleAdmin:          21,

		// Teachers: 20 - 11
		RoleTeacher: 11,

		// Students: 10 - 1
		RoleStudent: 1,
	}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Admin Principal", Value: RoleAdminPrincipal},
		{Name: "Admin Owner", Value: RoleAdminOwner},
	}
)

func getAllRoles() []string {
	all := make([]string, 0, 5)
	all = append(all, AdminRoles...)
	all = append(all, TeacherRoles...)
	all = append(all, StudentRoles...)
	sort.Strings(all)
	return all
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

// RolesFromName returns the roles granted by a role name (admin, teacher or student).
func RolesFromName(name string) []string {
	switch name {
	case RoleNameAdmin:
		return []string{RoleAdmin}
	case RoleNameTeacher:
		return []string{RoleTeacher}
	case RoleNameStudent:
		return []string{RoleStudent}
	}
	return nil
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	IsActive       bool      `json:"is_active"`
	IsAbsent       bool      `json:"is_absent"`
	Roles          []string  `json:"roles"`
	PasswordHash   []byte    `json:"-"`
	TelegramChatID int64     `json:"-"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
	LastLogin      time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.RoleStartsWith(RoleAdmin)
}

func (u *User) IsTeacher() bool {
	return u.RoleStartsWith(RoleTeacher)
}

func (u *User) IsStudent() bool {
	return u.RoleStartsWith(RoleStudent)
}

// RoleName returns the user's highest role name: admin, teacher or student.
func (u *User) RoleName() string {
	switch {
	case u.IsAdmin():
		return RoleNameAdmin
	case u.IsTeacher():
		return RoleNameTeacher
	case u.IsStudent():
		return RoleNameStudent
	}
	return ""
}

// DisplayName returns the name to show to other users.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" form:"name" validate:"required"`
	Username        string   `json:"username" form:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string   `json:"email" form:"email" validate:"omitempty,email"`
	Password        string   `json:"password" form:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" form:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string   `json:"name"`
	Username        string   `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	TelegramChatID  *int64   `json:"telegram_chat_id"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc *Service) error {
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	if uname := core.CleanString(uu.Username, true /* lower */); uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}

	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Username, uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

// QueryFilter applies an AND operation on its non-empty fields.
// Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	IsActive    *bool     `query:"is_active"`
	IsAbsent    *bool     `query:"is_absent"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.IsAbsent == nil &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// Match reports whether usr satisfies the filter.
func (qf QueryFilter) Match(usr User) bool {
	if qf.Search != "" {
		search := strings.ToLower(qf.Search)
		if !(strings.Contains(strings.ToLower(usr.Name), search) ||
			strings.Contains(usr.Username, search) ||
			strings.Contains(usr.Email, search)) {
			return false
		}
	}
	if len(qf.Roles) > 0 {
		var found bool
		for _, role := range qf.Roles {
			if usr.RoleStartsWith(role) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if qf.IsActive != nil && usr.IsActive != *qf.IsActive {
		return false
	}
	if qf.IsAbsent != nil && usr.IsAbsent != *qf.IsAbsent {
		return false
	}
	if !qf.CreatedFrom.IsZero() && usr.CreatedAt.Before(qf.CreatedFrom) {
		return false
	}
	if !qf.CreatedTo.IsZero() && usr.CreatedAt.After(qf.CreatedTo) {
		return false
	}
	return true
}

// GetFilter identifies a single User. Empty fields are ignored.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail []string
}

func (gf GetFilter) Match(usr User) bool {
	if gf.ID != "" && usr.ID != gf.ID {
		return false
	}
	if gf.Username != "" && usr.Username != gf.Username {
		return false
	}
	if gf.Email != "" && usr.Email != gf.Email {
		return false
	}
	if len(gf.UsernameOrEmail) > 0 {
		for _, val := range gf.UsernameOrEmail {
			if val != "" && (usr.Username == val || usr.Email == val) {
				return true
			}
		}
		return false
	}
	return true
}

// SortUsers sorts users in place. Without orderings, newest users come first.
func SortUsers(users []User, orderings ...core.DBOrdering) {
	if len(orderings) == 0 {
		orderings = []core.DBOrdering{{Field: "created_at"}}
	}
	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range orderings {
			cmp := compareUsers(users[i], users[j], ord.Field)
			if cmp == 0 {
				continue
			}
			if ord.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
}

func compareUsers(a, b User, field string) int {
	cmpTime := func(t1, t2 time.Time) int {
		switch {
		case t1.Before(t2):
			return -1
		case t1.After(t2):
			return 1
		}
		return 0
	}
	cmpBool := func(b1, b2 bool) int {
		switch {
		case b1 == b2:
			return 0
		case b2:
			return -1
		}
		return 1
	}

	switch field {
	case "name":
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	case "username":
		return strings.Compare(a.Username, b.Username)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "is_active":
		return cmpBool(a.IsActive, b.IsActive)
	case "is_absent":
		return cmpBool(a.IsAbsent, b.IsAbsent)
	case "created_at":
		return cmpTime(a.CreatedAt, b.CreatedAt)
	case "updated_at":
		return cmpTime(a.UpdatedAt, b.UpdatedAt)
	case "last_login":
		return cmpTime(a.LastLogin, b.LastLogin)
	}
	return 0
}
