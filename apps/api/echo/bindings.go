package echoapi

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/user"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

type (
	LoginRequest struct {
		Username string `json:"username" form:"username" validate:"required"`
		Password string `json:"password" form:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	// SignupRequest is a self-service registration; admins are created through the admin CLI or /v1/users.
	SignupRequest struct {
		Name            string `json:"name" form:"name"`
		Username        string `json:"username" form:"username"`
		Email           string `json:"email" form:"email"`
		Password        string `json:"password" form:"password"`
		PasswordConfirm string `json:"password_confirm" form:"password_confirm"`
		Role            string `json:"role" form:"role" validate:"oneof=student teacher"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}

	AbsenceRequest struct {
		TeacherUsername string `json:"teacher_username" form:"teacher_username" validate:"notblank"`
	}

	StudentMessageRequest struct {
		ReceiverID string `json:"receiver_id"`
		Message    string `json:"message"`
	}

	TeacherMessageRequest struct {
		StudentID string `json:"student_id"`
		Content   string `json:"content"`
	}

	MarkMessageReadRequest struct {
		MessageID string `json:"message_id"`
		StudentID string `json:"student_id"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (sr SignupRequest) newUser() user.NewUser {
	return user.NewUser{
		Name:            sr.Name,
		Username:        sr.Username,
		Email:           sr.Email,
		Password:        sr.Password,
		PasswordConfirm: sr.PasswordConfirm,
		Roles:           user.RolesFromName(sr.Role),
	}
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}

func (ar *AbsenceRequest) Validate(validate *validator.Validate) error {
	ar.TeacherUsername = core.CleanString(ar.TeacherUsername, true /* lower */)
	return validate.Struct(ar)
}
