package handler

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/formbridge/backend/internal/domain/session"
)

// sessionid validates an optional session id binding field as a UUIDv4
func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("sessionid", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return s == "" || session.IsUUIDv4(s)
		})
	}
}
