package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/Leganyst/visit-scheduler/internal/apperr"
	"github.com/Leganyst/visit-scheduler/internal/logging"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict, apperr.KindVersionConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError отдаёт ошибку в конверте {"error":{"code","message"}}.
// Инфраструктурные ошибки наружу не раскрываются.
func writeError(c *gin.Context, err error) {
	status := statusOf(err)
	body := errorBody{Code: "INTERNAL", Message: "internal error"}
	if e, ok := apperr.As(err); ok {
		body = errorBody{Code: e.Code, Message: e.Message}
	}
	if status == http.StatusInternalServerError {
		logging.FromGin(c).Error("request failed", "error", err)
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

func badRequest(c *gin.Context, msg string) {
	writeError(c, apperr.Validation(apperr.CodeInvalidArgument, msg))
}

// bindJSON разбирает тело и проверяет теги validate.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, "invalid request payload")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		badRequest(c, formatValidation(err))
		return false
	}
	return true
}

func formatValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, strings.ToLower(fe.Field())+": failed "+fe.Tag())
	}
	return strings.Join(msgs, ", ")
}
