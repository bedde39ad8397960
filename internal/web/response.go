package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	pkgerrors "guu-schedule-bot/pkg/errors"
)

// Response: единый конверт ответа API.
type Response struct {
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
	Advice string `json:"advice,omitempty"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Data: data})
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Response{Error: msg})
}

// pipelineError отдаёт ошибку пайплайна с HTTP-статусом по её классу.
// data: частичный результат, если он есть.
func pipelineError(c *gin.Context, err error, data any) {
	advice := pkgerrors.AdviceFor(err)
	c.AbortWithStatusJSON(statusFor(err), Response{
		Data:   data,
		Error:  err.Error(),
		Advice: string(advice),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pkgerrors.ErrSizeExceeded):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, pkgerrors.ErrInvalidShareURL):
		return http.StatusBadRequest
	}
	switch pkgerrors.AdviceFor(err) {
	case pkgerrors.AdviceWait:
		return http.StatusConflict
	case pkgerrors.AdviceRetry:
		return http.StatusBadGateway
	case pkgerrors.AdviceFixAndResubmit:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
