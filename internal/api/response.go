package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is keyperd's standard envelope for every JSON response.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// SuccessResponse sends a 200 success response.
func SuccessResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, &Response{Success: true, Message: message, Data: data})
}

// CreatedResponse sends a 201 created response.
func CreatedResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, &Response{Success: true, Message: message, Data: data})
}

// ErrorResponse sends an error response with the given status code.
func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, &Response{Success: false, Message: message})
}

// BadRequestError sends a 400 error.
func BadRequestError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusBadRequest, message)
}

// UnauthorizedError sends a 401 error.
func UnauthorizedError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusUnauthorized, message)
}

// NotFoundError sends a 404 error.
func NotFoundError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusNotFound, message)
}

// PayloadTooLargeError sends a 413 error.
func PayloadTooLargeError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusRequestEntityTooLarge, message)
}

// TooManyRequestsError sends a 429 error.
func TooManyRequestsError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusTooManyRequests, message)
}

// InternalError sends a 500 error.
func InternalError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusInternalServerError, message)
}
