package util

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ariebrainware/educe-api/workflow"
	"github.com/gin-gonic/gin"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error"`
	Msg     string      `json:"msg"`
	Data    interface{} `json:"data"`
}

type APIErrorParams struct {
	Msg string
	Err error
}

type APISuccessParams struct {
	Msg  string
	Data interface{}
}

// Contains function is to check item whether is exist or not in a list and will return bool
func Contains(d string, dl []string) bool {
	for _, v := range dl {
		if v == d {
			return true
		}
	}
	return false
}

func callError(c *gin.Context, status int, params APIErrorParams) {
	errMsg := ""
	if params.Err != nil {
		errMsg = params.Err.Error()
	}
	c.JSON(status, APIResponse{
		Success: false,
		Error:   errMsg,
		Msg:     params.Msg,
		Data:    map[string]interface{}{},
	})
}

func callSuccess(c *gin.Context, status int, params APISuccessParams) {
	c.JSON(status, APIResponse{
		Success: true,
		Msg:     params.Msg,
		Data:    params.Data,
	})
}

// CallErrorNotFound is for return API response not found
func CallErrorNotFound(c *gin.Context, params APIErrorParams) {
	callError(c, http.StatusNotFound, params)
}

// CallUserError is for return error from user side
func CallUserError(c *gin.Context, params APIErrorParams) {
	callError(c, http.StatusBadRequest, params)
}

// CallServerError is for return API response server error
func CallServerError(c *gin.Context, params APIErrorParams) {
	callError(c, http.StatusInternalServerError, params)
}

// CallUserNotAuthorized is for return API response with status code 401 when the caller is not authenticated
func CallUserNotAuthorized(c *gin.Context, params APIErrorParams) {
	callError(c, http.StatusUnauthorized, params)
}

// CallForbidden is for return API response with status code 403 when role or ownership does not allow the action
func CallForbidden(c *gin.Context, params APIErrorParams) {
	callError(c, http.StatusForbidden, params)
}

// CallConflict is for return API response with status code 409
func CallConflict(c *gin.Context, params APIErrorParams) {
	callError(c, http.StatusConflict, params)
}

// CallPreconditionFailed is for return API response with status code 412 when a workflow guard rejects the action
func CallPreconditionFailed(c *gin.Context, params APIErrorParams) {
	callError(c, http.StatusPreconditionFailed, params)
}

// CallTooManyRequests is for return API response with status code 429
func CallTooManyRequests(c *gin.Context, params APIErrorParams) {
	callError(c, http.StatusTooManyRequests, params)
}

// CallServiceUnavailable is for return API response with status code 503 when an optional backend is not configured
func CallServiceUnavailable(c *gin.Context, params APIErrorParams) {
	callError(c, http.StatusServiceUnavailable, params)
}

// CallSuccessOK is for return API response with status code 200, you need to specify msg, and data as function parameter
func CallSuccessOK(c *gin.Context, params APISuccessParams) {
	callSuccess(c, http.StatusOK, params)
}

// CallCreated is for return API response with status code 201
func CallCreated(c *gin.Context, params APISuccessParams) {
	callSuccess(c, http.StatusCreated, params)
}

// StatusOf maps a workflow error kind to its HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, workflow.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, workflow.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrPreconditionFailed):
		return http.StatusPreconditionFailed
	}
	return http.StatusInternalServerError
}

// CallWorkflowError responds with the status matching the error kind. The
// user facing reason goes to msg; unknown errors keep the generic fallback.
func CallWorkflowError(c *gin.Context, fallback string, err error) {
	status := StatusOf(err)
	msg := fallback
	if status != http.StatusInternalServerError {
		msg = workflow.Reason(err)
	}
	callError(c, status, APIErrorParams{Msg: msg, Err: err})
}

// NormalizeName trims a name and collapses internal whitespace into single spaces.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}
