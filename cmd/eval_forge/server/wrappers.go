package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/eval-forge/eval-forge/internal/executioncontext"
	"github.com/eval-forge/eval-forge/internal/http_wrappers"
	"github.com/eval-forge/eval-forge/internal/logging"
	"github.com/eval-forge/eval-forge/internal/messages"
	"github.com/eval-forge/eval-forge/pkg/api"
)

// ReqWrapper adapts a net/http request to the RequestWrapper interface the
// handlers are written against.
type ReqWrapper struct {
	Request *http.Request
}

func NewRequestWrapper(r *http.Request) http_wrappers.RequestWrapper {
	return &ReqWrapper{Request: r}
}

func (r *ReqWrapper) Method() string {
	return r.Request.Method
}

// URI returns the request path including the raw query, which is what the
// pagination links echo back to the caller.
func (r *ReqWrapper) URI() string {
	return r.Request.URL.RequestURI()
}

func (r *ReqWrapper) Header(key string) string {
	return r.Request.Header.Get(key)
}

func (r *ReqWrapper) Path() string {
	return r.Request.URL.Path
}

func (r *ReqWrapper) Query(key string) []string {
	values, found := r.Request.URL.Query()[key]
	if !found {
		return []string{}
	}
	return values
}

func (r *ReqWrapper) BodyAsBytes() ([]byte, error) {
	if r.Request.Body == nil {
		return []byte{}, nil
	}
	defer func() {
		_ = r.Request.Body.Close()
	}()
	return io.ReadAll(r.Request.Body)
}

func (r *ReqWrapper) PathValue(name string) string {
	return r.Request.PathValue(name)
}

// RespWrapper adapts a net/http ResponseWriter to the ResponseWrapper
// interface. It carries the execution context so responses are logged with
// the request metadata.
type RespWrapper struct {
	writer http.ResponseWriter
	ctx    *executioncontext.ExecutionContext
}

func NewRespWrapper(w http.ResponseWriter, ctx *executioncontext.ExecutionContext) http_wrappers.ResponseWrapper {
	return &RespWrapper{writer: w, ctx: ctx}
}

func (r *RespWrapper) ErrorWithMessageCode(requestId string, messageCode *messages.MessageCode, messageParams ...any) {
	errorResponse := api.Error{
		MessageCode: messageCode.GetCode(),
		Message:     messages.GetErrorMessage(messageCode, messageParams...),
		Trace:       requestId,
	}
	logging.LogRequestFailed(r.ctx, messageCode.GetStatus(), errorResponse.Message)
	r.WriteJSON(errorResponse, messageCode.GetStatus())
}

func (r *RespWrapper) SetHeader(key string, value string) {
	r.writer.Header().Set(key, value)
}

func (r *RespWrapper) SetStatusCode(code int) {
	r.writer.WriteHeader(code)
}

func (r *RespWrapper) Write(buf []byte) (n int, err error) {
	return r.writer.Write(buf)
}

func (r *RespWrapper) WriteJSON(v any, code int) {
	r.writer.Header().Set("Content-Type", "application/json")
	r.writer.WriteHeader(code)
	if v == nil {
		return
	}
	if err := json.NewEncoder(r.writer).Encode(v); err != nil {
		// The status code is already on the wire, all we can do is log.
		r.ctx.Logger.Error("Failed to encode the response body", "error", err)
		return
	}
	if code < http.StatusBadRequest {
		logging.LogRequestSuccess(r.ctx, code, v)
	}
}
