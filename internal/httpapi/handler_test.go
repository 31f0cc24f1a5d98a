package httpapi

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcoach/internal/domain"
)

type fakeDispatcher struct {
	resp *domain.Response
	err  error
	got  domain.Request
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, req domain.Request) (*domain.Response, error) {
	f.got = req
	return f.resp, f.err
}

type fakeAuthenticator struct{ err error }

func (f fakeAuthenticator) Verify(ctx context.Context, userID, sign string) error { return f.err }

type fakeQuota struct{ err error }

func (f fakeQuota) Admit(ctx context.Context, userID string) error { return f.err }

func TestHandler_SuccessfulDispatch(t *testing.T) {
	fd := &fakeDispatcher{resp: &domain.Response{Success: true, Message: "ok"}}
	h := &Handler{Dispatcher: fd, Authenticator: fakeAuthenticator{}, Quota: fakeQuota{}}

	req := httptest.NewRequest("POST", "/v1/coach", bytes.NewBufferString(`{"user_id":"u1","content":["hi"]}`))
	w := httptest.NewRecorder()
	h.Mux().ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "u1", fd.got.UserID)

	var resp domain.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestHandler_AuthFailureReturns401(t *testing.T) {
	fd := &fakeDispatcher{resp: &domain.Response{Success: true}}
	h := &Handler{Dispatcher: fd, Authenticator: fakeAuthenticator{err: assertErr("bad sign")}}

	req := httptest.NewRequest("POST", "/v1/coach", bytes.NewBufferString(`{"user_id":"u1"}`))
	w := httptest.NewRecorder()
	h.Mux().ServeHTTP(w, req)

	assert.Equal(t, 401, w.Code)
}

func TestHandler_QuotaExceededReturns429(t *testing.T) {
	fd := &fakeDispatcher{resp: &domain.Response{Success: true}}
	h := &Handler{Dispatcher: fd, Quota: fakeQuota{err: assertErr("over quota")}}

	req := httptest.NewRequest("POST", "/v1/coach", bytes.NewBufferString(`{"user_id":"u1"}`))
	w := httptest.NewRecorder()
	h.Mux().ServeHTTP(w, req)

	assert.Equal(t, 429, w.Code)
}

func TestHandler_MalformedBodyReturns400(t *testing.T) {
	fd := &fakeDispatcher{}
	h := &Handler{Dispatcher: fd}

	req := httptest.NewRequest("POST", "/v1/coach", bytes.NewBufferString(`not json`))
	w := httptest.NewRecorder()
	h.Mux().ServeHTTP(w, req)

	assert.Equal(t, 400, w.Code)
}

func TestHandler_ClassifiedErrorMapsToItsHTTPStatus(t *testing.T) {
	fd := &fakeDispatcher{err: domain.Wrap(domain.KindQuotaExceeded, "dispatch.Dispatch", "quota exceeded mid-flight", nil)}
	h := &Handler{Dispatcher: fd}

	req := httptest.NewRequest("POST", "/v1/coach", bytes.NewBufferString(`{"user_id":"u1"}`))
	w := httptest.NewRecorder()
	h.Mux().ServeHTTP(w, req)

	assert.Equal(t, 429, w.Code)
}

func TestHandler_UnclassifiedErrorReturns500(t *testing.T) {
	fd := &fakeDispatcher{err: assertErr("boom")}
	h := &Handler{Dispatcher: fd}

	req := httptest.NewRequest("POST", "/v1/coach", bytes.NewBufferString(`{"user_id":"u1"}`))
	w := httptest.NewRecorder()
	h.Mux().ServeHTTP(w, req)

	assert.Equal(t, 500, w.Code)
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := &Handler{Dispatcher: &fakeDispatcher{}}
	req := httptest.NewRequest("GET", "/v1/coach", nil)
	w := httptest.NewRecorder()
	h.Mux().ServeHTTP(w, req)
	assert.Equal(t, 405, w.Code)
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(msg string) error { return simpleErr(msg) }
