package handler

import (
	"net/http"
	"testing"
)

func TestView_GetAndSet(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient(t)
	c.login()

	var v viewResponse
	c.do(http.MethodGet, "/api/view", nil, &v)
	if v.View != "home" {
		t.Errorf("initial view = %q, want home", v.View)
	}

	resp := c.do(http.MethodPut, "/api/view", viewRequest{View: "cart"}, &v)
	if resp.StatusCode != http.StatusOK || v.View != "cart" {
		t.Errorf("set = %d %q", resp.StatusCode, v.View)
	}

	var e errorBody
	resp = c.do(http.MethodPut, "/api/view", viewRequest{View: "admin"}, &e)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown view = %d, want 400", resp.StatusCode)
	}
	c.do(http.MethodGet, "/api/view", nil, &v)
	if v.View != "cart" {
		t.Errorf("view = %q, should stay cart", v.View)
	}
}

func TestNotices_LoginNoticeDrainedOnce(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient(t)
	c.login()

	var notices []struct {
		Level   string `json:"level"`
		Message string `json:"message"`
	}
	c.do(http.MethodGet, "/api/notices", nil, &notices)
	if len(notices) != 1 || notices[0].Level != "success" || notices[0].Message != "Login successful!" {
		t.Errorf("notices = %+v", notices)
	}
	c.do(http.MethodGet, "/api/notices", nil, &notices)
	if len(notices) != 0 {
		t.Errorf("second drain = %+v, want empty", notices)
	}
}
