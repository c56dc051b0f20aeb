package patient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/auth"
)

func newTestServer() *echo.Echo {
	e := echo.New()
	e.Use(auth.DevAuthMiddleware())
	NewHandler(NewService(NewRepoMem())).RegisterRoutes(e.Group("/api/v1"))
	return e
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRegisterEndpoint(t *testing.T) {
	srv := newTestServer()

	rec := doJSON(srv, http.MethodPost, "/api/v1/patients", `{"id":"p1","name":"Asha Verma"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(srv, http.MethodPost, "/api/v1/patients", `{"id":"p1","name":"Again"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate status = %d, want 400", rec.Code)
	}

	rec = doJSON(srv, http.MethodGet, "/api/v1/patients/p1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var p Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Name != "Asha Verma" {
		t.Errorf("name = %q", p.Name)
	}

	rec = doJSON(srv, http.MethodGet, "/api/v1/patients/ghost", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown patient status = %d, want 404", rec.Code)
	}
}
