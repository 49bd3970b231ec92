package generichttp_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"

	"github.jpl.nasa.gov/bdube/cameraunit/generichttp"
)

func TestSubMuxSanitize(t *testing.T) {
	cases := map[string]string{
		"":        "/",
		"/":       "/",
		"camera":  "/camera",
		"/camera": "/camera",
		"camera/": "/camera",
	}
	for inp, expected := range cases {
		if out := generichttp.SubMuxSanitize(inp); out != expected {
			t.Errorf("SubMuxSanitize(%q): expected %q got %q", inp, expected, out)
		}
	}
}

func TestRouteTableBind(t *testing.T) {
	rt := generichttp.RouteTable{}
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/value"}] = generichttp.GetFloat(func() (float64, error) {
		return 1.5, nil
	})
	mux := chi.NewRouter()
	rt.Bind(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/value")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	f := generichttp.FloatT{}
	err = json.NewDecoder(resp.Body).Decode(&f)
	if err != nil {
		t.Fatal(err)
	}
	if f.F64 != 1.5 {
		t.Errorf("expected 1.5, got %f", f.F64)
	}

	resp2, err := http.Get(srv.URL + "/endpoints")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	var eps []string
	err = json.NewDecoder(resp2.Body).Decode(&eps)
	if err != nil {
		t.Fatal(err)
	}
	if len(eps) != 1 || eps[0] != "GET /value" {
		t.Errorf("expected endpoint listing, got %v", eps)
	}
}

func TestSetBoolRejectsBadJSON(t *testing.T) {
	h := generichttp.SetBool(func(bool) error { return nil })
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	w := httptest.NewRecorder()
	h(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty body, got %d", w.Code)
	}
}
