package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"classattend/internal/identity"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "attendance-engine"
)

func TestIssueAndParse(t *testing.T) {
	tok, exp, err := Issue("uid-1", "a@uni.edu", testIssuer, testKey, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Errorf("expiry %v is in the past", exp)
	}
	claims, err := Parse(tok, testKey, testIssuer)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "uid-1" || claims.Email != "a@uni.edu" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestParseRejects(t *testing.T) {
	good, _, _ := Issue("uid-1", "", testIssuer, testKey, time.Minute)
	expired, _, _ := Issue("uid-1", "", testIssuer, testKey, -time.Minute)
	otherIssuer, _, _ := Issue("uid-1", "", "someone-else", testKey, time.Minute)

	tests := []struct {
		name string
		tok  string
		key  string
	}{
		{"wrong key", good, "other-key"},
		{"expired", expired, testKey},
		{"issuer mismatch", otherIssuer, testKey},
		{"garbage", "not.a.token", testKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.tok, tt.key, testIssuer); err == nil {
				t.Error("Parse() = nil error, want failure")
			}
		})
	}
	if _, _, err := Issue("", "", testIssuer, testKey, time.Minute); err == nil {
		t.Error("Issue with empty uid should fail")
	}
}

type lookupFunc func(ctx context.Context, uid string) (*identity.Identity, error)

func (f lookupFunc) Get(ctx context.Context, uid string) (*identity.Identity, error) { return f(ctx, uid) }

func newRouter(v Verifier, lookup IdentityLookup) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Authenticate(v), func(c *gin.Context) {
		p, _ := PrincipalFrom(c)
		c.String(http.StatusOK, p.UID)
	})
	r.GET("/teacher", Authenticate(v), RequireRole(lookup, identity.RoleTeacher), func(c *gin.Context) {
		id, _ := IdentityFrom(c)
		c.String(http.StatusOK, id.FacultyID)
	})
	return r
}

func TestMiddleware(t *testing.T) {
	people := map[string]*identity.Identity{
		"teach": {UID: "teach", Role: identity.RoleTeacher, FacultyID: "FAC0001"},
		"stud":  {UID: "stud", Role: identity.RoleStudent, StudentID: "123456"},
	}
	lookup := lookupFunc(func(_ context.Context, uid string) (*identity.Identity, error) {
		if id, ok := people[uid]; ok {
			return id, nil
		}
		return nil, identity.ErrNotFound
	})
	r := newRouter(NewJWTVerifier(testKey, testIssuer), lookup)

	token := func(uid string) string {
		tok, _, err := Issue(uid, "", testIssuer, testKey, time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		return "Bearer " + tok
	}

	tests := []struct {
		name     string
		path     string
		authz    string
		wantCode int
		wantBody string
	}{
		{"no header", "/me", "", http.StatusUnauthorized, ""},
		{"bad scheme", "/me", "Basic abc", http.StatusUnauthorized, ""},
		{"bad token", "/me", "Bearer nope", http.StatusUnauthorized, ""},
		{"valid", "/me", token("stud"), http.StatusOK, "stud"},
		{"teacher route as teacher", "/teacher", token("teach"), http.StatusOK, "FAC0001"},
		{"teacher route as student", "/teacher", token("stud"), http.StatusForbidden, ""},
		{"teacher route unenrolled", "/teacher", token("ghost"), http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.authz != "" {
				req.Header.Set("Authorization", tt.authz)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}
