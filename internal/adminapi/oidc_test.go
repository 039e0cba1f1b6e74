package adminapi

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBearerTokenExtractsFromAuthorizationHeader(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	require.Equal(t, "abc.def.ghi", bearerToken(req))
}

func TestBearerTokenEmptyWithoutHeader(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	require.Empty(t, bearerToken(req))
}

func TestBearerTokenEmptyForNonBearerScheme(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	require.Empty(t, bearerToken(req))
}

func TestOperatorContextRoundTrip(t *testing.T) {
	ctx := WithOperator(httptest.NewRequest("GET", "/", nil).Context(), "operator-1")
	subject, ok := Operator(ctx)
	require.True(t, ok)
	require.Equal(t, "operator-1", subject)
}

func TestOperatorContextMissingReturnsFalse(t *testing.T) {
	_, ok := Operator(httptest.NewRequest("GET", "/", nil).Context())
	require.False(t, ok)
}
