package dhaliclient_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dhali/claimengine/internal/dhaliclient"
)

func TestRun_SendsPaymentClaimHeaderAndReturnsCharges(t *testing.T) {
	var gotClaim, gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaim = r.Header.Get("Payment-Claim")
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Header().Set("Dhali-Latest-Request-Charge", "120")
		w.Header().Set("Dhali-Total-Requests-Charge", "4200")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := dhaliclient.New(srv.URL)
	result, err := c.Run("asset-123", `{"account":"rA"}`, strings.NewReader("payload"))
	require.NoError(t, err)
	defer result.Body.Close()

	require.Equal(t, http.MethodPut, gotMethod)
	require.Equal(t, "/asset-123/run/", gotPath)
	require.Equal(t, `{"account":"rA"}`, gotClaim)
	require.Equal(t, "120", result.LatestRequestCharge)
	require.Equal(t, "4200", result.TotalRequestsCharge)
	require.Equal(t, http.StatusOK, result.StatusCode)

	body, err := io.ReadAll(result.Body)
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))
}

func TestRun_RejectedClaimReturns402WithoutTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer srv.Close()

	c := dhaliclient.New(srv.URL)
	result, err := c.Run("asset-123", `{}`, strings.NewReader(""))
	require.NoError(t, err)
	defer result.Body.Close()
	require.Equal(t, http.StatusPaymentRequired, result.StatusCode)
}
