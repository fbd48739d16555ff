package goplus

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/memebot/internal/domain"
)

const token = "0xAbCdEf0000000000000000000000000000000001"

func serve(t *testing.T, body string, status int) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/token_security/1", r.URL.Path)
		assert.Equal(t, domain.NormalizeAddress(token), r.URL.Query().Get("contract_addresses"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 1, time.Second)
}

func TestTokenSecurity_ParsesReport(t *testing.T) {
	c := serve(t, `{
		"code": 1,
		"message": "OK",
		"result": {
			"0xabcdef0000000000000000000000000000000001": {
				"is_honeypot": "0",
				"buy_tax": "0.05",
				"sell_tax": "0.2",
				"owner_address": "",
				"can_take_back_ownership": "0",
				"is_mintable": "0",
				"is_proxy": "1",
				"holder_count": "1234",
				"holders": [
					{"address": "0x01", "percent": "0.10"},
					{"address": "0x02", "percent": "0.05"}
				],
				"lp_holders": [
					{"address": "0x03", "percent": "0.6", "is_locked": 1},
					{"address": "0x000000000000000000000000000000000000dEaD", "percent": "0.3", "is_locked": 0},
					{"address": "0x04", "percent": "0.1", "is_locked": 0}
				]
			}
		}
	}`, http.StatusOK)

	r, err := c.TokenSecurity(t.Context(), token)
	require.NoError(t, err)

	assert.False(t, r.Honeypot)
	assert.True(t, r.Proxy)
	assert.True(t, r.OwnershipRenounced)
	assert.Equal(t, 500, r.BuyTaxBps)
	assert.Equal(t, 2000, r.SellTaxBps)
	assert.Equal(t, 1234, r.HolderCount)
	assert.InDelta(t, 15.0, r.TopHolderPercent, 1e-9)
	assert.InDelta(t, 90.0, r.LockedLiquidityPercent, 1e-9)
}

func TestTokenSecurity_FailClosed(t *testing.T) {
	cases := map[string]struct {
		body   string
		status int
	}{
		"api error":      {`{"code": 2, "message": "bad chain"}`, http.StatusOK},
		"missing token":  {`{"code": 1, "result": {}}`, http.StatusOK},
		"incomplete":     {`{"code": 1, "result": {"0xabcdef0000000000000000000000000000000001": {}}}`, http.StatusOK},
		"malformed":      {`{"code": 1, "result": [}`, http.StatusOK},
		"server failure": {`oops`, http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := serve(t, tc.body, tc.status).TokenSecurity(t.Context(), token)
			assert.ErrorIs(t, err, domain.ErrRiskDataUnavailable)
		})
	}
}

// Absent safety fields must reject rather than default to a passing value.
func TestTokenSecurity_MissingFieldsFailClosed(t *testing.T) {
	records := map[string]string{
		"sparse":        `{"is_honeypot": "0", "buy_tax": "0", "sell_tax": "0", "holder_count": "5000", "lp_holders": [{"percent": "1", "is_locked": 1}]}`,
		"no holders":    `{"is_honeypot": "0", "owner_address": "", "is_mintable": "0", "lp_holders": []}`,
		"no lp holders": `{"is_honeypot": "0", "owner_address": "", "is_mintable": "0", "holders": []}`,
		"no owner":      `{"is_honeypot": "0", "is_mintable": "0", "holders": [], "lp_holders": []}`,
		"no mintable":   `{"is_honeypot": "0", "owner_address": "", "holders": [], "lp_holders": []}`,
	}
	for name, rec := range records {
		t.Run(name, func(t *testing.T) {
			body := `{"code": 1, "result": {"0xabcdef0000000000000000000000000000000001": ` + rec + `}}`
			_, err := serve(t, body, http.StatusOK).TokenSecurity(t.Context(), token)
			assert.ErrorIs(t, err, domain.ErrRiskDataUnavailable)
		})
	}

	// Present but empty is a valid, renounced report.
	body := `{"code": 1, "result": {"0xabcdef0000000000000000000000000000000001": {"is_honeypot": "0", "owner_address": "", "is_mintable": "0", "holders": [], "lp_holders": []}}}`
	r, err := serve(t, body, http.StatusOK).TokenSecurity(t.Context(), token)
	require.NoError(t, err)
	assert.True(t, r.OwnershipRenounced)
	assert.Zero(t, r.LockedLiquidityPercent)
}

func ptr[T any](v T) *T { return &v }

func TestToDomainReport_OwnerRetained(t *testing.T) {
	sec := TokenSecurity{IsHoneypot: "0", OwnerAddress: ptr("0x1234567890123456789012345678901234567890"), IsMintable: ptr("0")}
	assert.False(t, sec.ToDomainReport(token).OwnershipRenounced)

	sec = TokenSecurity{IsHoneypot: "0", OwnerAddress: ptr(""), IsMintable: ptr("1")}
	assert.False(t, sec.ToDomainReport(token).OwnershipRenounced)

	sec = TokenSecurity{IsHoneypot: "0", OwnerAddress: ptr(""), IsMintable: ptr("0")}
	assert.True(t, sec.ToDomainReport(token).OwnershipRenounced)

	// Absent keys never read as renounced.
	sec = TokenSecurity{IsHoneypot: "0"}
	assert.False(t, sec.Complete())
	assert.False(t, sec.ToDomainReport(token).OwnershipRenounced)
}

func TestTaxBps_UnknownIsMaximal(t *testing.T) {
	assert.Equal(t, 10_000, taxBps(""))
	assert.Equal(t, 0, taxBps("0"))
	assert.Equal(t, 1000, taxBps("0.1"))
}
