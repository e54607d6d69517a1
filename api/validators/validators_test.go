package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/devfurlan/cuidly-sub007/pkg/errors"
)

type planPayload struct {
	Plan            string `json:"plan" validate:"required,subscription_plan"`
	BillingInterval string `json:"billingInterval,omitempty" validate:"omitempty,billing_interval"`
}

func jsonRequest(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func TestDecodeJSONBody(t *testing.T) {
	var ok planPayload
	require.NoError(t, DecodeJSONBody(jsonRequest(`{"plan":"FAMILY_PLUS","billingInterval":"YEAR"}`), &ok))
	assert.Equal(t, "FAMILY_PLUS", ok.Plan)

	tests := []struct {
		name string
		body string
		want any
	}{
		{"unknown field", `{"plan":"FAMILY_PLUS","extra":1}`, nil},
		{"trailing object", `{"plan":"FAMILY_PLUS"}{"plan":"NANNY_PRO"}`, nil},
		{"unknown plan", `{"plan":"GOLD"}`, map[string]string{"plan": "must be a known plan"}},
		{"bad interval", `{"plan":"NANNY_PRO","billingInterval":"WEEK"}`, map[string]string{"billingInterval": "must be MONTH, QUARTER or YEAR"}},
		{"missing plan", `{}`, map[string]string{"plan": "is required"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dest planPayload
			err := DecodeJSONBody(jsonRequest(tt.body), &dest)
			require.Error(t, err)
			assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
			if tt.want != nil {
				assert.Equal(t, tt.want, pkgerrors.As(err).Details())
			}
		})
	}
}

func TestDecodeJSONBodyDescribesBadInput(t *testing.T) {
	var dest planPayload

	err := DecodeJSONBody(jsonRequest(""), &dest)
	assert.Equal(t, "request body is empty", pkgerrors.As(err).Message())

	err = DecodeJSONBody(jsonRequest(`{"plan":`+"\n"+`}`), &dest)
	assert.Equal(t, "malformed JSON", pkgerrors.As(err).Message())
	assert.Contains(t, pkgerrors.As(err).Details(), "offset")

	err = DecodeJSONBody(jsonRequest(`{"plan":42}`), &dest)
	assert.Equal(t, map[string]string{"plan": "must be string"}, pkgerrors.As(err).Details())

	huge := `{"plan":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	err = DecodeJSONBody(jsonRequest(huge), &dest)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Contains(t, pkgerrors.As(err).Message(), "exceeds")
}

type couponPayload struct {
	DiscountType string   `json:"discountType" validate:"required,discount_type"`
	ApplicableTo string   `json:"applicableTo,omitempty" validate:"omitempty,coupon_applicable_to"`
	Intervals    []string `json:"intervals,omitempty" validate:"omitempty,dive,billing_interval"`
}

func TestCouponTags(t *testing.T) {
	var dest couponPayload
	require.NoError(t, DecodeJSONBody(jsonRequest(`{"discountType":"FIXED","intervals":["MONTH","YEAR"]}`), &dest))

	err := DecodeJSONBody(jsonRequest(`{"discountType":"BOGO","applicableTo":"PETS"}`), &dest)
	assert.Equal(t, map[string]string{
		"discountType": "must be PERCENTAGE, FIXED or FREE_TRIAL_DAYS",
		"applicableTo": "must be ALL, FAMILIES, NANNIES or SPECIFIC_PLAN",
	}, pkgerrors.As(err).Details())
}

func TestDecodeOptionalJSONBodyAcceptsEmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	dest := planPayload{Plan: "NANNY_PRO"}
	require.NoError(t, DecodeOptionalJSONBody(req, &dest))
	assert.Equal(t, "NANNY_PRO", dest.Plan)
}

func TestParseQueryBool(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?dryRun=true&bad=maybe", nil)

	v, err := ParseQueryBool(req, "dryRun", false)
	require.NoError(t, err)
	assert.True(t, v)

	v, err = ParseQueryBool(req, "absent", true)
	require.NoError(t, err)
	assert.True(t, v)

	_, err = ParseQueryBool(req, "bad", false)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	repeated := httptest.NewRequest(http.MethodGet, "/?dryRun=true&dryRun=false", nil)
	_, err = ParseQueryBool(repeated, "dryRun", false)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"trims", "  mudança de cidade  ", 0, "mudança de cidade"},
		{"drops control chars", "no\x00 longer\x1b needed", 0, "no longer needed"},
		{"keeps newlines inside", "line one\nline two\n", 0, "line one\nline two"},
		{"truncates ascii", "abcdef", 3, "abc"},
		{"never splits a rune", "ação", 2, "a"},
		{"cut lands on rune boundary", "ação", 3, "aç"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeString(tt.input, tt.maxLen)
			assert.Equal(t, tt.want, got)
			if tt.maxLen > 0 {
				assert.LessOrEqual(t, len(got), tt.maxLen)
			}
		})
	}
}
