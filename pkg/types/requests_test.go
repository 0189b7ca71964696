package types_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korelabs/kore/pkg/types"
)

func intPtr(v int) *int { return &v }

func TestSaveRequestValidate(t *testing.T) {
	cases := []struct {
		name    string
		req     types.SaveRequest
		wantErr bool
	}{
		{"valid", types.SaveRequest{Content: "the deploy happens on fridays", Category: "project"}, false},
		{"default_category", types.SaveRequest{Content: "remember this"}, false},
		{"explicit_importance", types.SaveRequest{Content: "critical key rotation date", Importance: intPtr(5)}, false},
		{"too_short", types.SaveRequest{Content: "ab"}, true},
		{"blank", types.SaveRequest{Content: "   "}, true},
		{"too_long", types.SaveRequest{Content: strings.Repeat("x", types.MaxContentLength+1)}, true},
		{"multibyte_within_limit", types.SaveRequest{Content: strings.Repeat("日", 1500)}, false},
		{"multibyte_over_limit", types.SaveRequest{Content: strings.Repeat("日", types.MaxContentLength+1)}, true},
		{"bad_category", types.SaveRequest{Content: "something", Category: "gossip"}, true},
		{"importance_too_low", types.SaveRequest{Content: "something", Importance: intPtr(0)}, true},
		{"importance_too_high", types.SaveRequest{Content: "something", Importance: intPtr(6)}, true},
		{"ttl_too_long", types.SaveRequest{Content: "something", TTLHours: types.MaxTTLHours + 1}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, types.ErrValidation)
			} else {
				require.NoError(t, err)
				assert.True(t, types.ValidCategory(tc.req.Category))
			}
		})
	}
}

func TestSaveRequestValidateTrimsContent(t *testing.T) {
	req := types.SaveRequest{Content: "  padded content  "}
	require.NoError(t, req.Validate())
	assert.Equal(t, "padded content", req.Content)
}

func TestUpdateRequestValidate(t *testing.T) {
	content := "  new content  "
	req := types.UpdateRequest{Content: &content}
	require.NoError(t, req.Validate())
	assert.Equal(t, "new content", *req.Content)

	bad := "no"
	require.Error(t, (&types.UpdateRequest{Content: &bad}).Validate())

	// Length limits count characters, not bytes.
	wide := strings.Repeat("日", 1500)
	require.NoError(t, (&types.UpdateRequest{Content: &wide}).Validate())

	assert.True(t, (&types.UpdateRequest{}).Empty())
	assert.False(t, req.Empty())
}

func TestMemoryRecordActive(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	other := int64(42)

	cases := []struct {
		name string
		rec  types.MemoryRecord
		want bool
	}{
		{"plain", types.MemoryRecord{}, true},
		{"compressed", types.MemoryRecord{CompressedInto: &other}, false},
		{"archived", types.MemoryRecord{ArchivedAt: &past}, false},
		{"expired", types.MemoryRecord{ExpiresAt: &past}, false},
		{"not_yet_expired", types.MemoryRecord{ExpiresAt: &future}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.rec.Active(now))
		})
	}
}
