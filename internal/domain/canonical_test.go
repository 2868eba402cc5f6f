package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeysAndFormatsMoney(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"total":  decimal.RequireFromString("80"),
		"status": StatusPending,
		"lines":  []any{map[string]any{"qty": 2, "id": "a"}},
		"ok":     true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"lines":[{"id":"a","qty":2}],"ok":true,"status":"pending","total":"80.00"}`, string(got))
}

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	got, err := MarshalCanonical("<rice & egg>")
	require.NoError(t, err)
	assert.Equal(t, `"<rice & egg>"`, string(got))
}

func TestMarshalCanonical_RejectsFloatsAndNull(t *testing.T) {
	_, err := MarshalCanonical(1.5)
	assert.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"x": nil})
	assert.Error(t, err)
}

func TestNormalizeText(t *testing.T) {
	// e + combining acute accent collapses to the precomposed form.
	assert.Equal(t, "Caf\u00e9", NormalizeText("  Cafe\u0301 "))
}

func TestCompareKeysUTF16(t *testing.T) {
	assert.Negative(t, compareKeysUTF16("a", "b"))
	assert.Negative(t, compareKeysUTF16("a", "ab"))
	assert.Zero(t, compareKeysUTF16("k", "k"))
	// U+FF61 sorts after a surrogate pair in UTF-16 but before it in UTF-8.
	assert.Positive(t, compareKeysUTF16("｡", "\U0001F600"))
}
