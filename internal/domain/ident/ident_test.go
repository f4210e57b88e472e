package ident

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var known = map[string]bool{"goa": true, "mumbai": true, "bengaluru": true}

func TestPrefix_BareLocalID(t *testing.T) {
	assert.Equal(t, "goa-roads", Prefix("roads", "goa", known))
}

func TestPrefix_KnownForeignPrefix(t *testing.T) {
	// "mumbai-wards" declared inside goa is a cross-atlas reference
	assert.Equal(t, "mumbai-wards", Prefix("mumbai-wards", "goa", known))
}

func TestPrefix_OwnPrefixAlreadyPresent(t *testing.T) {
	assert.Equal(t, "goa-roads", Prefix("goa-roads", "goa", known))
}

func TestPrefix_UnknownPrefixToken(t *testing.T) {
	// "river" is not an atlas, so the whole string is a local id
	assert.Equal(t, "goa-river-basins", Prefix("river-basins", "goa", known))
}

func TestPrefix_Idempotent(t *testing.T) {
	once := Prefix("plots", "goa", known)
	assert.Equal(t, once, Prefix(once, "goa", known))
}

func TestPrefix_NoKnownAtlases(t *testing.T) {
	assert.Equal(t, "goa-mumbai-wards", Prefix("mumbai-wards", "goa", nil))
}

func TestNormalize_StripsContextPrefix(t *testing.T) {
	assert.Equal(t, "roads", Normalize("goa-roads", "goa"))
}

func TestNormalize_KeepsForeignPrefix(t *testing.T) {
	assert.Equal(t, "mumbai-wards", Normalize("mumbai-wards", "goa"))
}

func TestNormalize_EmptyContext(t *testing.T) {
	assert.Equal(t, "goa-roads", Normalize("goa-roads", ""))
}

func TestNormalize_RoundTrip(t *testing.T) {
	for _, local := range []string{"roads", "river-basins", "slope2024"} {
		canonical := Prefix(local, "goa", known)
		assert.Equal(t, local, Normalize(canonical, "goa"), "local id %q", local)
	}
}

func TestSplitPrefix_FirstSeparatorOnly(t *testing.T) {
	token, rest := SplitPrefix("goa-river-basins")
	assert.Equal(t, "goa", token)
	assert.Equal(t, "river-basins", rest)
}

func TestSplitPrefix_NoSeparator(t *testing.T) {
	token, rest := SplitPrefix("roads")
	assert.Equal(t, "roads", token)
	assert.Equal(t, "", rest)
}

func TestSplitPrefix_LeadingSeparator(t *testing.T) {
	token, rest := SplitPrefix("-roads")
	assert.Equal(t, "", token)
	assert.Equal(t, "roads", rest)
}
