package curator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, sep, want string
	}{
		{"Roofing", "_", "roofing"},
		{"Home Services", "_", "home_services"},
		{"Crème Brûlée Ads", "_", "creme_brulee_ads"},
		{"  Meta -- Advantage+  ", "-", "meta-advantage"},
		{"CTV / OTT 2025", "_", "ctv_ott_2025"},
		{"!!!", "_", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in, tt.sep), tt.in)
	}
}

func TestKeySeparator(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "-", keySeparator("slug"))
	assert.Equal(t, "_", keySeparator("code"))
	assert.Equal(t, "_", keySeparator("data_value"))
}
