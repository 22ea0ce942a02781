package audio

import (
	"testing"

	"ClearFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListVariants_OrderedByBitrateDescending(t *testing.T) {
	catalog := NewQualityCatalog()
	variants := catalog.ListVariants("music/track.mp3")

	require.Len(t, variants, 4)
	for i := 1; i < len(variants); i++ {
		assert.Greater(t, variants[i-1].BitrateKbps, variants[i].BitrateKbps)
	}

	assert.Equal(t, "music/track_high.mp3", variants[0].Key)
	assert.Equal(t, "music/track.mp3", variants[1].Key)
	assert.Equal(t, "music/track_medium.mp3", variants[2].Key)
	assert.Equal(t, "music/track_low.mp3", variants[3].Key)
}

func TestListVariants_StripsExistingSuffix(t *testing.T) {
	catalog := NewQualityCatalog()
	variants := catalog.ListVariants("music/track_low.mp3")

	assert.Equal(t, "music/track_high.mp3", variants[0].Key)
	assert.Equal(t, "music/track.mp3", variants[1].Key)
}

func TestResolve_ExactMatch(t *testing.T) {
	catalog := NewQualityCatalog()

	v := catalog.Resolve("track.mp3", model.QualityMedium)
	assert.Equal(t, model.QualityMedium, v.Quality)
	assert.Equal(t, 192, v.BitrateKbps)
	assert.Equal(t, "track_medium.mp3", v.Key)
}

func TestResolve_UnknownQualityFallsBack(t *testing.T) {
	catalog := NewQualityCatalog()

	v := catalog.Resolve("track.mp3", model.AudioQuality("lossless"))
	assert.Equal(t, model.QualityHigh, v.Quality)
	assert.Equal(t, "track_high.mp3", v.Key)
}

func TestResolve_NeverEmpty(t *testing.T) {
	catalog := NewQualityCatalog()

	v := catalog.Resolve("", model.AudioQuality(""))
	assert.NotEmpty(t, v.Quality)
}
