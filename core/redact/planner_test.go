package redact

import (
	"os"
	"testing"

	"ClearFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func word(text string, start, end float64) model.TranscribedWord {
	return model.TranscribedWord{Text: text, StartSec: start, EndSec: end}
}

func TestPlan_NoBannedWords(t *testing.T) {
	banned := NewBannedWords([]string{"damn"})
	ranges, err := Plan([]model.TranscribedWord{
		word("hello", 0.0, 0.4),
		word("world", 0.5, 0.9),
	}, banned, 0.15)

	require.NoError(t, err)
	assert.Empty(t, ranges)
}

func TestPlan_SingleHitWithPadding(t *testing.T) {
	banned := NewBannedWords([]string{"damn"})
	ranges, err := Plan([]model.TranscribedWord{
		word("damn", 1.0, 1.5),
	}, banned, 0.15)

	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.InDelta(t, 0.85, ranges[0].StartSec, 1e-9)
	assert.InDelta(t, 1.65, ranges[0].EndSec, 1e-9)
}

func TestPlan_PaddingClampedAtZero(t *testing.T) {
	banned := NewBannedWords([]string{"damn"})
	ranges, err := Plan([]model.TranscribedWord{
		word("damn", 0.05, 0.3),
	}, banned, 0.15)

	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, 0.0, ranges[0].StartSec)
}

func TestPlan_OverlappingRangesMerge(t *testing.T) {
	banned := NewBannedWords([]string{"foo", "bar"})

	// 区间 [1.0,2.0] 与 [1.9,3.0] 应合并为 [1.0,3.0]
	ranges, err := Plan([]model.TranscribedWord{
		word("foo", 1.0, 2.0),
		word("bar", 1.9, 3.0),
	}, banned, 0)

	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, 1.0, ranges[0].StartSec)
	assert.Equal(t, 3.0, ranges[0].EndSec)
}

func TestPlan_DisjointRangesStaySeparate(t *testing.T) {
	banned := NewBannedWords([]string{"foo", "bar"})
	ranges, err := Plan([]model.TranscribedWord{
		word("foo", 1.0, 2.0),
		word("bar", 5.0, 6.0),
	}, banned, 0)

	require.NoError(t, err)
	require.Len(t, ranges, 2)
	assert.Equal(t, 1.0, ranges[0].StartSec)
	assert.Equal(t, 2.0, ranges[0].EndSec)
	assert.Equal(t, 5.0, ranges[1].StartSec)
	assert.Equal(t, 6.0, ranges[1].EndSec)
}

func TestPlan_UnsortedInputProducesSortedOutput(t *testing.T) {
	banned := NewBannedWords([]string{"a", "b", "c"})
	ranges, err := Plan([]model.TranscribedWord{
		word("c", 8.0, 8.5),
		word("a", 1.0, 1.5),
		word("b", 4.0, 4.5),
	}, banned, 0)

	require.NoError(t, err)
	require.Len(t, ranges, 3)
	for i := 1; i < len(ranges); i++ {
		assert.Greater(t, ranges[i].StartSec, ranges[i-1].EndSec,
			"ranges must be sorted and non-overlapping")
	}
}

func TestPlan_InvariantsHold(t *testing.T) {
	banned := NewBannedWords([]string{"x"})
	words := []model.TranscribedWord{
		word("x", 0.0, 0.2),
		word("x", 0.1, 0.3),
		word("x", 0.25, 0.5),
		word("x", 2.0, 2.1),
		word("x", 5.0, 5.5),
		word("x", 5.4, 5.6),
	}

	ranges, err := Plan(words, banned, 0.15)
	require.NoError(t, err)
	require.NotEmpty(t, ranges)

	for i, r := range ranges {
		assert.GreaterOrEqual(t, r.EndSec, r.StartSec)
		assert.GreaterOrEqual(t, r.StartSec, 0.0)
		if i > 0 {
			assert.Greater(t, r.StartSec, ranges[i-1].EndSec)
		}
	}
}

func TestPlan_CaseAndPunctuationNormalization(t *testing.T) {
	banned := NewBannedWords([]string{"Damn"})
	ranges, err := Plan([]model.TranscribedWord{
		word("DAMN,", 1.0, 1.2),
		word("damn.", 2.0, 2.2),
	}, banned, 0)

	require.NoError(t, err)
	assert.Len(t, ranges, 2)
}

func TestPlan_RejectsMalformedWord(t *testing.T) {
	banned := NewBannedWords([]string{"damn"})
	_, err := Plan([]model.TranscribedWord{
		word("damn", 2.0, 1.0),
	}, banned, 0)

	assert.Error(t, err)
}

func TestLoadBannedWords(t *testing.T) {
	path := t.TempDir() + "/words.txt"
	content := "# comment\nDamn\n\n  hell  \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	banned, err := LoadBannedWords(path)
	require.NoError(t, err)

	assert.True(t, banned.Contains("damn"))
	assert.True(t, banned.Contains("HELL"))
	assert.False(t, banned.Contains("# comment"))
	assert.False(t, banned.Contains(""))
}
