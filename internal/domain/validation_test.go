package domain_test

import (
	"strings"
	"testing"

	"github.com/alanyoungcy/darkpool/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAPTToOctas(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"1", 100_000_000},
		{"0.01", 1_000_000},
		{"1.5", 150_000_000},
		{".5", 50_000_000},
		{"10000", 1_000_000_000_000},
		{"0.123456789", 12_345_678}, // floors past 8 decimals
		{" 2.00000001 ", 200_000_001},
		{"1.000000009", 100_000_000},
		{"3.", 300_000_000},
	}
	for _, tc := range cases {
		got, err := domain.ParseAPTToOctas(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseAPTToOctas_Rejects(t *testing.T) {
	for _, in := range []string{"", "-1", "+1", "abc", "1.2.3", "1e5", "99999999999999999999", "1.000000009zz", "1.12345678-", "0.5 1"} {
		_, err := domain.ParseAPTToOctas(in)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, in)
	}
}

func TestFormatOctas(t *testing.T) {
	assert.Equal(t, "1", domain.FormatOctas(100_000_000))
	assert.Equal(t, "0.01", domain.FormatOctas(1_000_000))
	assert.Equal(t, "1.65", domain.FormatOctas(165_000_000))
	assert.Equal(t, "0", domain.FormatOctas(0))
}

func TestValidateCommitAmount(t *testing.T) {
	assert.NoError(t, domain.ValidateCommitAmount(domain.MinCommitOctas))
	assert.NoError(t, domain.ValidateCommitAmount(domain.MaxCommitOctas))
	assert.ErrorIs(t, domain.ValidateCommitAmount(domain.MinCommitOctas-1), domain.ErrInvalidInput)
	assert.ErrorIs(t, domain.ValidateCommitAmount(domain.MaxCommitOctas+1), domain.ErrInvalidInput)
}

func TestAddressChecks(t *testing.T) {
	full := "0x" + strings.Repeat("ab", 32)
	assert.True(t, domain.IsAccountAddress(full))
	assert.False(t, domain.IsAccountAddress("0xCAFE"))
	assert.True(t, domain.IsShortAddress("0xCAFE"))
	assert.False(t, domain.IsShortAddress("CAFE"))
	assert.False(t, domain.IsShortAddress("0x"+strings.Repeat("a", 65)))
}

func TestValidateQuestionAndDurations(t *testing.T) {
	assert.NoError(t, domain.ValidateQuestion("Will BTC exceed $150k?"))
	assert.ErrorIs(t, domain.ValidateQuestion("short"), domain.ErrInvalidInput)
	assert.ErrorIs(t, domain.ValidateQuestion(strings.Repeat("x", 201)), domain.ErrInvalidInput)

	assert.NoError(t, domain.ValidateDurations(3600, 1800))
	assert.NoError(t, domain.ValidateDurations(604800, 86400))
	assert.ErrorIs(t, domain.ValidateDurations(3599, 1800), domain.ErrInvalidInput)
	assert.ErrorIs(t, domain.ValidateDurations(3600, 86401), domain.ErrInvalidInput)
}

func TestParseSide(t *testing.T) {
	s, err := domain.ParseSide("YES")
	require.NoError(t, err)
	assert.Equal(t, domain.SideYes, s)

	s, err = domain.ParseSide("2")
	require.NoError(t, err)
	assert.Equal(t, domain.SideNo, s)

	_, err = domain.ParseSide("maybe")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, "Novice", domain.LevelFor(0).Title)
	assert.Equal(t, 1, domain.LevelFor(99).Number)
	assert.Equal(t, 2, domain.LevelFor(100).Number)
	assert.Equal(t, "Master", domain.LevelFor(1450).Title)
	assert.Equal(t, "Darkpool Elite", domain.LevelFor(12500).Title)

	next, ok := domain.NextLevel(1450)
	require.True(t, ok)
	assert.Equal(t, int64(1500), next.XP)

	_, ok = domain.NextLevel(10000)
	assert.False(t, ok)
}
