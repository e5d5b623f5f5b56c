package service_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/darkpool/internal/domain"
	"github.com/alanyoungcy/darkpool/internal/service"
)

func TestEstimatePayout(t *testing.T) {
	tests := []struct {
		name                 string
		stake                uint64
		user, winner         domain.Side
		winning, losing, fee uint64
		want                 uint64
	}{
		{"worked example", 100, domain.SideYes, domain.SideYes, 300, 200, 250, 165},
		{"losing side gets nothing", 100, domain.SideNo, domain.SideYes, 300, 200, 250, 0},
		{"empty winning pool returns stake", 100, domain.SideYes, domain.SideYes, 0, 500, 250, 100},
		{"empty losing pool returns stake", 100, domain.SideNo, domain.SideNo, 100, 0, 250, 100},
		{"no fee", 100, domain.SideYes, domain.SideYes, 100, 100, 0, 200},
		{"full fee", 100, domain.SideYes, domain.SideYes, 100, 100, 10_000, 100},
		{"sole winner takes losing pool", 5 * domain.OctasPerAPT, domain.SideNo, domain.SideNo,
			5 * domain.OctasPerAPT, 20 * domain.OctasPerAPT, 250, 5*domain.OctasPerAPT + 20*domain.OctasPerAPT - domain.OctasPerAPT/2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := service.EstimatePayout(tt.stake, tt.user, tt.winner, tt.winning, tt.losing, tt.fee)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEstimatePayout_LargeValuesDoNotOverflow(t *testing.T) {
	stake := uint64(1) << 62
	got := service.EstimatePayout(stake, domain.SideYes, domain.SideYes, stake, stake, 0)
	assert.Equal(t, stake*2, got)

	got = service.EstimatePayout(math.MaxUint64, domain.SideYes, domain.SideYes, 1, math.MaxUint64, 0)
	assert.Equal(t, uint64(math.MaxUint64), got)
}

func TestPreviewPayout(t *testing.T) {
	m := domain.Market{Phase: domain.PhaseReveal, YesPool: 300, NoPool: 200}
	assert.Equal(t, uint64(165), service.PreviewPayout(m, domain.SideYes, 100, 250))

	m.Phase, m.WinnerSide = domain.PhaseResolved, domain.SideNo
	assert.Zero(t, service.PreviewPayout(m, domain.SideYes, 100, 250))
}
