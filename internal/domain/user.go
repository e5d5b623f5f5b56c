package domain

import "time"

// XP granted per action.
const (
	XPCommit int64 = 10
	XPReveal int64 = 20
	XPWin    int64 = 50
)

// Level is one rung of the XP ladder.
type Level struct {
	Number int    `json:"level"`
	XP     int64  `json:"xp"`
	Title  string `json:"title"`
}

var levels = [...]Level{
	{1, 0, "Novice"},
	{2, 100, "Apprentice"},
	{3, 300, "Trader"},
	{4, 600, "Expert"},
	{5, 1000, "Master"},
	{6, 1500, "Oracle"},
	{7, 2500, "Prophet"},
	{8, 4000, "Legend"},
	{9, 6000, "Mythic"},
	{10, 10000, "Darkpool Elite"},
}

// LevelFor returns the highest level whose threshold xp has reached.
func LevelFor(xp int64) Level {
	lvl := levels[0]
	for _, l := range levels {
		if xp >= l.XP {
			lvl = l
		}
	}
	return lvl
}

// NextLevel returns the level after the one xp is at, or false at the top.
func NextLevel(xp int64) (Level, bool) {
	cur := LevelFor(xp)
	if cur.Number >= len(levels) {
		return Level{}, false
	}
	return levels[cur.Number], true
}

// UserStats aggregates one address's activity.
type UserStats struct {
	Address          string    `json:"address"`
	TotalPredictions int       `json:"totalPredictions"`
	Wins             int       `json:"wins"`
	Losses           int       `json:"losses"`
	TotalStaked      uint64    `json:"totalStaked"`
	TotalWon         uint64    `json:"totalWon"`
	CurrentStreak    int       `json:"currentStreak"`
	BestStreak       int       `json:"bestStreak"`
	XP               int64     `json:"xp"`
	Level            int       `json:"level"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank    int    `json:"rank"`
	Address string `json:"address"`
	XP      int64  `json:"xp"`
	Level   int    `json:"level"`
	Wins    int    `json:"wins"`
}
