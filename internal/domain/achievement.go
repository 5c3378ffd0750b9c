package domain

import "time"

// Rarity grades how hard an achievement is to earn
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// AchievementCategory groups achievements on the dashboard
type AchievementCategory string

const (
	CategoryBasics   AchievementCategory = "basics"
	CategoryTools    AchievementCategory = "tools"
	CategoryStreaks  AchievementCategory = "streaks"
	CategoryCode     AchievementCategory = "code"
	CategoryLearning AchievementCategory = "learning"
	CategoryData     AchievementCategory = "data"
)

// Achievement is a one-time badge. Once Unlocked it never reverts.
type Achievement struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	XPReward    int                 `json:"xp_reward"`
	Rarity      Rarity              `json:"rarity"`
	Category    AchievementCategory `json:"category"`
	Unlocked    bool                `json:"unlocked"`
	UnlockedAt  *time.Time          `json:"unlocked_at,omitempty"`
}
