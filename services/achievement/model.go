package achievement

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"refhire-rewards/pkg/errutil"
)

type Category string

var (
	CategoryProfile    Category = "profile"
	CategoryReferral   Category = "referral"
	CategoryNetworking Category = "networking"
	CategoryLearning   Category = "learning"
	CategoryMentorship Category = "mentorship"
)

type Rarity string

var (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityLegendary Rarity = "legendary"
)

// Achievement is a catalog row. Requirement holds the serialized
// requirement descriptor; the engine never needs schema changes to add a
// new achievement, only a new row.
type Achievement struct {
	ID                  string         `gorm:"column:id;primaryKey"`
	Code                string         `gorm:"column:code;uniqueIndex;not null"`
	Name                string         `gorm:"column:name;not null"`
	Description         string         `gorm:"column:description;type:text"`
	Category            Category       `gorm:"column:category;type:varchar(20);index"`
	Rarity              Rarity         `gorm:"column:rarity;type:varchar(20);default:'common'"`
	RewardRefcoins      int64          `gorm:"column:reward_refcoins;not null;default:0"`
	RewardPremiumTokens int64          `gorm:"column:reward_premium_tokens;not null;default:0"`
	Requirement         datatypes.JSON `gorm:"column:requirement;not null"`
	Repeatable          bool           `gorm:"column:repeatable;not null;default:false"`
	MaxCompletions      *int64         `gorm:"column:max_completions"`
	IsActive            bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt           time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Achievement) TableName() string { return "achievements" }

// Requirement describes when an achievement completes. Kind selects the
// evaluator; the remaining fields are evaluator-specific.
type Requirement struct {
	Action     string `json:"action"`
	Kind       string `json:"kind"`
	Threshold  int64  `json:"threshold,omitempty"`
	Field      string `json:"field,omitempty"`
	Expression string `json:"expression,omitempty"`
}

func (a *Achievement) ParseRequirement() (*Requirement, error) {
	var req Requirement
	if err := json.Unmarshal(a.Requirement, &req); err != nil {
		return nil, errutil.Internal("malformed achievement requirement", err)
	}
	if req.Action == "" || req.Kind == "" {
		return nil, errutil.Internal("achievement requirement missing action or kind", nil)
	}
	return &req, nil
}

// UserAchievementProgress tracks one user against one achievement. The
// unique (user_id, achievement_id) index is what makes payouts idempotent
// under event redelivery.
type UserAchievementProgress struct {
	ID              string         `gorm:"column:id;primaryKey"`
	UserID          string         `gorm:"column:user_id;uniqueIndex:idx_user_achievement;not null"`
	AchievementID   string         `gorm:"column:achievement_id;uniqueIndex:idx_user_achievement;not null"`
	Progress        int64          `gorm:"column:progress;not null;default:0"`
	MaxProgress     int64          `gorm:"column:max_progress;not null;default:1"`
	Completed       bool           `gorm:"column:completed;not null;default:false"`
	CompletedAt     *time.Time     `gorm:"column:completed_at"`
	CompletionCount int64          `gorm:"column:completion_count;not null;default:0"`
	CoinsRewarded   int64          `gorm:"column:coins_rewarded;not null;default:0"`
	Meta            datatypes.JSON `gorm:"column:meta"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (UserAchievementProgress) TableName() string { return "user_achievement_progress" }

// UserAchievement is the catalog-joined read model: every achievement,
// with the user's progress zeroed when no row exists yet.
type UserAchievement struct {
	Achievement     *Achievement `json:"achievement"`
	Progress        int64        `json:"progress"`
	MaxProgress     int64        `json:"max_progress"`
	Completed       bool         `json:"completed"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	CompletionCount int64        `json:"completion_count"`
}

// Opportunity is an achievement the user can still earn from.
type Opportunity struct {
	Achievement         *Achievement `json:"achievement"`
	Progress            int64        `json:"progress"`
	MaxProgress         int64        `json:"max_progress"`
	PotentialRefcoins   int64        `json:"potential_refcoins"`
	PotentialPremium    int64        `json:"potential_premium_tokens"`
	RemainingCompletion *int64       `json:"remaining_completions,omitempty"`
}

// AwardResult reports one completion paid out by CheckAndAward.
type AwardResult struct {
	AchievementID        string `json:"achievement_id"`
	Code                 string `json:"code"`
	RefcoinsAwarded      int64  `json:"refcoins_awarded"`
	PremiumTokensAwarded int64  `json:"premium_tokens_awarded"`
}
