package leaderboard

import (
	"fmt"
	"time"

	"gorm.io/datatypes"

	"refhire-rewards/pkg/errutil"
)

type Type string

var (
	TypeWeeklyEarnings Type = "weekly_earnings"
	TypeMonthlySuccess Type = "monthly_success"
)

var AllTypes = []Type{TypeWeeklyEarnings, TypeMonthlySuccess}

func (t Type) Valid() bool {
	return t == TypeWeeklyEarnings || t == TypeMonthlySuccess
}

// Entry is one ranked row of a (type, period) board. Boards are replaced
// wholesale by the aggregator; ranks are dense, starting at 1.
type Entry struct {
	ID        string         `gorm:"column:id;primaryKey"`
	Type      Type           `gorm:"column:type;uniqueIndex:idx_board_user;type:varchar(30);not null"`
	Period    string         `gorm:"column:period;uniqueIndex:idx_board_user;type:varchar(10);not null"`
	UserID    string         `gorm:"column:user_id;uniqueIndex:idx_board_user;not null"`
	Score     int64          `gorm:"column:score;not null"`
	Rank      int64          `gorm:"column:rank;not null"`
	Metadata  datatypes.JSON `gorm:"column:metadata"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (Entry) TableName() string { return "leaderboard_entries" }

// CurrentPeriod formats the period key the given instant falls in:
// ISO week ("2026-W35") for weekly boards, calendar month ("2026-08")
// for monthly ones.
func CurrentPeriod(t Type, now time.Time) string {
	if t == TypeWeeklyEarnings {
		year, week := now.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	}
	return now.Format("2006-01")
}

// PeriodRange resolves a period key to its half-open [start, end) window.
func PeriodRange(t Type, period string) (time.Time, time.Time, error) {
	if t == TypeWeeklyEarnings {
		var year, week int
		if _, err := fmt.Sscanf(period, "%d-W%d", &year, &week); err != nil || week < 1 || week > 53 {
			return time.Time{}, time.Time{}, errutil.BadRequest("invalid weekly period", err)
		}
		start := isoWeekStart(year, week)
		return start, start.AddDate(0, 0, 7), nil
	}

	start, err := time.Parse("2006-01", period)
	if err != nil {
		return time.Time{}, time.Time{}, errutil.BadRequest("invalid monthly period", err)
	}
	return start, start.AddDate(0, 1, 0), nil
}

// isoWeekStart is the Monday of the given ISO week. January 4th is always
// inside week 1, which anchors the calculation.
func isoWeekStart(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	monday := jan4.AddDate(0, 0, 1-weekday)
	return monday.AddDate(0, 0, (week-1)*7)
}
