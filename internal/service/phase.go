package service

import (
	"time"

	"github.com/asobot/internal/db"
)

// PhaseKind 是愿望生命周期阶段的名称，也用于 API 输出。
type PhaseKind string

const (
	PhaseOpen         PhaseKind = "open"
	PhaseSchedulePoll PhaseKind = "schedule_poll"
	PhaseAttendance   PhaseKind = "attendance"
	PhaseConfirmed    PhaseKind = "confirmed"
)

// Phase 是愿望阶段的显式变体：Open | SchedulePoll | Attendance | Confirmed。
// 所有状态迁移都在变体上判断，而不是散落的字段存在性检查。
type Phase interface {
	Kind() PhaseKind
	isPhase()
}

// OpenPhase 尚未开始任何投票；Date 非空表示创建时已预设日期。
type OpenPhase struct {
	Date *time.Time
}

// SchedulePollPhase 未定日期的愿望正在进行候选日投票。
type SchedulePollPhase struct {
	Candidates []db.ScheduleCandidate
	Deadline   *time.Time
}

// AttendancePhase 已有日期的愿望正在收集 ok/maybe/ng。
type AttendancePhase struct {
	Date     time.Time
	Deadline *time.Time
}

// ConfirmedPhase 为终态。
type ConfirmedPhase struct {
	Date time.Time
}

func (OpenPhase) Kind() PhaseKind         { return PhaseOpen }
func (SchedulePollPhase) Kind() PhaseKind { return PhaseSchedulePoll }
func (AttendancePhase) Kind() PhaseKind   { return PhaseAttendance }
func (ConfirmedPhase) Kind() PhaseKind    { return PhaseConfirmed }

func (OpenPhase) isPhase()         {}
func (SchedulePollPhase) isPhase() {}
func (AttendancePhase) isPhase()   {}
func (ConfirmedPhase) isPhase()    {}

// PhaseOf 从持久化字段推导阶段。status=voting 且已有 start_date 的组合不会由本服务产生，
// 遇到时按是否 voting_started 归入 Attendance 或带日期的 Open。
func PhaseOf(w db.Wish) Phase {
	if w.Status == db.WishStatusConfirmed {
		date, _ := db.DateValue(w.ConfirmedDate)
		return ConfirmedPhase{Date: date}
	}

	if start, ok := db.DateValue(w.StartDate); ok {
		if w.VotingStarted {
			return AttendancePhase{Date: start, Deadline: w.VoteDeadline}
		}
		return OpenPhase{Date: &start}
	}

	if w.Status == db.WishStatusVoting {
		return SchedulePollPhase{Candidates: w.Candidates, Deadline: w.VoteDeadline}
	}
	return OpenPhase{}
}

// canEdit 只有未开始投票的 Open 阶段允许创建者编辑或删除。
func canEdit(p Phase) bool {
	switch p.(type) {
	case OpenPhase:
		return true
	default:
		return false
	}
}

// checkInterest 只有未定日期的 Open 和日程投票中的愿望可以标记想去。
func checkInterest(p Phase) error {
	switch phase := p.(type) {
	case OpenPhase:
		if phase.Date != nil {
			return ErrInvalidTransition
		}
		return nil
	case SchedulePollPhase:
		return nil
	default:
		return ErrInvalidTransition
	}
}

// checkStartPoll 未定日期的 Open 可以发起投票，进行中的投票可以被整组替换。
func checkStartPoll(p Phase) error {
	switch phase := p.(type) {
	case OpenPhase:
		if phase.Date != nil {
			return ErrInvalidTransition
		}
		return nil
	case SchedulePollPhase:
		return nil
	case AttendancePhase, ConfirmedPhase:
		return ErrInvalidTransition
	default:
		return ErrInvalidTransition
	}
}

// checkStartAttendance 参加确认只适用于已有日期且尚未开始的愿望。
func checkStartAttendance(p Phase) error {
	switch phase := p.(type) {
	case OpenPhase:
		if phase.Date == nil {
			return ErrDateRequired
		}
		return nil
	case SchedulePollPhase:
		return ErrDateRequired
	case AttendancePhase, ConfirmedPhase:
		return ErrInvalidTransition
	default:
		return ErrInvalidTransition
	}
}

// checkConfirm 只能从投票中或参加确认中确定日期；投票阶段要求日期属于候选集合。
func checkConfirm(p Phase, date time.Time) error {
	switch phase := p.(type) {
	case SchedulePollPhase:
		for _, candidate := range phase.Candidates {
			if db.SameDate(time.Time(candidate.Date), date) {
				return nil
			}
		}
		return ErrNotACandidate
	case AttendancePhase:
		return nil
	case OpenPhase, ConfirmedPhase:
		return ErrInvalidTransition
	default:
		return ErrInvalidTransition
	}
}
