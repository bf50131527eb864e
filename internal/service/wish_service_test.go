package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/asobot/internal/db"
)

func TestWishServiceCreateValidation(t *testing.T) {
	f := newFixture(t)
	group := f.group(t, "C1")
	aki := f.member(t, group, "U-aki")

	if _, err := f.wishes.Create(group.ID, aki.ID, WishInput{Title: "   "}); !errors.Is(err, ErrEmptyTitle) || !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrEmptyTitle, got %v", err)
	}
	if _, err := f.wishes.Create(group.ID, "missing-user", WishInput{Title: "Camp"}); !errors.Is(err, ErrUnknownCreator) {
		t.Fatalf("expected ErrUnknownCreator, got %v", err)
	}
	if _, err := f.wishes.Create("missing-group", aki.ID, WishInput{Title: "Camp"}); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}
	if _, err := f.wishes.Create(group.ID, aki.ID, WishInput{Title: "Camp", StartTime: "25:00"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for bad time, got %v", err)
	}

	wish, err := f.wishes.Create(group.ID, aki.ID, WishInput{Title: "<b>Beach</b> & Sun", Description: "  bring **towels**  "})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if wish.Title != "Beach & Sun" {
		t.Fatalf("expected sanitized title, got %q", wish.Title)
	}
	if wish.Description != "bring **towels**" {
		t.Fatalf("expected trimmed description, got %q", wish.Description)
	}
	if wish.Status != db.WishStatusOpen || wish.VotingStarted || wish.StartDate != nil {
		t.Fatalf("expected open undated wish, got %+v", wish)
	}
	if _, ok := PhaseOf(*wish).(OpenPhase); !ok {
		t.Fatalf("expected open phase, got %T", PhaseOf(*wish))
	}
}

func TestWishServiceUpdateAndDeletePermissions(t *testing.T) {
	f := newFixture(t)
	group := f.group(t, "C1")
	aki := f.member(t, group, "U-aki")
	ben := f.member(t, group, "U-ben")
	wish := f.wish(t, group, aki, "Museum", nil)

	if _, err := f.wishes.Update(wish.ID, ben.ID, WishInput{Title: "Other"}); !errors.Is(err, ErrNotCreator) || !errors.Is(err, ErrPermission) {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}

	start := mustDate(t, "2025-04-05")
	updated, err := f.wishes.Update(wish.ID, aki.ID, WishInput{Title: "Art Museum", StartDate: &start, StartTime: "10:30"})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Title != "Art Museum" || db.FormatDate(updated.StartDate) != "2025-04-05" {
		t.Fatalf("unexpected updated wish: %+v", updated)
	}
	if updated.StartTime == nil {
		t.Fatal("expected start time to be stored")
	}

	if err := f.wishes.Delete(wish.ID, ben.ID); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}

	if _, err := f.wishes.StartAttendanceConfirmation(context.Background(), wish.ID, nil); err != nil {
		t.Fatalf("StartAttendanceConfirmation returned error: %v", err)
	}
	if err := f.wishes.Delete(wish.ID, aki.ID); !errors.Is(err, ErrWishLocked) {
		t.Fatalf("expected ErrWishLocked after voting started, got %v", err)
	}
	if _, err := f.wishes.Update(wish.ID, aki.ID, WishInput{Title: "Late edit"}); !errors.Is(err, ErrWishLocked) {
		t.Fatalf("expected ErrWishLocked for edit, got %v", err)
	}
}

func TestWishServiceDeleteRemovesOwnedRows(t *testing.T) {
	f := newFixture(t)
	group := f.group(t, "C1")
	aki := f.member(t, group, "U-aki")
	ben := f.member(t, group, "U-ben")
	wish := f.wish(t, group, aki, "Picnic", nil)
	other := f.wish(t, group, aki, "Karaoke", nil)

	if err := f.interests.Add(wish.ID, ben.ID); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if err := f.interests.Add(other.ID, ben.ID); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if err := f.responses.SetResponse(wish.ID, ben.ID, db.ResponseMaybe); err != nil {
		t.Fatalf("SetResponse returned error: %v", err)
	}
	candidate := db.ScheduleCandidate{WishID: wish.ID, Date: *db.NewDate(mustDate(t, "2025-03-01"))}
	if err := f.db.Create(&candidate).Error; err != nil {
		t.Fatalf("failed to seed candidate: %v", err)
	}
	if err := f.schedule.CastVote(candidate.ID, ben.ID, db.AvailabilityOK); err != nil {
		t.Fatalf("CastVote returned error: %v", err)
	}

	if err := f.wishes.Delete(wish.ID, aki.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	if _, err := f.wishes.Get(wish.ID); !errors.Is(err, ErrWishNotFound) {
		t.Fatalf("expected ErrWishNotFound, got %v", err)
	}

	checks := []struct {
		name  string
		model any
		where string
		arg   string
	}{
		{name: "interests", model: &db.Interest{}, where: "wish_id = ?", arg: wish.ID},
		{name: "responses", model: &db.WishResponse{}, where: "wish_id = ?", arg: wish.ID},
		{name: "candidates", model: &db.ScheduleCandidate{}, where: "wish_id = ?", arg: wish.ID},
		{name: "votes", model: &db.ScheduleVote{}, where: "candidate_id = ?", arg: candidate.ID},
	}
	for _, tc := range checks {
		t.Run(tc.name, func(t *testing.T) {
			var count int64
			if err := f.db.Model(tc.model).Where(tc.where, tc.arg).Count(&count).Error; err != nil {
				t.Fatalf("count failed: %v", err)
			}
			if count != 0 {
				t.Fatalf("expected no orphan %s, got %d", tc.name, count)
			}
		})
	}

	if n, err := f.interests.Count(other.ID); err != nil || n != 1 {
		t.Fatalf("expected other wish interest to survive, got %d (%v)", n, err)
	}
}

func TestBeachTripScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group := f.group(t, "C-beach")
	aki := f.member(t, group, "U-aki")
	ben := f.member(t, group, "U-ben")
	cai := f.member(t, group, "U-cai")

	wish := f.wish(t, group, aki, "Beach Trip", nil)

	candidates, err := f.wishes.CreateSchedulePoll(ctx, wish.ID, []time.Time{mustDate(t, "2025-03-02"), mustDate(t, "2025-03-01")}, nil)
	if err != nil {
		t.Fatalf("CreateSchedulePoll returned error: %v", err)
	}
	if len(candidates) != 2 || db.FormatDate(&candidates[0].Date) != "2025-03-01" {
		t.Fatalf("expected two candidates ordered by date, got %+v", candidates)
	}
	if f.dispatcher.count() != 1 || !strings.Contains(f.dispatcher.last().Text, "Beach Trip") {
		t.Fatalf("expected one schedule start push, got %+v", f.dispatcher.pushes)
	}
	if f.dispatcher.last().To != "C-beach" {
		t.Fatalf("expected push to line group, got %q", f.dispatcher.last().To)
	}

	first, second := candidates[0].ID, candidates[1].ID
	for _, user := range []*db.User{aki, ben} {
		if err := f.schedule.CastVote(first, user.ID, db.AvailabilityOK); err != nil {
			t.Fatalf("CastVote returned error: %v", err)
		}
	}
	if err := f.schedule.CastVote(second, cai.ID, db.AvailabilityNG); err != nil {
		t.Fatalf("CastVote returned error: %v", err)
	}

	leading, err := f.schedule.LeadingCandidates(wish.ID)
	if err != nil {
		t.Fatalf("LeadingCandidates returned error: %v", err)
	}
	if len(leading) != 1 || leading[0].Candidate.ID != first || leading[0].OK() != 2 {
		t.Fatalf("expected only 2025-03-01 to lead, got %+v", leading)
	}

	confirmed, err := f.wishes.ConfirmDate(ctx, wish.ID, aki.ID, time.Time(leading[0].Candidate.Date))
	if err != nil {
		t.Fatalf("ConfirmDate returned error: %v", err)
	}
	if confirmed.Status != db.WishStatusConfirmed || db.FormatDate(confirmed.ConfirmedDate) != "2025-03-01" {
		t.Fatalf("unexpected confirmed wish: status=%s date=%s", confirmed.Status, db.FormatDate(confirmed.ConfirmedDate))
	}
	if got := f.countLogs(t, wish.ID, db.NotifyDateConfirmed); got != 1 {
		t.Fatalf("expected exactly one date_confirmed log, got %d", got)
	}
	if f.dispatcher.count() != 2 || !strings.Contains(f.dispatcher.last().Text, "2025年3月1日") {
		t.Fatalf("expected date confirmed push, got %+v", f.dispatcher.pushes)
	}

	if _, err := f.wishes.ConfirmDate(ctx, wish.ID, aki.ID, mustDate(t, "2025-03-01")); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on second confirm, got %v", err)
	}
	if f.dispatcher.count() != 2 {
		t.Fatalf("expected no further pushes, got %d", f.dispatcher.count())
	}
	if _, ok := PhaseOf(*confirmed).(ConfirmedPhase); !ok {
		t.Fatalf("expected confirmed phase, got %T", PhaseOf(*confirmed))
	}
	assertWishInvariants(t, f.db)
}

func TestConfirmDateRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group := f.group(t, "C1")
	aki := f.member(t, group, "U-aki")
	ben := f.member(t, group, "U-ben")

	open := f.wish(t, group, aki, "Bowling", nil)
	if _, err := f.wishes.ConfirmDate(ctx, open.ID, aki.ID, mustDate(t, "2025-03-01")); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for open wish, got %v", err)
	}

	if _, err := f.wishes.CreateSchedulePoll(ctx, open.ID, []time.Time{mustDate(t, "2025-03-01")}, nil); err != nil {
		t.Fatalf("CreateSchedulePoll returned error: %v", err)
	}
	if _, err := f.wishes.ConfirmDate(ctx, open.ID, ben.ID, mustDate(t, "2025-03-01")); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}
	if _, err := f.wishes.ConfirmDate(ctx, open.ID, aki.ID, mustDate(t, "2025-03-09")); !errors.Is(err, ErrNotACandidate) {
		t.Fatalf("expected ErrNotACandidate, got %v", err)
	}

	start := mustDate(t, "2025-05-05")
	dated := f.wish(t, group, aki, "Festival", &start)
	if _, err := f.wishes.StartAttendanceConfirmation(ctx, dated.ID, nil); err != nil {
		t.Fatalf("StartAttendanceConfirmation returned error: %v", err)
	}
	confirmed, err := f.wishes.ConfirmDate(ctx, dated.ID, aki.ID, mustDate(t, "2025-05-06"))
	if err != nil {
		t.Fatalf("ConfirmDate from attendance returned error: %v", err)
	}
	if db.FormatDate(confirmed.ConfirmedDate) != "2025-05-06" {
		t.Fatalf("unexpected confirmed date %s", db.FormatDate(confirmed.ConfirmedDate))
	}
	assertWishInvariants(t, f.db)
}

func TestStartAttendanceConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group := f.group(t, "C1")
	aki := f.member(t, group, "U-aki")

	undated := f.wish(t, group, aki, "Somewhere", nil)
	if _, err := f.wishes.StartAttendanceConfirmation(ctx, undated.ID, nil); !errors.Is(err, ErrDateRequired) {
		t.Fatalf("expected ErrDateRequired, got %v", err)
	}

	start := mustDate(t, "2025-03-10")
	deadline := f.now.Add(36 * time.Hour)
	wish := f.wish(t, group, aki, "Hanami", &start)
	started, err := f.wishes.StartAttendanceConfirmation(ctx, wish.ID, &deadline)
	if err != nil {
		t.Fatalf("StartAttendanceConfirmation returned error: %v", err)
	}
	if !started.VotingStarted || started.VoteDeadline == nil || !started.VoteDeadline.Equal(deadline) {
		t.Fatalf("expected voting started with deadline, got %+v", started)
	}
	if phase, ok := PhaseOf(*started).(AttendancePhase); !ok || !db.SameDate(phase.Date, start) {
		t.Fatalf("expected attendance phase on start date, got %#v", PhaseOf(*started))
	}
	if got := f.countLogs(t, wish.ID, db.NotifyConfirmStart); got != 1 {
		t.Fatalf("expected one confirm_start log, got %d", got)
	}
	if !strings.Contains(f.dispatcher.last().Text, "参加確認") {
		t.Fatalf("expected confirm start text, got %q", f.dispatcher.last().Text)
	}

	if _, err := f.wishes.StartAttendanceConfirmation(ctx, wish.ID, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on second start, got %v", err)
	}
	if _, err := f.wishes.CreateSchedulePoll(ctx, wish.ID, []time.Time{start}, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for poll on dated wish, got %v", err)
	}
	assertWishInvariants(t, f.db)
}

func TestCreateSchedulePollReplacesCandidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group := f.group(t, "C1")
	aki := f.member(t, group, "U-aki")
	wish := f.wish(t, group, aki, "Onsen", nil)

	if _, err := f.wishes.CreateSchedulePoll(ctx, wish.ID, nil, nil); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}

	first, err := f.wishes.CreateSchedulePoll(ctx, wish.ID, []time.Time{mustDate(t, "2025-03-01"), mustDate(t, "2025-03-01")}, nil)
	if err != nil {
		t.Fatalf("CreateSchedulePoll returned error: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected duplicate dates collapsed, got %d", len(first))
	}
	if err := f.schedule.CastVote(first[0].ID, aki.ID, db.AvailabilityOK); err != nil {
		t.Fatalf("CastVote returned error: %v", err)
	}

	deadline := f.now.Add(72 * time.Hour)
	second, err := f.wishes.CreateSchedulePoll(ctx, wish.ID, []time.Time{mustDate(t, "2025-03-08"), mustDate(t, "2025-03-09")}, &deadline)
	if err != nil {
		t.Fatalf("CreateSchedulePoll returned error: %v", err)
	}

	candidates, err := f.schedule.Candidates(wish.ID)
	if err != nil {
		t.Fatalf("Candidates returned error: %v", err)
	}
	if len(candidates) != 2 || candidates[0].ID != second[0].ID {
		t.Fatalf("expected candidate set replaced, got %+v", candidates)
	}
	var votes int64
	f.db.Model(&db.ScheduleVote{}).Count(&votes)
	if votes != 0 {
		t.Fatalf("expected old votes removed, got %d", votes)
	}

	reloaded, err := f.wishes.Get(wish.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if reloaded.Status != db.WishStatusVoting || reloaded.VoteDeadline == nil || !reloaded.VoteDeadline.Equal(deadline) {
		t.Fatalf("unexpected wish after poll: %+v", reloaded)
	}
	if got := f.countLogs(t, wish.ID, db.NotifyScheduleStart); got != 1 {
		t.Fatalf("expected schedule_start to fire once by default, got %d", got)
	}
}

func TestCreateSchedulePollRenotifiesOnNewCandidateSet(t *testing.T) {
	f := newFixture(t)
	f.wishes.SetRenotifyOnPollRecreate(true)
	ctx := context.Background()
	group := f.group(t, "C1")
	aki := f.member(t, group, "U-aki")
	wish := f.wish(t, group, aki, "Zoo", nil)

	dates := []time.Time{mustDate(t, "2025-03-01"), mustDate(t, "2025-03-02")}
	for i := 0; i < 2; i++ {
		if _, err := f.wishes.CreateSchedulePoll(ctx, wish.ID, dates, nil); err != nil {
			t.Fatalf("CreateSchedulePoll returned error: %v", err)
		}
	}
	if got := f.countLogs(t, wish.ID, db.NotifyScheduleStart); got != 1 {
		t.Fatalf("expected identical candidate set not to renotify, got %d", got)
	}

	reversed := []time.Time{dates[1], dates[0], mustDate(t, "2025-03-03")}
	if _, err := f.wishes.CreateSchedulePoll(ctx, wish.ID, reversed, nil); err != nil {
		t.Fatalf("CreateSchedulePoll returned error: %v", err)
	}
	if got := f.countLogs(t, wish.ID, db.NotifyScheduleStart); got != 2 {
		t.Fatalf("expected new candidate set to renotify, got %d", got)
	}
}

func TestLifecycleRespectsNotificationSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group := f.group(t, "C1")
	aki := f.member(t, group, "U-aki")

	off := false
	if _, err := f.settings.Update(group.ID, GroupSettingPatch{NotifyConfirmed: &off}); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	start := mustDate(t, "2025-03-10")
	wish := f.wish(t, group, aki, "Concert", &start)
	if _, err := f.wishes.StartAttendanceConfirmation(ctx, wish.ID, nil); err != nil {
		t.Fatalf("StartAttendanceConfirmation returned error: %v", err)
	}
	if _, err := f.wishes.ConfirmDate(ctx, wish.ID, aki.ID, start); err != nil {
		t.Fatalf("ConfirmDate returned error: %v", err)
	}

	if f.dispatcher.count() != 1 {
		t.Fatalf("expected only the confirm_start push, got %d", f.dispatcher.count())
	}
	if got := f.countLogs(t, wish.ID, db.NotifyDateConfirmed); got != 0 {
		t.Fatalf("expected no date_confirmed log when disabled, got %d", got)
	}
}

func TestLifecycleSurvivesDispatchFailure(t *testing.T) {
	f := newFixture(t)
	group := f.group(t, "C-down")
	aki := f.member(t, group, "U-aki")
	f.dispatcher.failFor["C-down"] = errors.New("line unavailable")

	wish := f.wish(t, group, aki, "Aquarium", nil)
	if _, err := f.wishes.CreateSchedulePoll(context.Background(), wish.ID, []time.Time{mustDate(t, "2025-03-01")}, nil); err != nil {
		t.Fatalf("expected poll to succeed despite dispatch failure, got %v", err)
	}
	if got := f.countLogs(t, wish.ID, db.NotifyScheduleStart); got != 0 {
		t.Fatalf("expected no log for failed push, got %d", got)
	}
}

func TestWishListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group := f.group(t, "C1")
	aki := f.member(t, group, "U-aki")
	ben := f.member(t, group, "U-ben")
	today := mustDate(t, "2025-03-01")

	past := mustDate(t, "2025-02-01")
	soon := mustDate(t, "2025-03-05")
	later := mustDate(t, "2025-03-20")

	pastWish := f.wish(t, group, aki, "Past", &past)
	soonWish := f.wish(t, group, aki, "Soon", &soon)
	laterWish := f.wish(t, group, aki, "Later", &later)
	f.wish(t, group, aki, "Idle", &soon)
	poll := f.wish(t, group, aki, "Poll", nil)

	for _, w := range []*db.Wish{pastWish, soonWish, laterWish} {
		if _, err := f.wishes.StartAttendanceConfirmation(ctx, w.ID, nil); err != nil {
			t.Fatalf("StartAttendanceConfirmation returned error: %v", err)
		}
	}
	if _, err := f.wishes.ConfirmDate(ctx, laterWish.ID, aki.ID, later); err != nil {
		t.Fatalf("ConfirmDate returned error: %v", err)
	}
	candidates, err := f.wishes.CreateSchedulePoll(ctx, poll.ID, []time.Time{soon}, nil)
	if err != nil {
		t.Fatalf("CreateSchedulePoll returned error: %v", err)
	}

	upcoming, err := f.wishes.Upcoming(group.ID, today, 0)
	if err != nil {
		t.Fatalf("Upcoming returned error: %v", err)
	}
	if len(upcoming) != 2 || upcoming[0].ID != soonWish.ID || upcoming[1].ID != laterWish.ID {
		t.Fatalf("unexpected upcoming list: %+v", upcoming)
	}

	calendar, err := f.wishes.ListCalendar(group.ID, mustDate(t, "2025-03-01"), mustDate(t, "2025-03-31"))
	if err != nil {
		t.Fatalf("ListCalendar returned error: %v", err)
	}
	if len(calendar) != 3 {
		t.Fatalf("expected soon, idle and later on calendar, got %d", len(calendar))
	}
	if calendar[2].ID != laterWish.ID {
		t.Fatalf("expected confirmed wish last, got %s", calendar[2].Title)
	}

	active, err := f.wishes.ListActive(group.ID)
	if err != nil {
		t.Fatalf("ListActive returned error: %v", err)
	}
	if len(active) != 4 {
		t.Fatalf("expected 4 active wishes, got %d", len(active))
	}
	for _, w := range active {
		if w.ID == laterWish.ID {
			t.Fatal("confirmed wish should not be active")
		}
	}

	pending, err := f.wishes.PendingActions(group.ID, ben.ID)
	if err != nil {
		t.Fatalf("PendingActions returned error: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected past, soon and poll pending for ben, got %d", len(pending))
	}

	if err := f.responses.SetResponse(soonWish.ID, ben.ID, db.ResponseOK); err != nil {
		t.Fatalf("SetResponse returned error: %v", err)
	}
	if err := f.schedule.CastVote(candidates[0].ID, ben.ID, db.AvailabilityNG); err != nil {
		t.Fatalf("CastVote returned error: %v", err)
	}
	pending, err = f.wishes.PendingActions(group.ID, ben.ID)
	if err != nil {
		t.Fatalf("PendingActions returned error: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != pastWish.ID {
		t.Fatalf("expected only past wish pending, got %+v", pending)
	}
}
