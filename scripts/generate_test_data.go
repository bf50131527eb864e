package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/asobot/internal/config"
	"github.com/asobot/internal/db"
	"github.com/asobot/internal/logger"
	"github.com/asobot/internal/service"
	"github.com/rs/zerolog"
)

const demoLineGroupID = "C-demo"

// logDispatcher 把推送内容写入日志，本地造数据时不调用 LINE。
type logDispatcher struct {
	logger zerolog.Logger
}

func (d logDispatcher) Push(_ context.Context, to, text string) error {
	d.logger.Info().Str("to", to).Str("text", text).Msg("push skipped")
	return nil
}

type seedSummary struct {
	GroupID string
	Users   int
	Wishes  int
	Skipped bool
}

// 测试数据生成器
func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg := config.Load(*configPath)
	root := logger.New(os.Stderr, cfg.Log.Level)

	gdb, err := db.Open(cfg.Database)
	if err != nil {
		root.Fatal().Err(err).Msg("数据库初始化失败")
	}
	defer db.Close(gdb)

	svc := service.NewServices(gdb, logDispatcher{logger: root}, service.Options{
		LIFFID:   cfg.LINE.LIFFID,
		Location: cfg.Location(),
		Logger:   root,
	})

	fmt.Println("开始生成测试数据...")
	summary, err := seedDemoData(context.Background(), svc, time.Now().UTC())
	if err != nil {
		root.Fatal().Err(err).Msg("生成测试数据失败")
	}
	if summary.Skipped {
		fmt.Println("测试群组已有愿望，跳过创建")
		return
	}

	fmt.Println("测试数据生成完成！")
	fmt.Printf("群组: %s (%s)\n", demoLineGroupID, summary.GroupID)
	fmt.Printf("成员: %d 人\n", summary.Users)
	fmt.Printf("愿望: %d 个（募集中、日程投票、参加确认、已确定）\n", summary.Wishes)
}

// seedDemoData 在演示群组里创建成员与各个阶段的愿望；群组已有愿望时不做任何修改。
func seedDemoData(ctx context.Context, svc *service.Services, now time.Time) (seedSummary, error) {
	members := []service.RegisterUserInput{
		{LineUserID: "U-demo-haru", DisplayName: "はる"},
		{LineUserID: "U-demo-natsu", DisplayName: "なつ"},
		{LineUserID: "U-demo-aki", DisplayName: "あき"},
		{LineUserID: "U-demo-fuyu", DisplayName: "ふゆ"},
	}

	userIDs := make([]string, 0, len(members))
	var groupID string
	for _, m := range members {
		m.LineGroupID = demoLineGroupID
		user, group, err := svc.Groups.RegisterUser(m)
		if err != nil {
			return seedSummary{}, fmt.Errorf("register %s: %w", m.LineUserID, err)
		}
		userIDs = append(userIDs, user.ID)
		groupID = group.ID
	}

	summary := seedSummary{GroupID: groupID, Users: len(userIDs)}
	existing, err := svc.Wishes.ListActive(groupID)
	if err != nil {
		return summary, err
	}
	if len(existing) > 0 {
		summary.Skipped = true
		return summary, nil
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	day := func(offset int) time.Time { return today.AddDate(0, 0, offset) }
	creator := userIDs[0]

	// 募集中：两人感兴趣，会进入人气排行
	onsen, err := svc.Wishes.Create(groupID, creator, service.WishInput{
		Title:       "温泉旅行",
		Description: "箱根か草津で **一泊** したい",
	})
	if err != nil {
		return summary, err
	}
	for _, id := range userIDs[1:3] {
		if err := svc.Interests.SetInterest(onsen.ID, id, true); err != nil {
			return summary, err
		}
	}

	// 日程投票：截止日在两天后，扫描时会发提醒
	bbq, err := svc.Wishes.Create(groupID, userIDs[1], service.WishInput{Title: "BBQ"})
	if err != nil {
		return summary, err
	}
	deadline := day(2).Add(23 * time.Hour)
	candidates, err := svc.Wishes.CreateSchedulePoll(ctx, bbq.ID, []time.Time{day(10), day(11), day(17)}, &deadline)
	if err != nil {
		return summary, err
	}
	votes := [][]string{
		{db.AvailabilityOK, db.AvailabilityEvening, db.AvailabilityNG},
		{db.AvailabilityOK, db.AvailabilityNG, db.AvailabilityUndecided},
	}
	for i, answers := range votes {
		inputs := make([]service.VoteInput, 0, len(answers))
		for j, availability := range answers {
			inputs = append(inputs, service.VoteInput{CandidateID: candidates[j].ID, Availability: availability})
		}
		if err := svc.Schedule.CastVotes(bbq.ID, userIDs[i], inputs); err != nil {
			return summary, err
		}
	}

	// 参加确认：已有日期，截止日是明天
	start := day(5)
	karaoke, err := svc.Wishes.Create(groupID, userIDs[2], service.WishInput{
		Title:     "カラオケ",
		StartDate: &start,
		StartTime: "19:00",
	})
	if err != nil {
		return summary, err
	}
	confirmDeadline := day(1).Add(12 * time.Hour)
	if _, err := svc.Wishes.StartAttendanceConfirmation(ctx, karaoke.ID, &confirmDeadline); err != nil {
		return summary, err
	}
	for i, answer := range []string{db.ResponseOK, db.ResponseMaybe} {
		if err := svc.Responses.SetResponse(karaoke.ID, userIDs[i], answer); err != nil {
			return summary, err
		}
	}

	// 已确定：参加确认后由创建者确定日期
	showing := day(3)
	movie, err := svc.Wishes.Create(groupID, creator, service.WishInput{Title: "映画", StartDate: &showing, IsAllDay: true})
	if err != nil {
		return summary, err
	}
	if _, err := svc.Wishes.StartAttendanceConfirmation(ctx, movie.ID, nil); err != nil {
		return summary, err
	}
	if _, err := svc.Wishes.ConfirmDate(ctx, movie.ID, creator, showing); err != nil {
		return summary, err
	}

	summary.Wishes = 4
	return summary, nil
}
