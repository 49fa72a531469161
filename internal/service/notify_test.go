package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"tubesync/internal/domain"
	"tubesync/internal/service/mocks"
	"tubesync/internal/storage/kv"
	"tubesync/internal/storage/memory"
)

const (
	testIdentity = "user@example.com"
	testToken    = "opaque-token"
)

type SyncEngineTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	source *mocks.MockSource
	store  *memory.Store

	engine *SyncEngine
	logger *slog.Logger
}

func (s *SyncEngineTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.source = mocks.NewMockSource(s.ctrl)
	s.store = memory.New()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.engine = NewSyncEngine(s.source, s.store, nil, s.logger)
}

func (s *SyncEngineTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestSyncEngineTestSuite(t *testing.T) {
	suite.Run(t, new(SyncEngineTestSuite))
}

func (s *SyncEngineTestSuite) setWatermark(at time.Time) {
	err := s.store.Set(context.Background(), kv.LastCheckedKey(testIdentity), at.UTC().Format(time.RFC3339Nano))
	s.Require().NoError(err)
}

func (s *SyncEngineTestSuite) storedWatermark() time.Time {
	value, ok, err := s.store.Get(context.Background(), kv.LastCheckedKey(testIdentity))
	s.Require().NoError(err)
	s.Require().True(ok)
	at, err := time.Parse(time.RFC3339Nano, value)
	s.Require().NoError(err)
	return at
}

func feed(id, name string) domain.SubscriptionFeed {
	return domain.SubscriptionFeed{FeedID: id, DisplayName: name}
}

func video(id, channelID, title string, publishedAt time.Time) *domain.Video {
	return &domain.Video{
		ID:          id,
		ChannelID:   channelID,
		Title:       title,
		PublishedAt: publishedAt,
	}
}

func (s *SyncEngineTestSuite) TestStartSync_OnlyItemsPastWatermark() {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	watermark := base.Add(100 * time.Second)
	s.setWatermark(watermark)

	feeds := []domain.SubscriptionFeed{feed("ch1", "Channel One"), feed("ch2", "Channel Two")}

	s.source.EXPECT().LatestVideo(gomock.Any(), "ch1", testToken).
		Return(video("v1", "ch1", "Old", base.Add(50*time.Second)), nil)
	s.source.EXPECT().LatestVideo(gomock.Any(), "ch2", testToken).
		Return(video("v2", "ch2", "Fresh", base.Add(150*time.Second)), nil)

	report, err := s.engine.StartSync(ctx, feeds, testToken, testIdentity)

	s.NoError(err)
	s.Equal(1, report.New)
	s.Empty(report.Failed)
	s.Require().Len(report.Notifications, 1)
	s.Equal("v2", report.Notifications[0].ID)
	s.Equal("New video from Channel Two: Fresh", report.Notifications[0].Text)
	s.False(report.Notifications[0].IsRead)
}

func (s *SyncEngineTestSuite) TestStartSync_WatermarkIsPassStartAndIdempotent() {
	ctx := context.Background()
	passStart := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.engine.WithClock(func() time.Time { return passStart })

	feeds := []domain.SubscriptionFeed{feed("ch1", "Channel One")}
	published := passStart.Add(-time.Hour)

	s.source.EXPECT().LatestVideo(gomock.Any(), "ch1", testToken).
		Return(video("v1", "ch1", "Upload", published), nil).Times(2)

	report, err := s.engine.StartSync(ctx, feeds, testToken, testIdentity)
	s.NoError(err)
	s.Equal(1, report.New)
	s.True(s.storedWatermark().Equal(passStart))

	// Second pass with no new upstream data yields nothing new.
	s.engine.WithClock(func() time.Time { return passStart.Add(time.Minute) })
	report, err = s.engine.StartSync(ctx, feeds, testToken, testIdentity)
	s.NoError(err)
	s.Equal(0, report.New)
	s.Len(report.Notifications, 1)
}

func (s *SyncEngineTestSuite) TestStartSync_PartialFailureIsolation() {
	ctx := context.Background()
	now := time.Now()
	feeds := make([]domain.SubscriptionFeed, 5)
	for i, id := range []string{"ch1", "ch2", "ch3", "ch4", "ch5"} {
		feeds[i] = feed(id, id)
	}

	for _, id := range []string{"ch1", "ch2", "ch4", "ch5"} {
		s.source.EXPECT().LatestVideo(gomock.Any(), id, testToken).
			Return(video("v-"+id, id, "Upload", now), nil)
	}
	s.source.EXPECT().LatestVideo(gomock.Any(), "ch3", testToken).
		Return(nil, errors.New("boom"))

	report, err := s.engine.StartSync(ctx, feeds, testToken, testIdentity)

	s.NoError(err)
	s.Equal(4, report.New)
	s.Require().Len(report.Failed, 1)
	s.Equal("ch3", report.Failed[0].FeedID)

	// The pass reached Persisted: merge order follows the feed list.
	stored, err := s.engine.Notifications(ctx, testIdentity)
	s.NoError(err)
	s.Require().Len(stored, 4)
	s.Equal("v-ch1", stored[0].ID)
	s.Equal("v-ch5", stored[3].ID)
}

func (s *SyncEngineTestSuite) TestStartSync_PrependsToExisting() {
	ctx := context.Background()
	now := time.Now()
	s.setWatermark(now.Add(-time.Hour))

	older := []domain.Notification{{ID: "old1", Text: "old", IsRead: true, PublishedAt: now.Add(-2 * time.Hour)}}
	s.Require().NoError(s.engine.saveNotifications(ctx, testIdentity, older))

	s.source.EXPECT().LatestVideo(gomock.Any(), "ch1", testToken).
		Return(video("v1", "ch1", "Upload", now), nil)

	report, err := s.engine.StartSync(ctx, []domain.SubscriptionFeed{feed("ch1", "One")}, testToken, testIdentity)

	s.NoError(err)
	s.Require().Len(report.Notifications, 2)
	s.Equal("v1", report.Notifications[0].ID)
	s.Equal("old1", report.Notifications[1].ID)
}

func (s *SyncEngineTestSuite) TestStartSync_NoDuplicateOnRetriedWindow() {
	// A watermark persist failure leaves the old watermark in place; the
	// retried pass sees the same upstream item but must not re-deliver it.
	ctx := context.Background()
	now := time.Now()
	s.setWatermark(now.Add(-time.Hour))

	existing := []domain.Notification{{ID: "v1", Text: "already delivered", PublishedAt: now}}
	s.Require().NoError(s.engine.saveNotifications(ctx, testIdentity, existing))

	s.source.EXPECT().LatestVideo(gomock.Any(), "ch1", testToken).
		Return(video("v1", "ch1", "Upload", now), nil)

	report, err := s.engine.StartSync(ctx, []domain.SubscriptionFeed{feed("ch1", "One")}, testToken, testIdentity)

	s.NoError(err)
	s.Equal(0, report.New)
	s.Len(report.Notifications, 1)
}

func (s *SyncEngineTestSuite) TestStartSync_CancelledPassLeavesStateUntouched() {
	ctx, cancel := context.WithCancel(context.Background())
	watermark := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.setWatermark(watermark)

	feeds := []domain.SubscriptionFeed{feed("ch1", "One"), feed("ch2", "Two")}

	// ch1 cancels the pass mid-fan-out; ch2 still resolves with a fresh
	// item whose result must be discarded, not applied.
	s.source.EXPECT().LatestVideo(gomock.Any(), "ch1", testToken).
		DoAndReturn(func(ctx context.Context, _, _ string) (*domain.Video, error) {
			cancel()
			return nil, ctx.Err()
		})
	s.source.EXPECT().LatestVideo(gomock.Any(), "ch2", testToken).
		Return(video("v2", "ch2", "Fresh", time.Now()), nil)

	report, err := s.engine.StartSync(ctx, feeds, testToken, testIdentity)

	s.ErrorIs(err, context.Canceled)
	s.Nil(report)

	// The watermark did not advance and nothing was persisted: the next
	// pass retries the same window.
	s.True(s.storedWatermark().Equal(watermark))
	stored, err := s.engine.Notifications(context.Background(), testIdentity)
	s.NoError(err)
	s.Empty(stored)
}

func (s *SyncEngineTestSuite) TestStartSync_FeedCancellationIsNotAFailure() {
	ctx := context.Background()
	now := time.Now()

	s.source.EXPECT().LatestVideo(gomock.Any(), "ch1", testToken).
		Return(nil, context.Canceled)
	s.source.EXPECT().LatestVideo(gomock.Any(), "ch2", testToken).
		Return(video("v2", "ch2", "Upload", now), nil)

	feeds := []domain.SubscriptionFeed{feed("ch1", "One"), feed("ch2", "Two")}
	report, err := s.engine.StartSync(ctx, feeds, testToken, testIdentity)

	s.NoError(err)
	s.Empty(report.Failed)
	s.Equal(1, report.New)
}

func (s *SyncEngineTestSuite) TestStartSync_SkipsEmptyFeeds() {
	ctx := context.Background()

	s.source.EXPECT().LatestVideo(gomock.Any(), "ch1", testToken).Return(nil, nil)

	report, err := s.engine.StartSync(ctx, []domain.SubscriptionFeed{feed("ch1", "One")}, testToken, testIdentity)

	s.NoError(err)
	s.Equal(0, report.New)
	s.Empty(report.Failed)
}

func (s *SyncEngineTestSuite) TestStartSync_StoreWriteFailureLeavesWatermark() {
	ctx := context.Background()
	store := mocks.NewMockStore(s.ctrl)
	engine := NewSyncEngine(s.source, store, nil, s.logger)

	store.EXPECT().Get(gomock.Any(), kv.LastCheckedKey(testIdentity)).Return("", false, nil)
	store.EXPECT().Get(gomock.Any(), kv.NotificationsKey(testIdentity)).Return("", false, nil)

	s.source.EXPECT().LatestVideo(gomock.Any(), "ch1", testToken).
		Return(video("v1", "ch1", "Upload", time.Now()), nil)

	store.EXPECT().Set(gomock.Any(), kv.NotificationsKey(testIdentity), gomock.Any()).
		Return(errors.New("disk full"))
	// No watermark write: the pass aborts before advancing it.

	_, err := engine.StartSync(ctx, []domain.SubscriptionFeed{feed("ch1", "One")}, testToken, testIdentity)

	var storeErr *domain.StoreError
	s.ErrorAs(err, &storeErr)
}

func (s *SyncEngineTestSuite) TestStartSync_StoreReadFailureIsFatal() {
	ctx := context.Background()
	store := mocks.NewMockStore(s.ctrl)
	engine := NewSyncEngine(s.source, store, nil, s.logger)

	store.EXPECT().Get(gomock.Any(), kv.LastCheckedKey(testIdentity)).
		Return("", false, errors.New("connection reset"))

	_, err := engine.StartSync(ctx, []domain.SubscriptionFeed{feed("ch1", "One")}, testToken, testIdentity)

	var storeErr *domain.StoreError
	s.ErrorAs(err, &storeErr)
}

func (s *SyncEngineTestSuite) TestStartSync_PublishesNewRecords() {
	ctx := context.Background()
	publisher := mocks.NewMockPublisher(s.ctrl)
	engine := NewSyncEngine(s.source, s.store, publisher, s.logger)

	now := time.Now()
	s.source.EXPECT().LatestVideo(gomock.Any(), "ch1", testToken).
		Return(video("v1", "ch1", "Upload", now), nil)
	publisher.EXPECT().Publish(gomock.Any(), testIdentity, gomock.Any()).Return(nil)

	report, err := engine.StartSync(ctx, []domain.SubscriptionFeed{feed("ch1", "One")}, testToken, testIdentity)
	s.NoError(err)
	s.Equal(1, report.New)
}

func (s *SyncEngineTestSuite) TestStartSync_PublishFailureIsDiagnostic() {
	ctx := context.Background()
	publisher := mocks.NewMockPublisher(s.ctrl)
	engine := NewSyncEngine(s.source, s.store, publisher, s.logger)

	s.source.EXPECT().LatestVideo(gomock.Any(), "ch1", testToken).
		Return(video("v1", "ch1", "Upload", time.Now()), nil)
	publisher.EXPECT().Publish(gomock.Any(), testIdentity, gomock.Any()).
		Return(errors.New("broker down"))

	report, err := engine.StartSync(ctx, []domain.SubscriptionFeed{feed("ch1", "One")}, testToken, testIdentity)
	s.NoError(err)
	s.Equal(1, report.New)
}

func (s *SyncEngineTestSuite) TestStartSync_EmitsLoadingThenLoaded() {
	ctx := context.Background()
	events := s.engine.Subscribe()

	s.source.EXPECT().LatestVideo(gomock.Any(), "ch1", testToken).
		Return(video("v1", "ch1", "Upload", time.Now()), nil)

	_, err := s.engine.StartSync(ctx, []domain.SubscriptionFeed{feed("ch1", "One")}, testToken, testIdentity)
	s.Require().NoError(err)

	first := <-events
	s.Equal(EventLoading, first.Type)
	second := <-events
	s.Equal(EventLoaded, second.Type)
	s.Len(second.Notifications, 1)
	s.Empty(second.Failures)
}

func (s *SyncEngineTestSuite) TestMarkRead() {
	ctx := context.Background()
	notifications := []domain.Notification{
		{ID: "v1", Text: "one"},
		{ID: "v2", Text: "two"},
	}
	s.Require().NoError(s.engine.saveNotifications(ctx, testIdentity, notifications))

	s.Require().NoError(s.engine.MarkRead(ctx, testIdentity, "v2"))

	stored, err := s.engine.Notifications(ctx, testIdentity)
	s.NoError(err)
	s.False(stored[0].IsRead)
	s.True(stored[1].IsRead)

	count, err := s.engine.UnreadCount(ctx, testIdentity)
	s.NoError(err)
	s.Equal(1, count)
}

func (s *SyncEngineTestSuite) TestMarkRead_UnknownIDIsNoop() {
	ctx := context.Background()
	s.Require().NoError(s.engine.saveNotifications(ctx, testIdentity, []domain.Notification{{ID: "v1"}}))
	s.NoError(s.engine.MarkRead(ctx, testIdentity, "missing"))
}

func (s *SyncEngineTestSuite) TestClearAll_KeepsWatermark() {
	ctx := context.Background()
	watermark := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.setWatermark(watermark)
	s.Require().NoError(s.engine.saveNotifications(ctx, testIdentity, []domain.Notification{{ID: "v1"}}))

	s.Require().NoError(s.engine.ClearAll(ctx, testIdentity))

	stored, err := s.engine.Notifications(ctx, testIdentity)
	s.NoError(err)
	s.Empty(stored)
	s.True(s.storedWatermark().Equal(watermark))
}
