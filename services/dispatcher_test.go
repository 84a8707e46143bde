package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NAHIAN-19/project-planner/models"
	"github.com/NAHIAN-19/project-planner/queue"
	"github.com/NAHIAN-19/project-planner/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails the first failures writes, or every write when failures is negative.
type flakyStore struct {
	NotificationStore
	failures int32
	calls    atomic.Int32
}

func (s *flakyStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	call := s.calls.Add(1)
	if s.failures < 0 || call <= s.failures {
		return errors.New("cassandra unavailable")
	}
	return s.NotificationStore.CreateNotification(ctx, n)
}

type fakePusher struct {
	mu     sync.Mutex
	pushed map[string]int
}

func (p *fakePusher) Push(userID string, _ any) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pushed == nil {
		p.pushed = map[string]int{}
	}
	p.pushed[userID]++
	return 1, nil
}

func (p *fakePusher) count(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pushed[userID]
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to)
	return m.err
}

func (m *fakeMailer) recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

func newTestDispatcher(t *testing.T, store NotificationStore, users UserStore, pusher Pusher, mailer Mailer) *Dispatcher {
	t.Helper()
	cfg := DispatcherConfig{
		Workers:        2,
		Queue:          queue.Config{MaxRetries: 2, RetryDelay: 5 * time.Millisecond, DeadLetter: true, QueueBuffer: 16},
		BreakerTimeout: 10 * time.Millisecond,
	}
	d := NewDispatcher(store, users, pusher, mailer, cfg)
	d.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		d.Stop(ctx)
	})
	return d
}

func TestDispatcherDeliversToEveryRecipient(t *testing.T) {
	e := newEnv(t)
	repo := repositories.NewSQLiteNotificationRepo(e.store)
	alice := e.user(t, "alice")
	bob := e.user(t, "bob")
	pusher := &fakePusher{}
	mailer := &fakeMailer{}
	d := newTestDispatcher(t, repo, e.store, pusher, mailer)

	d.Notify(context.Background(), models.Event{
		Recipients: []string{alice, bob, alice, ""},
		Type:       models.NotificationTask,
		Title:      "New task assignment",
	})

	require.Eventually(t, func() bool {
		return pusher.count(alice) == 1 && pusher.count(bob) == 1 && len(mailer.recipients()) == 2
	}, time.Second, 5*time.Millisecond)

	list, err := repo.ListNotifications(context.Background(), alice, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "New task assignment", list[0].Title)
	assert.ElementsMatch(t, []string{"alice@example.com", "bob@example.com"}, mailer.recipients())
}

func TestDispatcherRespectsPreferences(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	repo := repositories.NewSQLiteNotificationRepo(e.store)
	alice := e.user(t, "alice")
	require.NoError(t, repo.SetPreferences(ctx, alice, models.NotificationPreferences{models.NotificationComment: false}))
	pusher := &fakePusher{}
	d := newTestDispatcher(t, repo, e.store, pusher, nil)

	d.Notify(ctx, models.Event{Recipients: []string{alice}, Type: models.NotificationComment, Title: "muted"})
	d.Notify(ctx, models.Event{Recipients: []string{alice}, Type: models.NotificationApproval, Title: "loud"})

	require.Eventually(t, func() bool { return pusher.count(alice) == 1 }, time.Second, 5*time.Millisecond)
	list, err := repo.ListNotifications(ctx, alice, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "loud", list[0].Title)
}

func TestDispatcherRetriesFailedWrites(t *testing.T) {
	e := newEnv(t)
	repo := repositories.NewSQLiteNotificationRepo(e.store)
	store := &flakyStore{NotificationStore: repo, failures: 2}
	alice := e.user(t, "alice")
	pusher := &fakePusher{}
	d := newTestDispatcher(t, store, e.store, pusher, nil)

	d.Notify(context.Background(), models.Event{Recipients: []string{alice}, Type: models.NotificationTask, Title: "eventually"})

	require.Eventually(t, func() bool { return pusher.count(alice) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), store.calls.Load())
	assert.Empty(t, d.DeadLetters())

	list, err := repo.ListNotifications(context.Background(), alice, false)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDispatcherDeadLettersAfterRetries(t *testing.T) {
	e := newEnv(t)
	repo := repositories.NewSQLiteNotificationRepo(e.store)
	store := &flakyStore{NotificationStore: repo, failures: -1}
	alice := e.user(t, "alice")
	pusher := &fakePusher{}
	d := newTestDispatcher(t, store, e.store, pusher, nil)

	d.Notify(context.Background(), models.Event{Recipients: []string{alice}, Type: models.NotificationTask, Title: "lost"})

	require.Eventually(t, func() bool { return len(d.DeadLetters()) == 1 }, time.Second, 5*time.Millisecond)
	dead := d.DeadLetters()[0]
	assert.Equal(t, 3, dead.Attempts)
	assert.Equal(t, alice, dead.Payload.UserID)
	assert.Zero(t, pusher.count(alice))
}

func TestDispatcherEmailFailureDoesNotRetry(t *testing.T) {
	e := newEnv(t)
	repo := repositories.NewSQLiteNotificationRepo(e.store)
	alice := e.user(t, "alice")
	mailer := &fakeMailer{err: errors.New("sendgrid down")}
	d := newTestDispatcher(t, repo, e.store, &fakePusher{}, mailer)

	d.Notify(context.Background(), models.Event{Recipients: []string{alice}, Type: models.NotificationTask, Title: "hi"})

	require.Eventually(t, func() bool { return len(mailer.recipients()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, mailer.recipients(), 1)
	assert.Empty(t, d.DeadLetters())
}
