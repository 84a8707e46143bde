package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/NAHIAN-19/project-planner/logging"
	"github.com/NAHIAN-19/project-planner/models"
	"github.com/NAHIAN-19/project-planner/queue"
	"github.com/NAHIAN-19/project-planner/repositories"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

// Pusher delivers a payload to a user's live connections and reports how many received it.
type Pusher interface {
	Push(userID string, v any) (int, error)
}

type DispatcherConfig struct {
	Workers        int
	Queue          queue.Config
	BreakerTimeout time.Duration
}

// Dispatcher fans events out to recipients and delivers them from a background queue:
// stored, pushed over websockets and, when a mailer is configured, emailed.
type Dispatcher struct {
	store  NotificationStore
	users  UserStore
	pusher Pusher
	mailer Mailer

	queue      *queue.Queue[models.Delivery]
	workers    int
	storeCB    *gobreaker.CircuitBreaker
	mailCB     *gobreaker.CircuitBreaker
	now        func() time.Time
	maxRetries int
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewDispatcher(store NotificationStore, users UserStore, pusher Pusher, mailer Mailer, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 5 * time.Second
	}
	return &Dispatcher{
		store:      store,
		users:      users,
		pusher:     pusher,
		mailer:     mailer,
		queue:      queue.New[models.Delivery](cfg.Queue),
		workers:    cfg.Workers,
		storeCB:    NewBreaker("NotificationStoreCB", cfg.BreakerTimeout),
		mailCB:     NewBreaker("EmailCB", cfg.BreakerTimeout),
		now:        time.Now,
		maxRetries: cfg.Queue.MaxRetries,
	}
}

// Notify enqueues one delivery per distinct recipient. Failures are logged, never returned.
func (d *Dispatcher) Notify(ctx context.Context, ev models.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	now := d.now().UTC()
	for _, userID := range recipients(ev.Recipients) {
		delivery := models.Delivery{
			ID:        uuid.New().String(),
			UserID:    userID,
			Type:      ev.Type,
			Title:     ev.Title,
			Body:      ev.Body,
			URL:       ev.URL,
			CreatedAt: now,
		}
		if err := d.queue.Publish(ctx, &delivery); err != nil {
			logging.Logger.Errorf("Event ID: NOTIFICATION_ENQUEUE_FAILED, Description: Failed to enqueue notification for user %s: %v", userID, err)
		}
	}
}

func (d *Dispatcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(ctx)
	}
	logging.Logger.Infof("Event ID: DISPATCHER_STARTED, Description: Notification dispatcher started with %d workers", d.workers)
}

// Stop waits for the queue to drain or ctx to end, then stops the workers.
func (d *Dispatcher) Stop(ctx context.Context) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
drain:
	for d.queue.Size() > 0 {
		select {
		case <-ctx.Done():
			break drain
		case <-ticker.C:
		}
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	d.queue.Close()
	logging.Logger.Infof("Event ID: DISPATCHER_STOPPED, Description: Notification dispatcher stopped, %d notifications dead-lettered", d.queue.DLQSize())
}

// DeadLetters returns the deliveries that exhausted their retries.
func (d *Dispatcher) DeadLetters() []queue.DeadLetter[models.Delivery] {
	return d.queue.DeadLetters()
}

func (d *Dispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	for {
		msg, err := d.queue.Consume(ctx)
		if err != nil {
			return
		}
		if err := d.deliver(ctx, msg.Payload()); err != nil {
			logging.Logger.Warnf("Event ID: NOTIFICATION_DELIVERY_FAILED, Description: Attempt %d for notification %s failed: %v", msg.Attempt(), msg.Payload().ID, err)
			msg.Nack(err)
			if msg.Attempt() > d.maxRetries {
				logging.Logger.Errorf("Event ID: NOTIFICATION_DEAD_LETTERED, Description: Notification %s for user %s gave up after %d attempts", msg.Payload().ID, msg.Payload().UserID, msg.Attempt())
			}
			continue
		}
		msg.Ack()
	}
}

// deliver returns an error only when storing failed; push and email are best effort.
func (d *Dispatcher) deliver(ctx context.Context, dl *models.Delivery) error {
	prefs, err := d.storeCB.Execute(func() (interface{}, error) {
		return d.store.GetPreferences(ctx, dl.UserID)
	})
	if err != nil {
		return fmt.Errorf("failed to load preferences: %w", err)
	}
	if !prefs.(models.NotificationPreferences).Enabled(dl.Type) {
		logging.Logger.Debugf("Event ID: NOTIFICATION_SKIPPED, Description: User %s disabled %s notifications", dl.UserID, dl.Type)
		return nil
	}

	n := dl.Notification()
	_, err = d.storeCB.Execute(func() (interface{}, error) {
		err := d.store.CreateNotification(ctx, n)
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, nil
		}
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}

	if d.pusher != nil {
		if _, err := d.pusher.Push(dl.UserID, n); err != nil {
			logging.Logger.Warnf("Event ID: NOTIFICATION_PUSH_FAILED, Description: Failed to push notification %s to user %s: %v", n.ID, dl.UserID, err)
		}
	}

	if d.mailer != nil {
		d.email(ctx, dl)
	}
	return nil
}

func (d *Dispatcher) email(ctx context.Context, dl *models.Delivery) {
	user, err := d.users.GetUser(ctx, dl.UserID)
	if err != nil || user.Email == "" {
		return
	}
	_, err = d.mailCB.Execute(func() (interface{}, error) {
		return nil, d.mailer.Send(ctx, user.Email, dl.Title, dl.Body)
	})
	if err != nil {
		logging.Logger.Errorf("Event ID: EMAIL_SEND_FAILED, Description: Failed to email notification %s to user %s: %v", dl.ID, dl.UserID, err)
	}
}
