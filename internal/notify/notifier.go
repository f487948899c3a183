package notify

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"account-service/internal/util"
)

// EmailDispatcher sends account emails.
type EmailDispatcher interface {
	SendPasswordReset(to, token string) error
}

// SMSDispatcher sends one-time codes.
type SMSDispatcher interface {
	SendOTP(ctx context.Context, phone, code string) error
}

// ErrQueueFull is returned when the delivery queue cannot accept more
// work. The authentication path treats this as a delivery failure, not
// a reason to retry the whole request.
var ErrQueueFull = errors.New("notification queue is full")

type jobKind int

const (
	jobResetEmail jobKind = iota
	jobOTPSMS
)

type job struct {
	kind  jobKind
	to    string
	value string
}

// Notifier runs message delivery on a bounded worker pool so SMTP and
// SMS gateway latency never sits on the request path.
type Notifier struct {
	email EmailDispatcher
	sms   SMSDispatcher

	jobs   chan job
	group  *errgroup.Group
	cancel context.CancelFunc
}

func NewNotifier(email EmailDispatcher, sms SMSDispatcher, workers, queueSize int) *Notifier {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	n := &Notifier{
		email:  email,
		sms:    sms,
		jobs:   make(chan job, queueSize),
		group:  g,
		cancel: cancel,
	}

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			n.worker(ctx)
			return nil
		})
	}

	return n
}

// EnqueuePasswordResetEmail queues a reset-link email.
func (n *Notifier) EnqueuePasswordResetEmail(to, token string) error {
	return n.enqueue(job{kind: jobResetEmail, to: to, value: token})
}

// EnqueueOTP queues a one-time code SMS.
func (n *Notifier) EnqueueOTP(phone, code string) error {
	return n.enqueue(job{kind: jobOTPSMS, to: phone, value: code})
}

func (n *Notifier) enqueue(j job) error {
	select {
	case n.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close drains queued deliveries and stops the workers.
func (n *Notifier) Close() {
	close(n.jobs)
	n.group.Wait()
	n.cancel()
}

func (n *Notifier) worker(ctx context.Context) {
	for j := range n.jobs {
		deliveryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		n.deliver(deliveryCtx, j)
		cancel()
	}
}

func (n *Notifier) deliver(ctx context.Context, j job) {
	var err error
	switch j.kind {
	case jobResetEmail:
		err = n.email.SendPasswordReset(j.to, j.value)
	case jobOTPSMS:
		err = n.sms.SendOTP(ctx, j.to, j.value)
	}
	if err != nil {
		util.Error("Notification delivery failed", util.ErrorField(err))
	}
}
