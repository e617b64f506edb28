// Package dispatch is the notification dispatch engine: it turns one
// logical notification into a message, fans it out across the enabled
// channels, and folds the partial outcomes into one durable status.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rescuemesh/notification-service/internal/channel"
	"github.com/rescuemesh/notification-service/internal/domain/notification"
)

// Request carries one dispatch. ID is normally empty and minted here; a
// caller replaying a queue message may carry a stable id so the store's
// idempotency guards apply.
type Request struct {
	ID             string
	RecipientID    string
	RecipientPhone string
	Channels       []notification.Channel
	Type           notification.Type
	Priority       notification.Priority
	Payload        map[string]any
}

// Result mirrors the persisted final state.
type Result struct {
	NotificationID string                                              `json:"notificationId"`
	Status         notification.Status                                 `json:"status"`
	ChannelStatus  map[notification.Channel]notification.ChannelResult `json:"channels"`
	SentAt         *time.Time                                          `json:"sentAt,omitempty"`
	FailedAt       *time.Time                                          `json:"failedAt,omitempty"`
}

// BatchItem is one slot of a batch dispatch: a result or an isolated error.
type BatchItem struct {
	Result *Result `json:"result,omitempty"`
	Err    error   `json:"-"`
}

type Dispatcher struct {
	store    notification.Store
	senders  map[notification.Channel]notification.Sender
	resolver notification.PhoneResolver
	clock    notification.Clock
	log      *zap.Logger
}

func New(
	store notification.Store,
	senders map[notification.Channel]notification.Sender,
	resolver notification.PhoneResolver,
	clock notification.Clock,
	log *zap.Logger,
) *Dispatcher {
	if log == nil {
		log = zap.L()
	}
	return &Dispatcher{
		store:    store,
		senders:  senders,
		resolver: resolver,
		clock:    clock,
		log:      log.With(zap.String("component", "dispatch")),
	}
}

// Dispatch runs the full pipeline: mint id, build message, resolve target,
// persist pending, fan out, aggregate, finalize. Degraded data never aborts
// a dispatch; only a store failure is returned as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	id := req.ID
	if id == "" {
		id = "notif-" + uuid.NewString()
	}
	channels := req.Channels
	if len(channels) == 0 {
		channels = notification.DefaultChannels()
	}
	priority := req.Priority
	if priority == "" {
		priority = notification.PriorityMedium
	}

	message := BuildMessage(req.Type, req.Payload)
	phone := d.resolveTarget(ctx, &req, channels)

	now := d.clock.Now()
	n := &notification.Notification{
		ID:             id,
		RecipientID:    req.RecipientID,
		RecipientPhone: phone,
		Type:           req.Type,
		Priority:       priority,
		Channels:       channels,
		Message:        message,
		Payload:        req.Payload,
		Status:         notification.StatusPending,
		CreatedAt:      now,
	}
	if err := d.store.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	target := notification.Target{RecipientID: req.RecipientID, Phone: phone}
	channelStatus := d.fanOut(ctx, id, channels, target, message, req.Payload)

	status := notification.StatusFailed
	for _, cr := range channelStatus {
		if cr.Outcome == notification.OutcomeSent {
			status = notification.StatusSent
			break
		}
	}

	finalAt := d.clock.Now()
	applied, err := d.store.Finalize(ctx, id, notification.StatusPatch{
		Status:        status,
		ChannelStatus: channelStatus,
		At:            finalAt,
	})
	if err != nil {
		return nil, fmt.Errorf("finalize notification: %w", err)
	}
	if !applied {
		// already terminal (duplicate queue delivery): report the stored
		// outcome, not this attempt's
		stored, err := d.store.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read back notification: %w", err)
		}
		return resultFromStored(stored), nil
	}

	res := &Result{NotificationID: id, Status: status, ChannelStatus: channelStatus}
	if status == notification.StatusSent {
		res.SentAt = &finalAt
	} else {
		res.FailedAt = &finalAt
	}
	return res, nil
}

// DispatchBatch processes requests in order and returns exactly one item
// per input; a fatal failure on one item never drops the rest.
func (d *Dispatcher) DispatchBatch(ctx context.Context, reqs []Request) []BatchItem {
	out := make([]BatchItem, len(reqs))
	for i, req := range reqs {
		res, err := d.Dispatch(ctx, req)
		if err != nil {
			d.log.Error("batch item dispatch failed",
				zap.Int("index", i),
				zap.String("recipient_id", req.RecipientID),
				zap.Error(err),
			)
			out[i] = BatchItem{Err: err}
			continue
		}
		out[i] = BatchItem{Result: res}
	}
	return out
}

// resolveTarget fills in a missing phone when sms delivery needs one.
// Resolution is bounded by the resolver's own timeout and degrades to an
// empty phone.
func (d *Dispatcher) resolveTarget(ctx context.Context, req *Request, channels []notification.Channel) string {
	if req.RecipientPhone != "" {
		return req.RecipientPhone
	}
	if d.resolver == nil || !hasChannel(channels, notification.ChannelSMS) {
		return ""
	}
	phone, err := d.resolver.ResolvePhone(ctx, req.RecipientID)
	if err != nil {
		d.log.Warn("could not resolve recipient phone",
			zap.String("recipient_id", req.RecipientID),
			zap.Error(err),
		)
		return ""
	}
	return phone
}

// fanOut starts every eligible channel send concurrently and waits for all
// of them to settle. A channel's failure never cancels another channel.
func (d *Dispatcher) fanOut(
	ctx context.Context,
	id string,
	channels []notification.Channel,
	target notification.Target,
	message string,
	payload map[string]any,
) map[notification.Channel]notification.ChannelResult {
	type attempt struct {
		name   notification.Channel
		sender notification.Sender
	}

	attempts := make([]attempt, 0, len(channels))
	for _, ch := range channels {
		s, ok := d.senders[ch]
		if !ok {
			// channel disabled by configuration: not attempted, not recorded
			continue
		}
		if ch == notification.ChannelSMS && target.Phone == "" {
			// no address to deliver to; skipped, equivalent to not attempted
			d.log.Debug("sms skipped, no phone", zap.String("notification_id", id))
			continue
		}
		attempts = append(attempts, attempt{name: ch, sender: s})
	}

	results := make([]notification.ChannelResult, len(attempts))
	var wg sync.WaitGroup
	for i, a := range attempts {
		wg.Add(1)
		go func(i int, a attempt) {
			defer wg.Done()
			ref, err := a.sender.Send(ctx, target, message, payload)
			at := d.clock.Now()
			if err != nil {
				d.log.Error("channel send failed",
					zap.String("notification_id", id),
					zap.String("channel", string(a.name)),
					zap.Error(err),
				)
				results[i] = notification.ChannelResult{
					Outcome:  notification.OutcomeFailed,
					Error:    err.Error(),
					FailKind: channel.Classify(err),
					At:       at,
				}
				return
			}
			results[i] = notification.ChannelResult{
				Outcome: notification.OutcomeSent,
				Ref:     ref,
				At:      at,
			}
		}(i, a)
	}
	wg.Wait()

	channelStatus := make(map[notification.Channel]notification.ChannelResult, len(attempts))
	for i, a := range attempts {
		channelStatus[a.name] = results[i]
	}
	return channelStatus
}

func resultFromStored(n *notification.Notification) *Result {
	return &Result{
		NotificationID: n.ID,
		Status:         n.Status,
		ChannelStatus:  n.ChannelStatus,
		SentAt:         n.SentAt,
		FailedAt:       n.FailedAt,
	}
}

func hasChannel(channels []notification.Channel, want notification.Channel) bool {
	for _, ch := range channels {
		if ch == want {
			return true
		}
	}
	return false
}
