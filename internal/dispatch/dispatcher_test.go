package dispatch_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rescuemesh/notification-service/internal/dispatch"
	"github.com/rescuemesh/notification-service/internal/domain/notification"
)

// --- stubs ---

type stubStore struct {
	mu        sync.Mutex
	created   []*notification.Notification
	finalized map[string]notification.StatusPatch

	createErr   error
	finalizeErr error
	applied     bool
	stored      *notification.Notification
}

func newStubStore() *stubStore {
	return &stubStore{finalized: map[string]notification.StatusPatch{}, applied: true}
}

func (s *stubStore) Create(_ context.Context, n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, n)
	return nil
}

func (s *stubStore) Finalize(_ context.Context, id string, patch notification.StatusPatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalizeErr != nil {
		return false, s.finalizeErr
	}
	if !s.applied {
		return false, nil
	}
	s.finalized[id] = patch
	return true, nil
}

func (s *stubStore) GetByID(_ context.Context, id string) (*notification.Notification, error) {
	if s.stored == nil {
		return nil, errors.New("not found")
	}
	return s.stored, nil
}

func (s *stubStore) ListByRecipient(_ context.Context, _ string, _, _ int) ([]*notification.Notification, int, error) {
	return nil, 0, nil
}

type stubSender struct {
	name notification.Channel
	ref  string
	err  error

	mu      sync.Mutex
	targets []notification.Target
}

func (s *stubSender) Name() notification.Channel { return s.name }

func (s *stubSender) Send(_ context.Context, target notification.Target, _ string, _ map[string]any) (string, error) {
	s.mu.Lock()
	s.targets = append(s.targets, target)
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return s.ref, nil
}

type stubResolver struct {
	phone string
	err   error
	calls int
}

func (r *stubResolver) ResolvePhone(_ context.Context, _ string) (string, error) {
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return r.phone, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newDispatcher(store notification.Store, senders map[notification.Channel]notification.Sender, resolver notification.PhoneResolver) *dispatch.Dispatcher {
	return dispatch.New(store, senders, resolver, fixedClock{testNow}, zap.NewNop())
}

// --- tests ---

func TestDispatch_AllChannelsSucceed(t *testing.T) {
	store := newStubStore()
	senders := map[notification.Channel]notification.Sender{
		notification.ChannelSMS:  &stubSender{name: notification.ChannelSMS, ref: "sms-1"},
		notification.ChannelPush: &stubSender{name: notification.ChannelPush, ref: "push-1"},
	}
	d := newDispatcher(store, senders, nil)

	res, err := d.Dispatch(context.Background(), dispatch.Request{
		RecipientID:    "user-1",
		RecipientPhone: "+15550001111",
		Channels:       []notification.Channel{notification.ChannelSMS, notification.ChannelPush},
		Type:           notification.TypeSOSRequest,
	})
	require.NoError(t, err)

	assert.Equal(t, notification.StatusSent, res.Status)
	require.NotNil(t, res.SentAt)
	assert.Nil(t, res.FailedAt)
	require.Len(t, res.ChannelStatus, 2)
	assert.Equal(t, notification.OutcomeSent, res.ChannelStatus[notification.ChannelSMS].Outcome)
	assert.Equal(t, "sms-1", res.ChannelStatus[notification.ChannelSMS].Ref)
	assert.Equal(t, notification.OutcomeSent, res.ChannelStatus[notification.ChannelPush].Outcome)

	require.Len(t, store.created, 1)
	assert.Equal(t, notification.StatusPending, store.created[0].Status)
	patch, ok := store.finalized[res.NotificationID]
	require.True(t, ok)
	assert.Equal(t, notification.StatusSent, patch.Status)
}

func TestDispatch_PartialFailureIsSent(t *testing.T) {
	store := newStubStore()
	senders := map[notification.Channel]notification.Sender{
		notification.ChannelSMS:  &stubSender{name: notification.ChannelSMS, err: errors.New("throttled")},
		notification.ChannelPush: &stubSender{name: notification.ChannelPush, ref: "push-1"},
	}
	d := newDispatcher(store, senders, nil)

	res, err := d.Dispatch(context.Background(), dispatch.Request{
		RecipientID:    "user-1",
		RecipientPhone: "+15550001111",
		Channels:       []notification.Channel{notification.ChannelSMS, notification.ChannelPush},
	})
	require.NoError(t, err)

	assert.Equal(t, notification.StatusSent, res.Status)
	assert.Equal(t, notification.OutcomeFailed, res.ChannelStatus[notification.ChannelSMS].Outcome)
	assert.Contains(t, res.ChannelStatus[notification.ChannelSMS].Error, "throttled")
	assert.Equal(t, notification.OutcomeSent, res.ChannelStatus[notification.ChannelPush].Outcome)
}

func TestDispatch_AllChannelsFail(t *testing.T) {
	store := newStubStore()
	senders := map[notification.Channel]notification.Sender{
		notification.ChannelSMS:  &stubSender{name: notification.ChannelSMS, err: errors.New("down")},
		notification.ChannelPush: &stubSender{name: notification.ChannelPush, err: errors.New("down")},
	}
	d := newDispatcher(store, senders, nil)

	res, err := d.Dispatch(context.Background(), dispatch.Request{
		RecipientID:    "user-1",
		RecipientPhone: "+15550001111",
		Channels:       []notification.Channel{notification.ChannelSMS, notification.ChannelPush},
	})
	require.NoError(t, err)

	assert.Equal(t, notification.StatusFailed, res.Status)
	require.NotNil(t, res.FailedAt)
	assert.Nil(t, res.SentAt)
}

func TestDispatch_NoAttemptedChannelsIsFailed(t *testing.T) {
	// every requested channel disabled: nothing attempted, terminal failed
	store := newStubStore()
	d := newDispatcher(store, map[notification.Channel]notification.Sender{}, nil)

	res, err := d.Dispatch(context.Background(), dispatch.Request{
		RecipientID: "user-1",
		Channels:    []notification.Channel{notification.ChannelPush},
	})
	require.NoError(t, err)

	assert.Equal(t, notification.StatusFailed, res.Status)
	assert.Empty(t, res.ChannelStatus)
}

func TestDispatch_SMSSkippedWithoutPhone(t *testing.T) {
	store := newStubStore()
	sms := &stubSender{name: notification.ChannelSMS, ref: "sms-1"}
	push := &stubSender{name: notification.ChannelPush, ref: "push-1"}
	senders := map[notification.Channel]notification.Sender{
		notification.ChannelSMS:  sms,
		notification.ChannelPush: push,
	}
	resolver := &stubResolver{err: errors.New("profile unavailable")}
	d := newDispatcher(store, senders, resolver)

	res, err := d.Dispatch(context.Background(), dispatch.Request{
		RecipientID: "user-1",
		Channels:    []notification.Channel{notification.ChannelSMS, notification.ChannelPush},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, resolver.calls)
	assert.Empty(t, sms.targets, "sms must not be attempted without a phone")
	_, hasSMS := res.ChannelStatus[notification.ChannelSMS]
	assert.False(t, hasSMS, "skipped channel must not appear in channel status")
	assert.Equal(t, notification.StatusSent, res.Status)
}

func TestDispatch_ResolvesPhoneForSMS(t *testing.T) {
	store := newStubStore()
	sms := &stubSender{name: notification.ChannelSMS, ref: "sms-1"}
	resolver := &stubResolver{phone: "+15559990000"}
	d := newDispatcher(store, map[notification.Channel]notification.Sender{notification.ChannelSMS: sms}, resolver)

	_, err := d.Dispatch(context.Background(), dispatch.Request{
		RecipientID: "user-1",
		Channels:    []notification.Channel{notification.ChannelSMS},
	})
	require.NoError(t, err)

	require.Len(t, sms.targets, 1)
	assert.Equal(t, "+15559990000", sms.targets[0].Phone)
	require.Len(t, store.created, 1)
	assert.Equal(t, "+15559990000", store.created[0].RecipientPhone)
}

func TestDispatch_ResolverNotCalledWithoutSMS(t *testing.T) {
	store := newStubStore()
	resolver := &stubResolver{phone: "+15559990000"}
	push := &stubSender{name: notification.ChannelPush, ref: "push-1"}
	d := newDispatcher(store, map[notification.Channel]notification.Sender{notification.ChannelPush: push}, resolver)

	_, err := d.Dispatch(context.Background(), dispatch.Request{
		RecipientID: "user-1",
		Channels:    []notification.Channel{notification.ChannelPush},
	})
	require.NoError(t, err)
	assert.Zero(t, resolver.calls)
}

func TestDispatch_Defaults(t *testing.T) {
	store := newStubStore()
	push := &stubSender{name: notification.ChannelPush, ref: "push-1"}
	d := newDispatcher(store, map[notification.Channel]notification.Sender{notification.ChannelPush: push}, nil)

	res, err := d.Dispatch(context.Background(), dispatch.Request{RecipientID: "user-1"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.NotificationID, "notif-"))
	require.Len(t, store.created, 1)
	assert.Equal(t, notification.DefaultChannels(), store.created[0].Channels)
	assert.Equal(t, notification.PriorityMedium, store.created[0].Priority)
}

func TestDispatch_StableIDKept(t *testing.T) {
	store := newStubStore()
	push := &stubSender{name: notification.ChannelPush, ref: "push-1"}
	d := newDispatcher(store, map[notification.Channel]notification.Sender{notification.ChannelPush: push}, nil)

	res, err := d.Dispatch(context.Background(), dispatch.Request{
		ID:          "notif-replay-1",
		RecipientID: "user-1",
		Channels:    []notification.Channel{notification.ChannelPush},
	})
	require.NoError(t, err)
	assert.Equal(t, "notif-replay-1", res.NotificationID)
}

func TestDispatch_DuplicateDeliveryReportsStoredOutcome(t *testing.T) {
	sentAt := testNow.Add(-time.Minute)
	store := newStubStore()
	store.applied = false
	store.stored = &notification.Notification{
		ID:     "notif-dup",
		Status: notification.StatusSent,
		ChannelStatus: map[notification.Channel]notification.ChannelResult{
			notification.ChannelPush: {Outcome: notification.OutcomeSent, Ref: "push-original"},
		},
		SentAt: &sentAt,
	}
	push := &stubSender{name: notification.ChannelPush, err: errors.New("gateway down")}
	d := newDispatcher(store, map[notification.Channel]notification.Sender{notification.ChannelPush: push}, nil)

	res, err := d.Dispatch(context.Background(), dispatch.Request{
		ID:          "notif-dup",
		RecipientID: "user-1",
		Channels:    []notification.Channel{notification.ChannelPush},
	})
	require.NoError(t, err)

	// the first delivery's outcome wins, not this attempt's failure
	assert.Equal(t, notification.StatusSent, res.Status)
	assert.Equal(t, "push-original", res.ChannelStatus[notification.ChannelPush].Ref)
	require.NotNil(t, res.SentAt)
	assert.True(t, res.SentAt.Equal(sentAt))
}

func TestDispatch_CreateFailureIsFatal(t *testing.T) {
	store := newStubStore()
	store.createErr = errors.New("db down")
	push := &stubSender{name: notification.ChannelPush, ref: "push-1"}
	d := newDispatcher(store, map[notification.Channel]notification.Sender{notification.ChannelPush: push}, nil)

	_, err := d.Dispatch(context.Background(), dispatch.Request{RecipientID: "user-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create notification")
	assert.Empty(t, push.targets, "no channel may be attempted when persistence fails")
}

func TestDispatch_FinalizeFailureIsFatal(t *testing.T) {
	store := newStubStore()
	store.finalizeErr = errors.New("db down")
	push := &stubSender{name: notification.ChannelPush, ref: "push-1"}
	d := newDispatcher(store, map[notification.Channel]notification.Sender{notification.ChannelPush: push}, nil)

	_, err := d.Dispatch(context.Background(), dispatch.Request{RecipientID: "user-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finalize notification")
}

func TestDispatchBatch_OrderAndIsolation(t *testing.T) {
	push := &stubSender{name: notification.ChannelPush, ref: "push-1"}

	reqs := []dispatch.Request{
		{RecipientID: "user-1", Channels: []notification.Channel{notification.ChannelPush}},
		{RecipientID: "user-2", Channels: []notification.Channel{notification.ChannelPush}},
		{RecipientID: "user-3", Channels: []notification.Channel{notification.ChannelPush}},
	}
	// fail persistence only for the middle item
	calls := 0
	failing := &failOnNthStore{stubStore: newStubStore(), failOn: 2, calls: &calls}
	d := newDispatcher(failing, map[notification.Channel]notification.Sender{notification.ChannelPush: push}, nil)
	items := d.DispatchBatch(context.Background(), reqs)

	require.Len(t, items, 3)
	require.NotNil(t, items[0].Result)
	assert.Nil(t, items[0].Err)
	require.Nil(t, items[1].Result)
	assert.Error(t, items[1].Err)
	require.NotNil(t, items[2].Result)
	assert.Nil(t, items[2].Err)
}

type failOnNthStore struct {
	*stubStore
	failOn int
	calls  *int
}

func (s *failOnNthStore) Create(ctx context.Context, n *notification.Notification) error {
	*s.calls++
	if *s.calls == s.failOn {
		return errors.New("db hiccup")
	}
	return s.stubStore.Create(ctx, n)
}

func TestDispatch_FanOutSettlesAllChannels(t *testing.T) {
	// a slow failing channel must not suppress a fast success
	store := newStubStore()
	slow := &slowSender{name: notification.ChannelWhatsApp, delay: 50 * time.Millisecond, err: errors.New("timeout")}
	push := &stubSender{name: notification.ChannelPush, ref: "push-1"}
	senders := map[notification.Channel]notification.Sender{
		notification.ChannelWhatsApp: slow,
		notification.ChannelPush:     push,
	}
	d := newDispatcher(store, senders, nil)

	res, err := d.Dispatch(context.Background(), dispatch.Request{
		RecipientID: "user-1",
		Channels:    []notification.Channel{notification.ChannelWhatsApp, notification.ChannelPush},
	})
	require.NoError(t, err)

	require.Len(t, res.ChannelStatus, 2)
	assert.Equal(t, notification.OutcomeFailed, res.ChannelStatus[notification.ChannelWhatsApp].Outcome)
	assert.Equal(t, notification.OutcomeSent, res.ChannelStatus[notification.ChannelPush].Outcome)
	assert.Equal(t, notification.StatusSent, res.Status)
}

type slowSender struct {
	name  notification.Channel
	delay time.Duration
	err   error
}

func (s *slowSender) Name() notification.Channel { return s.name }

func (s *slowSender) Send(ctx context.Context, _ notification.Target, _ string, _ map[string]any) (string, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if s.err != nil {
		return "", s.err
	}
	return "slow-ok", nil
}
