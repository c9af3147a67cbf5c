package service_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dkotenko/slotswapper/internal/apperr"
	"github.com/dkotenko/slotswapper/internal/model"
	"github.com/dkotenko/slotswapper/internal/notify"
	"github.com/dkotenko/slotswapper/internal/repository"
	"github.com/dkotenko/slotswapper/internal/service"
)

// Интеграционные тесты движка обмена. Требуют живой PostgreSQL:
//
//	TEST_DB_DSN=postgres://... go test ./internal/service/
//
// Без TEST_DB_DSN пропускаются.

type sentEvent struct {
	userID int64
	event  notify.Event
}

// recordingNotifier потокобезопасно записывает все уведомления
type recordingNotifier struct {
	mu         sync.Mutex
	sent       []sentEvent
	broadcasts []notify.Event
}

func (n *recordingNotifier) SendToUser(userID int64, event notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentEvent{userID: userID, event: event})
}

func (n *recordingNotifier) BroadcastExcept(event notify.Event, exceptUserID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broadcasts = append(n.broadcasts, event)
}

func (n *recordingNotifier) sentTo(userID int64) []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var events []notify.Event
	for _, s := range n.sent {
		if s.userID == userID {
			events = append(events, s.event)
		}
	}
	return events
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = nil
	n.broadcasts = nil
}

type fixture struct {
	pool      *pgxpool.Pool
	users     *repository.UserRepository
	events    *repository.EventRepository
	swaps     *repository.SwapRequestRepository
	svc       *service.SwapService
	notifier  *recordingNotifier
	nextEmail int
}

func setup(t *testing.T) *fixture {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN is not set; skipping database integration tests")
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pool.Ping(ctx))

	require.NoError(t, goose.SetDialect("postgres"))
	db := stdlib.OpenDBFromPool(pool)
	require.NoError(t, goose.Up(db, "../../migrations"))
	require.NoError(t, db.Close())

	_, err = pool.Exec(ctx, "TRUNCATE swap_requests, events, users RESTART IDENTITY CASCADE")
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	eventRepo := repository.NewEventRepository(pool)
	swapRepo := repository.NewSwapRequestRepository(pool)

	return &fixture{
		pool:     pool,
		users:    repository.NewUserRepository(pool),
		events:   eventRepo,
		swaps:    swapRepo,
		svc:      service.NewSwapService(pool, eventRepo, swapRepo, notifier, zap.NewNop()),
		notifier: notifier,
	}
}

func (f *fixture) createUser(t *testing.T, name string) *model.User {
	t.Helper()
	f.nextEmail++
	user := &model.User{
		Name:         name,
		Email:        fmt.Sprintf("user%d@example.com", f.nextEmail),
		PasswordHash: "irrelevant",
	}
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}

func (f *fixture) createSlot(t *testing.T, ownerID int64, status model.EventStatus) *model.Event {
	t.Helper()
	start := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	event := &model.Event{
		Title:     "Slot",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Status:    status,
		UserID:    ownerID,
	}
	require.NoError(t, f.events.Create(context.Background(), event))
	return event
}

func (f *fixture) slot(t *testing.T, id int64) *model.Event {
	t.Helper()
	event, err := f.events.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, event)
	return event
}

func (f *fixture) swapRequestCount(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, f.pool.QueryRow(context.Background(), "SELECT count(*) FROM swap_requests").Scan(&n))
	return n
}

// assertStatusInvariant проверяет ключевой инвариант: слот в SWAP_PENDING
// тогда и только тогда, когда на него ссылается PENDING предложение
func (f *fixture) assertStatusInvariant(t *testing.T) {
	t.Helper()
	var violations int
	err := f.pool.QueryRow(context.Background(), `
		SELECT count(*) FROM events e
		WHERE (e.status = 'SWAP_PENDING') <> EXISTS (
			SELECT 1 FROM swap_requests sr
			WHERE sr.status = 'PENDING'
			  AND (sr.requester_slot_id = e.id OR sr.receiver_slot_id = e.id)
		)`).Scan(&violations)
	require.NoError(t, err)
	assert.Zero(t, violations, "SWAP_PENDING status must match pending proposal references")
}

func TestProposeLocksBothSlots(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	alice := f.createUser(t, "Alice")
	bob := f.createUser(t, "Bob")
	s1 := f.createSlot(t, alice.ID, model.EventStatusSwappable)
	s2 := f.createSlot(t, bob.ID, model.EventStatusSwappable)

	sr, err := f.svc.Propose(ctx, alice.ID, s1.ID, s2.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SwapRequestStatusPending, sr.Status)

	assert.Equal(t, model.EventStatusSwapPending, f.slot(t, s1.ID).Status)
	assert.Equal(t, model.EventStatusSwapPending, f.slot(t, s2.ID).Status)
	f.assertStatusInvariant(t)

	// Получатель узнаёт о предложении, остальные — об изменении биржи
	require.Len(t, f.notifier.sentTo(bob.ID), 1)
	assert.Equal(t, notify.TypeNewRequest, f.notifier.sentTo(bob.ID)[0].Type)
	require.Len(t, f.notifier.broadcasts, 1)
	assert.Equal(t, notify.TypeMarketplaceUpdate, f.notifier.broadcasts[0].Type)
}

func TestProposePreconditions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	alice := f.createUser(t, "Alice")
	bob := f.createUser(t, "Bob")
	mine := f.createSlot(t, alice.ID, model.EventStatusSwappable)
	mineBusy := f.createSlot(t, alice.ID, model.EventStatusBusy)
	mineOther := f.createSlot(t, alice.ID, model.EventStatusSwappable)
	theirs := f.createSlot(t, bob.ID, model.EventStatusSwappable)
	theirsBusy := f.createSlot(t, bob.ID, model.EventStatusBusy)

	tests := []struct {
		name     string
		offered  int64
		target   int64
		wantKind apperr.Kind
	}{
		{"offered slot missing", 99999, theirs.ID, apperr.KindNotFound},
		{"target slot missing", mine.ID, 99999, apperr.KindNotFound},
		{"offering someone else's slot", theirs.ID, mine.ID, apperr.KindForbidden},
		{"self swap", mine.ID, mineOther.ID, apperr.KindValidation},
		{"same slot twice", mine.ID, mine.ID, apperr.KindValidation},
		{"offered not swappable", mineBusy.ID, theirs.ID, apperr.KindValidation},
		{"target not swappable", mine.ID, theirsBusy.ID, apperr.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.swapRequestCount(t)

			_, err := f.svc.Propose(ctx, alice.ID, tt.offered, tt.target)
			require.Error(t, err)
			assert.True(t, apperr.IsKind(err, tt.wantKind), "got %v", err)

			// Ошибка предусловия не оставляет следов
			assert.Equal(t, before, f.swapRequestCount(t))
			f.assertStatusInvariant(t)
		})
	}
}

func TestProposeRejectsAlreadyPendingSlot(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	alice := f.createUser(t, "Alice")
	bob := f.createUser(t, "Bob")
	carol := f.createUser(t, "Carol")
	s1 := f.createSlot(t, alice.ID, model.EventStatusSwappable)
	s2 := f.createSlot(t, bob.ID, model.EventStatusSwappable)
	s3 := f.createSlot(t, carol.ID, model.EventStatusSwappable)

	_, err := f.svc.Propose(ctx, alice.ID, s1.ID, s2.ID)
	require.NoError(t, err)

	// Слот s2 уже заблокирован первым предложением
	_, err = f.svc.Propose(ctx, carol.ID, s3.ID, s2.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	assert.Equal(t, 1, f.swapRequestCount(t))
	f.assertStatusInvariant(t)
}

func TestRespondAcceptExchangesOwners(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	alice := f.createUser(t, "Alice")
	bob := f.createUser(t, "Bob")
	s1 := f.createSlot(t, alice.ID, model.EventStatusSwappable)
	s2 := f.createSlot(t, bob.ID, model.EventStatusSwappable)

	sr, err := f.svc.Propose(ctx, alice.ID, s1.ID, s2.ID)
	require.NoError(t, err)
	f.notifier.reset()

	resolution, err := f.svc.Respond(ctx, bob.ID, sr.ID, true)
	require.NoError(t, err)
	assert.Equal(t, model.SwapRequestStatusAccepted, resolution)

	// Владельцы обменялись, оба слота заняты
	s1After, s2After := f.slot(t, s1.ID), f.slot(t, s2.ID)
	assert.Equal(t, bob.ID, s1After.UserID)
	assert.Equal(t, alice.ID, s2After.UserID)
	assert.Equal(t, model.EventStatusBusy, s1After.Status)
	assert.Equal(t, model.EventStatusBusy, s2After.Status)

	stored, err := f.swaps.GetByID(ctx, sr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SwapRequestStatusAccepted, stored.Status)
	f.assertStatusInvariant(t)

	// Инициатор получает исход, даже несмотря на смену владельцев
	events := f.notifier.sentTo(alice.ID)
	require.Len(t, events, 1)
	assert.Equal(t, notify.TypeRequestResponse, events[0].Type)
	assert.Equal(t, "ACCEPTED", events[0].Status)
}

func TestRespondRejectRestoresSlots(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	alice := f.createUser(t, "Alice")
	bob := f.createUser(t, "Bob")
	s1 := f.createSlot(t, alice.ID, model.EventStatusSwappable)
	s2 := f.createSlot(t, bob.ID, model.EventStatusSwappable)

	sr, err := f.svc.Propose(ctx, alice.ID, s1.ID, s2.ID)
	require.NoError(t, err)
	f.notifier.reset()

	resolution, err := f.svc.Respond(ctx, bob.ID, sr.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.SwapRequestStatusRejected, resolution)

	// Владельцы не изменились, оба слота снова на бирже
	s1After, s2After := f.slot(t, s1.ID), f.slot(t, s2.ID)
	assert.Equal(t, alice.ID, s1After.UserID)
	assert.Equal(t, bob.ID, s2After.UserID)
	assert.Equal(t, model.EventStatusSwappable, s1After.Status)
	assert.Equal(t, model.EventStatusSwappable, s2After.Status)
	f.assertStatusInvariant(t)

	events := f.notifier.sentTo(alice.ID)
	require.Len(t, events, 1)
	assert.Equal(t, "REJECTED", events[0].Status)
}

func TestRespondResolvedExactlyOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	alice := f.createUser(t, "Alice")
	bob := f.createUser(t, "Bob")
	s1 := f.createSlot(t, alice.ID, model.EventStatusSwappable)
	s2 := f.createSlot(t, bob.ID, model.EventStatusSwappable)

	sr, err := f.svc.Propose(ctx, alice.ID, s1.ID, s2.ID)
	require.NoError(t, err)

	_, err = f.svc.Respond(ctx, bob.ID, sr.ID, true)
	require.NoError(t, err)

	// Повторный ответ на уже обработанное предложение — конфликт без изменений
	_, err = f.svc.Respond(ctx, bob.ID, sr.ID, false)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict), "got %v", err)

	assert.Equal(t, bob.ID, f.slot(t, s1.ID).UserID)
	assert.Equal(t, model.EventStatusBusy, f.slot(t, s1.ID).Status)
	f.assertStatusInvariant(t)
}

func TestRespondOnlyReceiverMayRespond(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	alice := f.createUser(t, "Alice")
	bob := f.createUser(t, "Bob")
	carol := f.createUser(t, "Carol")
	s1 := f.createSlot(t, alice.ID, model.EventStatusSwappable)
	s2 := f.createSlot(t, bob.ID, model.EventStatusSwappable)

	sr, err := f.svc.Propose(ctx, alice.ID, s1.ID, s2.ID)
	require.NoError(t, err)

	// Ни посторонний, ни сам инициатор не могут ответить
	for _, userID := range []int64{carol.ID, alice.ID} {
		_, err = f.svc.Respond(ctx, userID, sr.ID, true)
		require.Error(t, err)
		assert.True(t, apperr.IsKind(err, apperr.KindForbidden), "got %v", err)
	}

	stored, err := f.swaps.GetByID(ctx, sr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SwapRequestStatusPending, stored.Status)
	assert.Equal(t, model.EventStatusSwapPending, f.slot(t, s1.ID).Status)
	f.assertStatusInvariant(t)
}

func TestRespondConcurrentRace(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	alice := f.createUser(t, "Alice")
	bob := f.createUser(t, "Bob")
	s1 := f.createSlot(t, alice.ID, model.EventStatusSwappable)
	s2 := f.createSlot(t, bob.ID, model.EventStatusSwappable)

	sr, err := f.svc.Propose(ctx, alice.ID, s1.ID, s2.ID)
	require.NoError(t, err)

	// Принятие и отклонение наперегонки: проходит ровно одно
	results := make(chan error, 2)
	var wg sync.WaitGroup
	for _, accept := range []bool{true, false} {
		wg.Add(1)
		go func(accept bool) {
			defer wg.Done()
			_, err := f.svc.Respond(ctx, bob.ID, sr.ID, accept)
			results <- err
		}(accept)
	}
	wg.Wait()
	close(results)

	var succeeded, conflicted int
	for err := range results {
		if err == nil {
			succeeded++
		} else if apperr.IsKind(err, apperr.KindConflict) {
			conflicted++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)

	stored, err := f.swaps.GetByID(ctx, sr.ID)
	require.NoError(t, err)
	assert.True(t, stored.Resolved())
	f.assertStatusInvariant(t)
}

func TestDismiss(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	alice := f.createUser(t, "Alice")
	bob := f.createUser(t, "Bob")
	carol := f.createUser(t, "Carol")
	s1 := f.createSlot(t, alice.ID, model.EventStatusSwappable)
	s2 := f.createSlot(t, bob.ID, model.EventStatusSwappable)

	sr, err := f.svc.Propose(ctx, alice.ID, s1.ID, s2.ID)
	require.NoError(t, err)

	t.Run("pending proposal cannot be dismissed", func(t *testing.T) {
		err := f.svc.Dismiss(ctx, alice.ID, sr.ID)
		require.Error(t, err)
		assert.True(t, apperr.IsKind(err, apperr.KindConflict), "got %v", err)
		f.assertStatusInvariant(t)
	})

	_, err = f.svc.Respond(ctx, bob.ID, sr.ID, false)
	require.NoError(t, err)

	t.Run("only requester slot owner may dismiss", func(t *testing.T) {
		err := f.svc.Dismiss(ctx, carol.ID, sr.ID)
		require.Error(t, err)
		assert.True(t, apperr.IsKind(err, apperr.KindForbidden), "got %v", err)
	})

	t.Run("requester dismisses rejected proposal", func(t *testing.T) {
		require.NoError(t, f.svc.Dismiss(ctx, alice.ID, sr.ID))
		stored, err := f.swaps.GetByID(ctx, sr.ID)
		require.NoError(t, err)
		assert.Nil(t, stored)
	})

	t.Run("missing proposal", func(t *testing.T) {
		err := f.svc.Dismiss(ctx, alice.ID, sr.ID)
		require.Error(t, err)
		assert.True(t, apperr.IsKind(err, apperr.KindNotFound), "got %v", err)
	})
}

func TestMarketplace(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	alice := f.createUser(t, "Alice")
	bob := f.createUser(t, "Bob")
	noName := f.createUser(t, "")

	f.createSlot(t, alice.ID, model.EventStatusSwappable) // собственный — скрыт
	visible := f.createSlot(t, bob.ID, model.EventStatusSwappable)
	f.createSlot(t, bob.ID, model.EventStatusBusy)           // не на бирже
	f.createSlot(t, bob.ID, model.EventStatusSwapPending)    // заблокирован
	anonymous := f.createSlot(t, noName.ID, model.EventStatusSwappable)

	slots, err := f.svc.Marketplace(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, slots, 2)

	byID := make(map[int64]string, len(slots))
	for _, s := range slots {
		byID[s.ID] = s.OwnerName
	}
	assert.Equal(t, "Bob", byID[visible.ID])
	// Без имени показывается локальная часть email
	assert.Equal(t, fmt.Sprintf("user%d", f.nextEmail), byID[anonymous.ID])
}

func TestIncomingAndOutgoing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	alice := f.createUser(t, "Alice")
	bob := f.createUser(t, "Bob")
	s1 := f.createSlot(t, alice.ID, model.EventStatusSwappable)
	s2 := f.createSlot(t, bob.ID, model.EventStatusSwappable)

	sr, err := f.svc.Propose(ctx, alice.ID, s1.ID, s2.ID)
	require.NoError(t, err)

	incoming, err := f.svc.Incoming(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, sr.ID, incoming[0].SwapRequestID)
	assert.Equal(t, s1.ID, incoming[0].RequesterSlotID)
	assert.Equal(t, "Alice", incoming[0].RequesterName)

	// У инициатора входящих нет, есть одно исходящее
	mine, err := f.svc.Incoming(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, mine)

	outgoing, err := f.svc.Outgoing(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, model.SwapRequestStatusPending, outgoing[0].Status)
	assert.Equal(t, "Bob", outgoing[0].ReceiverName)

	// После отклонения предложение уходит из входящих, но остаётся в исходящих
	_, err = f.svc.Respond(ctx, bob.ID, sr.ID, false)
	require.NoError(t, err)

	incoming, err = f.svc.Incoming(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, incoming)

	outgoing, err = f.svc.Outgoing(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, model.SwapRequestStatusRejected, outgoing[0].Status)
}
