package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"gamecafe_backend/internal/events"
	"gamecafe_backend/internal/models"
	"gamecafe_backend/internal/repositories"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testOwnerID int64 = 7

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// failingCalculator fails until healed.
type failingCalculator struct {
	mu     sync.Mutex
	failed bool
	calls  int
}

func (c *failingCalculator) CalculateRefund(ctx context.Context, b models.Booking, p models.PaymentRecord) (*models.RefundDescriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failed {
		return nil, context.DeadlineExceeded
	}
	return NewFullRefundCalculator().CalculateRefund(ctx, b, p)
}

func (c *failingCalculator) heal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = false
}

type testEnv struct {
	store      *repositories.MemoryStore
	clock      *fakeClock
	publisher  *recordingPublisher
	calculator *failingCalculator

	catalog      CatalogService
	bookings     BookingService
	assignment   AssignmentService
	sweeper      SweeperService
	extension    ExtensionService
	cancellation CancellationService
	otp          OTPService

	cafe  *models.Cafe
	scope Scope
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:      repositories.NewMemoryStore(),
		clock:      newFakeClock(),
		publisher:  &recordingPublisher{},
		calculator: &failingCalculator{},
	}
	clock := env.clock.Now

	env.catalog = NewCatalogService(env.store, env.publisher, clock)
	env.otp = NewOTPService(env.store, env.store, env.publisher, clock)
	env.cancellation = NewCancellationService(env.store, env.store, env.store, env.calculator, env.publisher, 0, clock)
	env.sweeper = NewSweeperService(env.store, env.store, env.cancellation, env.publisher, clock)
	env.assignment = NewAssignmentService(env.store, env.store, env.publisher, clock)
	env.extension = NewExtensionService(env.store, env.store, env.publisher, clock)
	env.bookings = NewBookingService(env.store, env.store, env.store, env.sweeper, env.otp, env.publisher, clock)

	cafe, err := env.catalog.CreateCafe(context.Background(), testOwnerID, CreateCafeRequest{
		Name: "Arena",
		Rooms: []CreateRoomRequest{
			{Name: "VIP", Terminals: []CreateTerminalRequest{
				{TerminalID: "PC-1", Type: "PC", PricePerHour: decimal.NewFromInt(200)},
				{TerminalID: "PC-2", Type: "PC", PricePerHour: decimal.NewFromInt(200)},
				{TerminalID: "PC-3", Type: "PC", PricePerHour: decimal.NewFromInt(200)},
				{TerminalID: "PS5-1", Type: "PS5", PricePerHour: decimal.NewFromInt(300)},
			}},
			{Name: "Hall", Terminals: []CreateTerminalRequest{
				{TerminalID: "PC-10", Type: "PC", PricePerHour: decimal.NewFromInt(100)},
				{TerminalID: "PC-11", Type: "PC", PricePerHour: decimal.NewFromInt(100)},
			}},
		},
	})
	require.NoError(t, err)
	env.cafe = cafe
	env.scope = Scope{CafeID: cafe.ID, UserID: testOwnerID, Role: RoleOwner}
	return env
}

// book creates a walk-in booking for count VIP PCs.
func (e *testEnv) book(t *testing.T, count int, hours float64) *models.Booking {
	t.Helper()
	created, err := e.bookings.CreateBooking(context.Background(), e.scope, CreateBookingRequest{
		CustomerName:  "Walk-in",
		CustomerPhone: "+7 700 000 00 00",
		SystemsBooked: []models.SystemRequirement{{RoomType: "VIP", TerminalType: "PC", NumberOfTerminals: count}},
		Duration:      hours,
		Payment:       &models.PaymentRecord{Method: "card", Amount: decimal.NewFromInt(400), Status: models.PaymentStatusCompleted},
	})
	require.NoError(t, err)
	return created.Booking
}

func (e *testEnv) assign(t *testing.T, bookingID int64, ids ...string) *models.Booking {
	t.Helper()
	b, err := e.assignment.Assign(context.Background(), e.scope, bookingID, []AssignmentRequest{{RoomType: "VIP", TerminalIDs: ids}})
	require.NoError(t, err)
	return b
}

func (e *testEnv) terminal(t *testing.T, id string) models.Terminal {
	t.Helper()
	cafe, err := e.store.GetCafeByID(context.Background(), e.cafe.ID)
	require.NoError(t, err)
	term, ok := cafe.Terminal(id)
	require.True(t, ok, "terminal %s", id)
	return *term
}

func (e *testEnv) booking(t *testing.T, id int64) *models.Booking {
	t.Helper()
	b, err := e.store.GetBookingByID(context.Background(), e.cafe.ID, id)
	require.NoError(t, err)
	return b
}
