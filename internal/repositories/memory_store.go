package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"gamecafe_backend/internal/models"
	"gamecafe_backend/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore keeps every record in process memory under a single mutex, so
// each method is trivially atomic. It satisfies CatalogRepository,
// BookingRepository, RefundRepository and CustomerRepository with the same
// conditional-update semantics as the Postgres repositories.
type MemoryStore struct {
	mu sync.Mutex

	cafes     map[int64]*models.Cafe
	bookings  map[int64]*models.Booking
	refunds   map[string]*models.Refund
	customers map[int64]*models.RegisteredCustomer
	// refund id -> claim expiry
	refundClaims map[string]time.Time

	nextCafeID     int64
	nextBookingID  int64
	nextCustomerID int64
}

var (
	_ CatalogRepository  = (*MemoryStore)(nil)
	_ BookingRepository  = (*MemoryStore)(nil)
	_ RefundRepository   = (*MemoryStore)(nil)
	_ CustomerRepository = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cafes:     map[int64]*models.Cafe{},
		bookings:  map[int64]*models.Booking{},
		refunds:   map[string]*models.Refund{},
		customers: map[int64]*models.RegisteredCustomer{},

		refundClaims: map[string]time.Time{},
	}
}

// --- catalog ---

func (s *MemoryStore) CreateCafe(_ context.Context, cafe *models.Cafe) (*models.Cafe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[string]bool{}
	for _, room := range cafe.Rooms {
		for _, t := range room.Terminals {
			if seen[t.TerminalID] {
				return nil, ErrDuplicateKey
			}
			seen[t.TerminalID] = true
		}
	}

	now := time.Now()
	s.nextCafeID++
	cafe.ID = s.nextCafeID
	cafe.CreatedAt = now
	cafe.UpdatedAt = now
	position := 0
	for ri := range cafe.Rooms {
		for ti := range cafe.Rooms[ri].Terminals {
			t := &cafe.Rooms[ri].Terminals[ti]
			t.CafeID = cafe.ID
			t.RoomName = cafe.Rooms[ri].Name
			t.Status = models.TerminalStatusAvailable
			t.ActiveBookingID = nil
			t.Position = position
			t.UpdatedAt = now
			position++
		}
	}
	s.cafes[cafe.ID] = cloneCafe(cafe)
	return cafe, nil
}

func (s *MemoryStore) GetCafeByID(_ context.Context, cafeID int64) (*models.Cafe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cafe, ok := s.cafes[cafeID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneCafe(cafe), nil
}

func (s *MemoryStore) SetTerminalStatus(_ context.Context, cafeID int64, roomName, terminalID string, from, to models.TerminalStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.terminal(cafeID, terminalID)
	if !ok || t.RoomName != roomName {
		return ErrNotFound
	}
	if t.Status != from || t.ActiveBookingID != nil {
		return ErrConflict
	}
	t.Status = to
	t.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) terminal(cafeID int64, terminalID string) (*models.Terminal, bool) {
	cafe, ok := s.cafes[cafeID]
	if !ok {
		return nil, false
	}
	return cafe.Terminal(terminalID)
}

// --- bookings ---

func (s *MemoryStore) CreateBooking(_ context.Context, booking *models.Booking) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextBookingID++
	booking.ID = s.nextBookingID
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now()
	}
	booking.UpdatedAt = booking.CreatedAt
	if booking.AssignedSystems == nil {
		booking.AssignedSystems = models.AssignedSystems{}
	}
	s.bookings[booking.ID] = cloneBooking(booking)
	return booking, nil
}

func (s *MemoryStore) GetBookingByID(_ context.Context, cafeID, id int64) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok || b.CafeID != cafeID {
		return nil, ErrNotFound
	}
	return cloneBooking(b), nil
}

func (s *MemoryStore) GetBookings(_ context.Context, filters models.BookingFilters) ([]models.Booking, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []*models.Booking{}
	for _, b := range s.bookings {
		if b.CafeID != filters.CafeID {
			continue
		}
		if filters.Status != nil && *filters.Status != "" && b.Status != *filters.Status {
			continue
		}
		if filters.Source != nil && *filters.Source != "" && b.Source != *filters.Source {
			continue
		}
		if filters.DateFrom != nil && b.CreatedAt.Before(*filters.DateFrom) {
			continue
		}
		if filters.DateTo != nil && b.CreatedAt.After(*filters.DateTo) {
			continue
		}
		matched = append(matched, b)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	if filters.PageSize > 0 {
		offset := 0
		if filters.Page > 0 {
			offset = (filters.Page - 1) * filters.PageSize
		}
		if offset > len(matched) {
			offset = len(matched)
		}
		end := offset + filters.PageSize
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[offset:end]
	}

	bookings := make([]models.Booking, 0, len(matched))
	for _, b := range matched {
		bookings = append(bookings, *cloneBooking(b))
	}
	if len(bookings) == 0 {
		total = 0
	}
	return bookings, total, nil
}

func (s *MemoryStore) ListActiveBookings(_ context.Context, cafeID int64) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bookings := []models.Booking{}
	for _, b := range s.bookings {
		if b.Status != models.BookingStatusActive || (cafeID != 0 && b.CafeID != cafeID) {
			continue
		}
		bookings = append(bookings, *cloneBooking(b))
	}
	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].SessionEndTime.Before(*bookings[j].SessionEndTime)
	})
	return bookings, nil
}

func (s *MemoryStore) AssignTerminals(_ context.Context, cafeID, bookingID int64, systems models.AssignedSystems, start time.Time) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[bookingID]
	if !ok || b.CafeID != cafeID || b.Status != models.BookingStatusBooked || b.PermanentlyCancelled || !b.OTPVerified() {
		return nil, ErrConflict
	}

	terminals := make([]*models.Terminal, 0, len(systems))
	for _, sys := range systems {
		t, ok := s.terminal(cafeID, sys.TerminalID)
		if !ok || t.Status != models.TerminalStatusAvailable {
			return nil, ErrConflict
		}
		terminals = append(terminals, t)
	}

	for _, t := range terminals {
		id := bookingID
		t.Status = models.TerminalStatusActive
		t.ActiveBookingID = &id
		t.UpdatedAt = start
	}
	end := start.Add(utils.HoursToDuration(b.TotalHours()))
	b.Status = models.BookingStatusActive
	b.AssignedSystems = append(models.AssignedSystems{}, systems...)
	b.SessionStartTime = &start
	b.SessionEndTime = &end
	b.UpdatedAt = start
	return cloneBooking(b), nil
}

// releaseTerminals frees only terminals still held by the booking. Callers hold s.mu.
func (s *MemoryStore) releaseTerminals(cafeID, bookingID int64, now time.Time) {
	cafe, ok := s.cafes[cafeID]
	if !ok {
		return
	}
	for ri := range cafe.Rooms {
		for ti := range cafe.Rooms[ri].Terminals {
			t := &cafe.Rooms[ri].Terminals[ti]
			if t.Status == models.TerminalStatusActive && t.ActiveBookingID != nil && *t.ActiveBookingID == bookingID {
				t.Status = models.TerminalStatusAvailable
				t.ActiveBookingID = nil
				t.UpdatedAt = now
			}
		}
	}
}

func (s *MemoryStore) CompleteBooking(_ context.Context, cafeID, bookingID int64, now time.Time) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[bookingID]
	if !ok || b.CafeID != cafeID || b.Status != models.BookingStatusActive {
		return nil, ErrConflict
	}
	return s.complete(b, now), nil
}

func (s *MemoryStore) ExpireBooking(_ context.Context, cafeID, bookingID int64, now time.Time) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[bookingID]
	if !ok || b.CafeID != cafeID || b.Status != models.BookingStatusActive {
		return nil, ErrConflict
	}
	if b.SessionEndTime == nil || b.SessionEndTime.After(now) {
		return nil, ErrConflict
	}
	return s.complete(b, now), nil
}

// complete moves b to completed and frees its terminals. Callers hold s.mu.
func (s *MemoryStore) complete(b *models.Booking, now time.Time) *models.Booking {
	b.Status = models.BookingStatusCompleted
	b.CompletedAt = &now
	b.UpdatedAt = now
	s.releaseTerminals(b.CafeID, b.ID, now)
	return cloneBooking(b)
}

func (s *MemoryStore) CancelBooking(_ context.Context, cafeID, bookingID int64, now, windowStart time.Time) (*models.Booking, *models.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[bookingID]
	if !ok || b.CafeID != cafeID || b.PermanentlyCancelled {
		return nil, nil, ErrConflict
	}
	if b.Status != models.BookingStatusBooked && b.Status != models.BookingStatusActive {
		return nil, nil, ErrConflict
	}
	if b.SessionStartTime != nil && !b.SessionStartTime.After(windowStart) {
		return nil, nil, ErrConflict
	}

	b.Status = models.BookingStatusCancelled
	b.PermanentlyCancelled = true
	b.CancelledAt = &now
	b.UpdatedAt = now
	s.releaseTerminals(cafeID, bookingID, now)

	var refund *models.Refund
	if b.Payment.Status == models.PaymentStatusCompleted {
		refund = &models.Refund{
			ID:        uuid.NewString(),
			BookingID: b.ID,
			CafeID:    b.CafeID,
			Method:    b.Payment.Method,
			Amount:    b.Payment.Amount,
			Status:    models.RefundStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		stored := *refund
		s.refunds[refund.ID] = &stored
	}
	return cloneBooking(b), refund, nil
}

func (s *MemoryStore) ExtendBooking(_ context.Context, cafeID, bookingID int64, hours float64, amount decimal.Decimal, now time.Time) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[bookingID]
	if !ok || b.CafeID != cafeID || b.PermanentlyCancelled {
		return nil, ErrConflict
	}
	switch b.Status {
	case models.BookingStatusBooked:
	case models.BookingStatusActive:
		if !b.SessionEndTime.After(now) {
			return nil, ErrConflict
		}
	default:
		return nil, ErrConflict
	}

	b.ExtendedTime += hours
	if b.Status == models.BookingStatusActive {
		end := b.SessionStartTime.Add(utils.HoursToDuration(b.TotalHours()))
		b.SessionEndTime = &end
	}
	if b.ExtensionPaymentStatus == models.PaymentStatusPending {
		b.ExtensionPaymentAmount = b.ExtensionPaymentAmount.Add(amount)
	} else {
		b.ExtensionPaymentAmount = amount
	}
	b.ExtensionPaymentStatus = models.PaymentStatusPending
	b.TotalPrice = b.TotalPrice.Add(amount)
	b.UpdatedAt = now
	return cloneBooking(b), nil
}

func (s *MemoryStore) SetExtensionPaymentStatus(_ context.Context, cafeID, bookingID int64, status models.PaymentStatus, now time.Time) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[bookingID]
	if !ok || b.CafeID != cafeID || b.ExtensionPaymentStatus != models.PaymentStatusPending {
		return nil, ErrConflict
	}
	b.ExtensionPaymentStatus = status
	b.UpdatedAt = now
	return cloneBooking(b), nil
}

func (s *MemoryStore) ConsumeOTP(_ context.Context, cafeID, bookingID int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[bookingID]
	if !ok || b.CafeID != cafeID || b.Status != models.BookingStatusBooked || !b.RequiresOTP() || b.OTPConsumedAt != nil {
		return ErrConflict
	}
	b.OTPConsumedAt = &now
	b.UpdatedAt = now
	return nil
}

// --- refunds ---

func (s *MemoryStore) GetRefundByBookingID(_ context.Context, bookingID int64) (*models.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rf := range s.refunds {
		if rf.BookingID == bookingID {
			c := *rf
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListPendingRefunds(_ context.Context, now time.Time, limit int) ([]models.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	refunds := []models.Refund{}
	for _, rf := range s.refunds {
		if until, claimed := s.refundClaims[rf.ID]; claimed && until.After(now) {
			continue
		}
		if rf.Status == models.RefundStatusPending {
			refunds = append(refunds, *rf)
		}
	}
	sort.Slice(refunds, func(i, j int) bool { return refunds[i].CreatedAt.Before(refunds[j].CreatedAt) })
	if limit > 0 && len(refunds) > limit {
		refunds = refunds[:limit]
	}
	return refunds, nil
}

func (s *MemoryStore) ClaimRefund(_ context.Context, refundID string, now time.Time, lease time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rf, ok := s.refunds[refundID]
	if !ok || rf.Status != models.RefundStatusPending {
		return ErrConflict
	}
	if until, claimed := s.refundClaims[refundID]; claimed && until.After(now) {
		return ErrConflict
	}
	s.refundClaims[refundID] = now.Add(lease)
	rf.UpdatedAt = now
	return nil
}

func (s *MemoryStore) UpdateRefundResult(_ context.Context, refundID string, result models.RefundDescriptor, now time.Time) (*models.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rf, ok := s.refunds[refundID]
	if !ok || rf.Status != models.RefundStatusPending {
		return nil, ErrConflict
	}
	rf.Method = result.Method
	rf.Amount = result.Amount
	rf.Status = result.Status
	rf.Message = result.Message
	rf.Attempts++
	rf.UpdatedAt = now
	delete(s.refundClaims, refundID)
	c := *rf
	return &c, nil
}

func (s *MemoryStore) RecordRefundAttempt(_ context.Context, refundID string, message string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rf, ok := s.refunds[refundID]; ok && rf.Status == models.RefundStatusPending {
		rf.Attempts++
		rf.Message = message
		rf.UpdatedAt = now
		delete(s.refundClaims, refundID)
	}
	return nil
}

// --- customers ---

func (s *MemoryStore) CreateCustomer(_ context.Context, customer *models.RegisteredCustomer) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextCustomerID++
	customer.ID = s.nextCustomerID
	now := time.Now()
	customer.CreatedAt = now
	customer.UpdatedAt = now
	c := *customer
	s.customers[c.ID] = &c
	return customer.ID, nil
}

func (s *MemoryStore) GetCustomerByID(_ context.Context, id int64) (*models.RegisteredCustomer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

func cloneCafe(c *models.Cafe) *models.Cafe {
	out := *c
	out.Rooms = make([]models.Room, len(c.Rooms))
	for ri, room := range c.Rooms {
		out.Rooms[ri] = models.Room{Name: room.Name, Terminals: make([]models.Terminal, len(room.Terminals))}
		for ti, t := range room.Terminals {
			if t.ActiveBookingID != nil {
				id := *t.ActiveBookingID
				t.ActiveBookingID = &id
			}
			out.Rooms[ri].Terminals[ti] = t
		}
	}
	return &out
}

func cloneBooking(b *models.Booking) *models.Booking {
	out := *b
	out.SystemsBooked = append(models.SystemRequirements{}, b.SystemsBooked...)
	out.AssignedSystems = append(models.AssignedSystems{}, b.AssignedSystems...)
	out.Customer.CustomerID = cloneInt64(b.Customer.CustomerID)
	out.SessionStartTime = cloneTime(b.SessionStartTime)
	out.SessionEndTime = cloneTime(b.SessionEndTime)
	out.OTPConsumedAt = cloneTime(b.OTPConsumedAt)
	out.CancelledAt = cloneTime(b.CancelledAt)
	out.CompletedAt = cloneTime(b.CompletedAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
