package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, ErrorCode(err), "error: %v", err)
}

func TestBookSession_Success(t *testing.T) {
	h := newHarness()

	result, err := h.booking.BookSession(context.Background(), testSlug, bookingRequest("2025-03-01", "10:00"))
	require.NoError(t, err)

	session := result.Session
	assert.Equal(t, models.SessionStatusPending, session.Status)
	assert.Equal(t, models.SessionPaymentPending, session.PaymentStatus)
	assert.Equal(t, models.BookingSourcePublic, session.BookingSource)
	assert.Equal(t, models.PlatformJitsi, session.Platform)
	assert.True(t, session.Amount.Equal(decimal.NewFromInt(1000)))
	require.NotNil(t, session.MeetingLink)
	assert.False(t, result.MeetingDeferred)

	require.NotNil(t, session.ScheduledAt)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, h.loc).Unix(), session.ScheduledAt.Unix())

	assert.Equal(t, "ravi@example.com", result.Client.Email)
	assert.Equal(t, 1, result.Client.TotalSessions)
	assert.True(t, result.Client.TotalAmountPaid.IsZero())

	assert.Equal(t, []models.EmailKind{models.EmailBookingConfirmation}, h.emails.kinds())
	assert.Equal(t, 1, h.views.count(testConsultantID))
}

func TestBookSession_SlotConflict(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.booking.BookSession(ctx, testSlug, bookingRequest("2025-03-01", "10:00"))
	require.NoError(t, err)

	other := bookingRequest("2025-03-01", "10:00")
	other.Client.Email = "someone.else@example.com"
	_, err = h.booking.BookSession(ctx, testSlug, other)
	requireCode(t, err, CodeSlotConflict)

	// the rejected request must not leave a client behind
	assert.Len(t, h.db.clients, 1)

	// a different time is fine
	_, err = h.booking.BookSession(ctx, testSlug, bookingRequest("2025-03-01", "11:00"))
	assert.NoError(t, err)
}

func TestBookSession_ConcurrentBookingsForOneSlot(t *testing.T) {
	h := newHarness()

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.booking.BookSession(context.Background(), testSlug, bookingRequest("2025-03-01", "10:00"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if ErrorCode(err) == CodeSlotConflict {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)
}

func TestBookSession_SlotFreedByCancellation(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	first, err := h.booking.BookSession(ctx, testSlug, bookingRequest("2025-03-01", "10:00"))
	require.NoError(t, err)

	_, err = h.booking.CancelSession(ctx, testConsultantID, first.Session.ID)
	require.NoError(t, err)

	_, err = h.booking.BookSession(ctx, testSlug, bookingRequest("2025-03-01", "10:00"))
	assert.NoError(t, err)
}

func TestBookSession_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(h *harness, req *BookingRequest)
		slug   string
		code   string
	}{
		{
			name:   "past slot",
			mutate: func(_ *harness, req *BookingRequest) { req.ScheduledDate = strPtr("2025-01-15") },
			code:   CodePastSlot,
		},
		{
			name:   "price mismatch",
			mutate: func(_ *harness, req *BookingRequest) { req.Amount = decimal.NewFromInt(10) },
			code:   CodePriceMismatch,
		},
		{
			name:   "unknown session type",
			mutate: func(_ *harness, req *BookingRequest) { req.SessionType = "therapy" },
			code:   CodeUnknownSessionType,
		},
		{
			name:   "date without time",
			mutate: func(_ *harness, req *BookingRequest) { req.ScheduledTime = nil },
			code:   CodeInvalidRequest,
		},
		{
			name:   "malformed time",
			mutate: func(_ *harness, req *BookingRequest) { req.ScheduledTime = strPtr("25:99") },
			code:   CodeInvalidRequest,
		},
		{
			name:   "unsupported platform",
			mutate: func(_ *harness, req *BookingRequest) { req.Platform = "SKYPE" },
			code:   CodeUnsupportedPlatform,
		},
		{
			name: "consultant not approved",
			mutate: func(h *harness, _ *BookingRequest) {
				h.db.consultants[testConsultantID].IsApproved = false
			},
			code: CodeConsultantUnavailable,
		},
		{
			name: "consultant inactive",
			mutate: func(h *harness, _ *BookingRequest) {
				h.db.consultants[testConsultantID].IsActive = false
			},
			code: CodeConsultantUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			req := bookingRequest("2025-03-01", "10:00")
			tt.mutate(h, &req)

			_, err := h.booking.BookSession(context.Background(), testSlug, req)
			requireCode(t, err, tt.code)
			assert.Empty(t, h.db.sessions)
		})
	}
}

func TestBookSession_UnknownSlug(t *testing.T) {
	h := newHarness()
	_, err := h.booking.BookSession(context.Background(), "nobody", bookingRequest("2025-03-01", "10:00"))

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "consultant", nf.Resource)
}

func TestBookSession_LenientPublicPrice(t *testing.T) {
	h := newHarness()
	h.booking.cfg.LenientPublicPrice = true

	req := bookingRequest("2025-03-01", "10:00")
	req.Amount = decimal.NewFromInt(10)
	result, err := h.booking.BookSession(context.Background(), testSlug, req)
	require.NoError(t, err)

	// the configured price is charged, never the client's figure
	assert.True(t, result.Session.Amount.Equal(decimal.NewFromInt(1000)))

	// the authenticated path stays strict
	_, err = h.booking.CreateSession(context.Background(), testConsultantID, req)
	requireCode(t, err, CodePriceMismatch)
}

func TestBookSession_AmountWithinEpsilon(t *testing.T) {
	h := newHarness()
	req := bookingRequest("2025-03-01", "10:00")
	req.Amount = decimal.RequireFromString("999.995")

	_, err := h.booking.BookSession(context.Background(), testSlug, req)
	assert.NoError(t, err)
}

func TestBookSession_PublicPathDefersMeetingOnCredentialProblems(t *testing.T) {
	tests := []struct {
		name   string
		cred   *models.MeetingCredential
		reason string
	}{
		{name: "no credential", reason: CodeCredentialMissing},
		{
			name: "expired credential",
			cred: &models.MeetingCredential{
				ConsultantID: testConsultantID,
				Platform:     models.PlatformGoogleMeet,
				AccessToken:  "stale",
				ExpiresAt:    timePtr(time.Now().Add(-time.Hour)),
			},
			reason: CodeCredentialExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			if tt.cred != nil {
				require.NoError(t, memCredentials{h.db}.Upsert(context.Background(), tt.cred))
			}

			req := bookingRequest("2025-03-01", "10:00")
			req.Platform = models.PlatformGoogleMeet
			result, err := h.booking.BookSession(context.Background(), testSlug, req)
			require.NoError(t, err)

			assert.True(t, result.MeetingDeferred)
			assert.Equal(t, tt.reason, result.MeetingDeferredReason)
			assert.Nil(t, result.Session.MeetingLink)
			assert.True(t, result.Session.NeedsMeetingLink())
			assert.Zero(t, h.google.calls)
		})
	}
}

func TestCreateSession_FailsOnCredentialProblems(t *testing.T) {
	h := newHarness()
	req := bookingRequest("2025-03-01", "10:00")
	req.Platform = models.PlatformGoogleMeet

	_, err := h.booking.CreateSession(context.Background(), testConsultantID, req)

	var pErr *ProviderError
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, CodeCredentialMissing, pErr.Code)
	assert.Equal(t, string(models.PlatformGoogleMeet), pErr.Provider)
	assert.Empty(t, h.db.sessions)
}

func TestCreateSession_ProviderOutage(t *testing.T) {
	h := newHarness()
	h.jitsi.err = errBoom

	_, err := h.booking.CreateSession(context.Background(), testConsultantID, bookingRequest("2025-03-01", "10:00"))
	requireCode(t, err, CodeProviderUnavailable)
}

func TestCreateSession_WithValidCredential(t *testing.T) {
	h := newHarness()
	require.NoError(t, memCredentials{h.db}.Upsert(context.Background(), &models.MeetingCredential{
		ConsultantID: testConsultantID,
		Platform:     models.PlatformGoogleMeet,
		AccessToken:  "fresh",
		ExpiresAt:    timePtr(time.Now().Add(time.Hour)),
	}))

	req := bookingRequest("2025-03-01", "10:00")
	req.Platform = models.PlatformGoogleMeet
	result, err := h.booking.CreateSession(context.Background(), testConsultantID, req)
	require.NoError(t, err)

	require.NotNil(t, result.Session.MeetingLink)
	assert.Equal(t, models.BookingSourceManual, result.Session.BookingSource)
	assert.Equal(t, 1, h.google.calls)
}

func TestCreateSession_OfflinePaymentSettlesImmediately(t *testing.T) {
	h := newHarness()
	req := bookingRequest("2025-03-01", "10:00")
	req.PaymentMethod = models.PaymentMethodCash

	result, err := h.booking.CreateSession(context.Background(), testConsultantID, req)
	require.NoError(t, err)

	assert.Equal(t, models.SessionStatusConfirmed, result.Session.Status)
	assert.Equal(t, models.SessionPaymentPaid, result.Session.PaymentStatus)
	assert.True(t, result.Client.TotalAmountPaid.Equal(decimal.NewFromInt(1000)))

	require.Len(t, h.db.txns, 1)
	for _, txn := range h.db.txns {
		assert.Equal(t, models.TransactionCompleted, txn.Status)
		assert.Equal(t, models.TransactionMethodOffline, txn.Method)
		require.NotNil(t, txn.SessionID)
		assert.Equal(t, result.Session.ID, *txn.SessionID)
	}
}

func TestBookSession_PublicPathIgnoresOfflineMethod(t *testing.T) {
	h := newHarness()
	req := bookingRequest("2025-03-01", "10:00")
	req.PaymentMethod = models.PaymentMethodCash

	result, err := h.booking.BookSession(context.Background(), testSlug, req)
	require.NoError(t, err)

	assert.Equal(t, models.PaymentMethodOnline, result.Session.PaymentMethod)
	assert.Equal(t, models.SessionPaymentPending, result.Session.PaymentStatus)
	assert.Empty(t, h.db.txns)
}

func TestCreateSession_Unscheduled(t *testing.T) {
	h := newHarness()

	result, err := h.booking.CreateSession(context.Background(), testConsultantID, bookingRequest("", ""))
	require.NoError(t, err)

	assert.Nil(t, result.Session.ScheduledAt)
	assert.Nil(t, result.Session.MeetingLink)
	assert.False(t, result.MeetingDeferred)
	assert.Zero(t, h.jitsi.calls)
}

func TestBookSession_ClientsAreScopedPerConsultant(t *testing.T) {
	h := newHarness()
	const otherID = "22222222-2222-2222-2222-222222222222"
	h.db.consultants[otherID] = &models.Consultant{
		ID: otherID, Slug: "other", Name: "Other", Email: "other@example.com",
		IsApproved: true, IsActive: true, DefaultPlatform: models.PlatformJitsi,
	}
	h.db.prices[otherID+"|strategy"] = &models.SessionTypePrice{
		ConsultantID: otherID, SessionType: "strategy", Price: decimal.NewFromInt(1000), Currency: "INR", DurationMinutes: 30,
	}

	a, err := h.booking.BookSession(context.Background(), testSlug, bookingRequest("2025-03-01", "10:00"))
	require.NoError(t, err)
	b, err := h.booking.BookSession(context.Background(), "other", bookingRequest("2025-03-01", "10:00"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Client.ID, b.Client.ID)
	assert.Equal(t, a.Client.Email, b.Client.Email)
}

func TestBookSession_SideEffectFailuresDoNotFailBooking(t *testing.T) {
	h := newHarness()
	h.emails.err = errBoom
	h.views.err = errBoom

	result, err := h.booking.BookSession(context.Background(), testSlug, bookingRequest("2025-03-01", "10:00"))
	require.NoError(t, err)
	assert.NotNil(t, result.Session)
	assert.Len(t, h.db.sessions, 1)
}

func TestCancelSession(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	booked, err := h.booking.BookSession(ctx, testSlug, bookingRequest("2025-03-01", "10:00"))
	require.NoError(t, err)
	id := booked.Session.ID

	t.Run("other consultant cannot see it", func(t *testing.T) {
		_, err := h.booking.CancelSession(ctx, "22222222-2222-2222-2222-222222222222", id)
		var nf *NotFoundError
		assert.True(t, errors.As(err, &nf))
	})

	t.Run("cancels", func(t *testing.T) {
		cancelled, err := h.booking.CancelSession(ctx, testConsultantID, id)
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusCancelled, cancelled.Status)
		assert.NotNil(t, cancelled.CancelledAt)
		assert.Contains(t, h.emails.kinds(), models.EmailSessionCancelled)
	})

	t.Run("second cancel is rejected", func(t *testing.T) {
		_, err := h.booking.CancelSession(ctx, testConsultantID, id)
		requireCode(t, err, CodeAlreadyCancelled)
	})

	t.Run("completed session is rejected", func(t *testing.T) {
		other, err := h.booking.BookSession(ctx, testSlug, bookingRequest("2025-03-02", "10:00"))
		require.NoError(t, err)
		h.db.sessions[other.Session.ID].Status = models.SessionStatusCompleted

		_, err = h.booking.CancelSession(ctx, testConsultantID, other.Session.ID)
		requireCode(t, err, CodeNotCancellable)
	})
}

func timePtr(t time.Time) *time.Time { return &t }
