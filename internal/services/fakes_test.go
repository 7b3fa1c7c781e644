package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/consultdesk/booking-backend/internal/config"
	"github.com/consultdesk/booking-backend/internal/database"
	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/consultdesk/booking-backend/pkg/meeting"
	"github.com/consultdesk/booking-backend/pkg/razorpay"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// memDB is an in-memory stand-in for PostgreSQL. Conditional updates and
// the slot/settlement uniqueness rules mirror the SQL in internal/database.
type memDB struct {
	mu          sync.Mutex
	consultants map[string]*models.Consultant
	prices      map[string]*models.SessionTypePrice
	clients     map[string]*models.Client
	sessions    map[string]*models.Session
	txns        map[string]*models.PaymentTransaction
	quotations  map[string]*models.Quotation
	creds       map[string]*models.MeetingCredential
	events      map[string]models.WebhookEvent
}

func newMemDB() *memDB {
	return &memDB{
		consultants: map[string]*models.Consultant{},
		prices:      map[string]*models.SessionTypePrice{},
		clients:     map[string]*models.Client{},
		sessions:    map[string]*models.Session{},
		txns:        map[string]*models.PaymentTransaction{},
		quotations:  map[string]*models.Quotation{},
		creds:       map[string]*models.MeetingCredential{},
		events:      map[string]models.WebhookEvent{},
	}
}

func copySession(s *models.Session) *models.Session {
	c := *s
	return &c
}

func copyClient(c *models.Client) *models.Client {
	cp := *c
	return &cp
}

func copyTxn(t *models.PaymentTransaction) *models.PaymentTransaction {
	c := *t
	return &c
}

// ---- consultants ----

type memConsultants struct{ db *memDB }

func (m memConsultants) GetByID(_ context.Context, id string) (*models.Consultant, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if c, ok := m.db.consultants[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m memConsultants) GetBySlug(_ context.Context, slug string) (*models.Consultant, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, c := range m.db.consultants {
		if c.Slug == slug {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m memConsultants) GetSessionTypePrice(_ context.Context, consultantID, sessionType string) (*models.SessionTypePrice, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if p, ok := m.db.prices[consultantID+"|"+sessionType]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

// ---- clients ----

type memClients struct{ db *memDB }

func (m memClients) FindOrCreate(_ context.Context, consultantID string, contact models.ClientContact) (*models.Client, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	email := strings.ToLower(strings.TrimSpace(contact.Email))
	for _, c := range m.db.clients {
		if c.ConsultantID == consultantID && c.Email == email {
			return copyClient(c), nil
		}
	}
	c := &models.Client{
		ID:              uuid.New().String(),
		ConsultantID:    consultantID,
		Name:            contact.Name,
		Email:           email,
		Phone:           contact.Phone,
		TotalAmountPaid: decimal.Zero,
	}
	m.db.clients[c.ID] = c
	return copyClient(c), nil
}

func (m memClients) GetByID(_ context.Context, id string) (*models.Client, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if c, ok := m.db.clients[id]; ok {
		return copyClient(c), nil
	}
	return nil, nil
}

// ---- sessions ----

type memSessions struct {
	db *memDB
	// createErr, when set, is returned by CreateBooked
	createErr error
}

func (m *memSessions) slotTakenLocked(consultantID, date, clock string) bool {
	for _, s := range m.db.sessions {
		if s.ConsultantID == consultantID && s.ScheduledDate != nil && s.ScheduledTime != nil &&
			*s.ScheduledDate == date && *s.ScheduledTime == clock && s.Status != models.SessionStatusCancelled {
			return true
		}
	}
	return false
}

func (m *memSessions) HasActiveSlot(_ context.Context, consultantID, date, clock string) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return m.slotTakenLocked(consultantID, date, clock), nil
}

func (m *memSessions) CreateBooked(_ context.Context, p database.CreateSessionParams) (*models.Session, *models.Client, error) {
	if m.createErr != nil {
		return nil, nil, m.createErr
	}
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	s := p.Session
	if s.ScheduledDate != nil && s.ScheduledTime != nil && m.slotTakenLocked(s.ConsultantID, *s.ScheduledDate, *s.ScheduledTime) {
		return nil, nil, database.ErrSlotTaken
	}
	client, ok := m.db.clients[s.ClientID]
	if !ok {
		return nil, nil, fmt.Errorf("client %s missing", s.ClientID)
	}

	stored := copySession(s)
	stored.UpdatedAt = s.CreatedAt
	m.db.sessions[s.ID] = stored

	client.TotalSessions++
	if p.OfflineTransaction != nil {
		m.db.txns[p.OfflineTransaction.ID] = copyTxn(p.OfflineTransaction)
		client.TotalAmountPaid = client.TotalAmountPaid.Add(p.OfflineTransaction.Amount)
	}
	return copySession(stored), copyClient(client), nil
}

func (m *memSessions) GetByID(_ context.Context, id string) (*models.Session, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if s, ok := m.db.sessions[id]; ok {
		return copySession(s), nil
	}
	return nil, nil
}

func (m *memSessions) SetMeetingDetails(_ context.Context, id string, details models.MeetingDetails) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.sessions[id]
	if !ok || s.MeetingLink != nil {
		return false, nil
	}
	link, meetingID := details.Link, details.ID
	s.MeetingLink = &link
	s.MeetingID = &meetingID
	s.MeetingPassword = details.Password
	return true, nil
}

func (m *memSessions) Cancel(_ context.Context, id string, at time.Time) (*models.Session, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.sessions[id]
	if !ok || (s.Status != models.SessionStatusPending && s.Status != models.SessionStatusConfirmed) {
		return nil, database.ErrSessionNotCancellable
	}
	s.Status = models.SessionStatusCancelled
	s.CancelledAt = &at
	return copySession(s), nil
}

func (m *memSessions) ListAwaitingMeetingLink(_ context.Context, consultantID string, platform models.MeetingPlatform, now time.Time) ([]models.Session, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.Session
	for _, s := range m.db.sessions {
		if s.ConsultantID == consultantID && s.Platform == platform && s.NeedsMeetingLink() && s.ScheduledAt.After(now) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memSessions) Dashboard(_ context.Context, consultantID string, now time.Time) (*models.ConsultantDashboard, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	d := &models.ConsultantDashboard{ConsultantID: consultantID, Revenue: decimal.Zero, Refunded: decimal.Zero, GeneratedAt: now}
	for _, s := range m.db.sessions {
		if s.ConsultantID != consultantID {
			continue
		}
		d.TotalSessions++
		switch s.Status {
		case models.SessionStatusPending:
			d.PendingSessions++
		case models.SessionStatusCompleted:
			d.CompletedSessions++
		case models.SessionStatusCancelled:
			d.CancelledSessions++
		}
	}
	for _, t := range m.db.txns {
		if t.ConsultantID == consultantID && t.Status == models.TransactionCompleted {
			d.Revenue = d.Revenue.Add(t.Amount)
		}
	}
	return d, nil
}

// ---- transactions ----

type memTransactions struct{ db *memDB }

func (m memTransactions) CreatePending(_ context.Context, txn *models.PaymentTransaction) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	txn.Status = models.TransactionPending
	m.db.txns[txn.ID] = copyTxn(txn)
	return nil
}

func (m memTransactions) AttachGatewayOrder(_ context.Context, id, orderID string, response models.JSONB) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	t, ok := m.db.txns[id]
	if !ok || t.Status != models.TransactionPending || t.GatewayOrderID != nil {
		return database.ErrNotPending
	}
	t.GatewayOrderID = &orderID
	t.GatewayResponse = response
	return nil
}

func (m memTransactions) MarkOrderFailed(_ context.Context, id, code, description string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	t, ok := m.db.txns[id]
	if !ok || t.Status != models.TransactionPending {
		return database.ErrNotPending
	}
	t.Status = models.TransactionFailed
	t.ErrorCode = &code
	t.ErrorDescription = &description
	return nil
}

func (m memTransactions) find(match func(*models.PaymentTransaction) bool) (*models.PaymentTransaction, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, t := range m.db.txns {
		if match(t) {
			return copyTxn(t), nil
		}
	}
	return nil, nil
}

func (m memTransactions) GetByID(_ context.Context, id string) (*models.PaymentTransaction, error) {
	return m.find(func(t *models.PaymentTransaction) bool { return t.ID == id })
}

func (m memTransactions) GetByOrderID(_ context.Context, orderID string) (*models.PaymentTransaction, error) {
	return m.find(func(t *models.PaymentTransaction) bool {
		return t.GatewayOrderID != nil && *t.GatewayOrderID == orderID
	})
}

func (m memTransactions) GetByPaymentID(_ context.Context, paymentID string) (*models.PaymentTransaction, error) {
	return m.find(func(t *models.PaymentTransaction) bool {
		return t.GatewayPaymentID != nil && *t.GatewayPaymentID == paymentID
	})
}

func (m memTransactions) SumCompletedSince(_ context.Context, consultantID string, since time.Time) (decimal.Decimal, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	total := decimal.Zero
	for _, t := range m.db.txns {
		if t.ConsultantID == consultantID && t.Status == models.TransactionCompleted && t.ProcessedAt != nil && !t.ProcessedAt.Before(since) {
			total = total.Add(t.Amount)
		}
	}
	return total, nil
}

func (m memTransactions) Complete(_ context.Context, p models.CompletionParams) (*models.SettlementResult, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	var txn *models.PaymentTransaction
	for _, t := range m.db.txns {
		if t.GatewayOrderID != nil && *t.GatewayOrderID == p.GatewayOrderID && t.Status == models.TransactionPending {
			txn = t
		}
	}
	if txn == nil {
		return nil, database.ErrNotPending
	}
	if txn.SessionID != nil {
		for _, other := range m.db.txns {
			if other.SessionID != nil && *other.SessionID == *txn.SessionID && other.Status == models.TransactionCompleted {
				return nil, database.ErrSessionAlreadySettled
			}
		}
	}

	paymentID, at := p.GatewayPaymentID, p.ProcessedAt
	txn.Status = models.TransactionCompleted
	txn.GatewayPaymentID = &paymentID
	txn.GatewayResponse = p.GatewayResponse
	txn.ProcessedAt = &at

	result := &models.SettlementResult{Transaction: copyTxn(txn)}
	clientID := txn.ClientID
	if txn.SessionID != nil {
		s := m.db.sessions[*txn.SessionID]
		s.PaymentStatus = models.SessionPaymentPaid
		if s.Status == models.SessionStatusPending || s.Status == models.SessionStatusAbandoned {
			s.Status = models.SessionStatusConfirmed
		}
		result.Session = copySession(s)
	}
	if txn.QuotationID != nil {
		q := m.db.quotations[*txn.QuotationID]
		if q.Payable() {
			q.Status = models.QuotationAccepted
			q.AcceptedAt = &at
			cp := *q
			result.Quotation = &cp
		}
	}
	if clientID != nil {
		c := m.db.clients[*clientID]
		c.TotalAmountPaid = c.TotalAmountPaid.Add(txn.Amount)
		result.Client = copyClient(c)
	}
	return result, nil
}

func (m memTransactions) Fail(_ context.Context, p models.FailureParams) (*models.PaymentTransaction, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, t := range m.db.txns {
		if t.GatewayOrderID != nil && *t.GatewayOrderID == p.GatewayOrderID && t.Status == models.TransactionPending {
			code, desc, at := p.ErrorCode, p.ErrorDescription, p.ProcessedAt
			t.Status = models.TransactionFailed
			if p.GatewayPaymentID != nil {
				t.GatewayPaymentID = p.GatewayPaymentID
			}
			t.ErrorCode = &code
			t.ErrorDescription = &desc
			t.ProcessedAt = &at
			return copyTxn(t), nil
		}
	}
	return nil, database.ErrNotPending
}

func (m memTransactions) Refund(_ context.Context, p models.RefundParams) (*models.SettlementResult, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	t, ok := m.db.txns[p.TransactionID]
	if !ok || t.Status != models.TransactionCompleted {
		return nil, database.ErrNotCompleted
	}
	refundID, at := p.RefundID, p.RefundedAt
	t.Status = models.TransactionRefunded
	t.RefundedAmount = p.RefundedAmount
	t.RefundID = &refundID
	t.RefundedAt = &at

	result := &models.SettlementResult{Transaction: copyTxn(t)}
	if t.SessionID != nil {
		s := m.db.sessions[*t.SessionID]
		s.PaymentStatus = models.SessionPaymentRefunded
		s.Status = models.SessionStatusReturned
		result.Session = copySession(s)
	}
	if t.ClientID != nil {
		c := m.db.clients[*t.ClientID]
		c.TotalAmountPaid = c.TotalAmountPaid.Sub(p.RefundedAmount)
		result.Client = copyClient(c)
	}
	return result, nil
}

// ---- quotations, credentials, webhook events ----

type memQuotations struct{ db *memDB }

func (m memQuotations) GetByID(_ context.Context, id string) (*models.Quotation, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if q, ok := m.db.quotations[id]; ok {
		cp := *q
		return &cp, nil
	}
	return nil, nil
}

type memCredentials struct{ db *memDB }

func (m memCredentials) Get(_ context.Context, consultantID string, platform models.MeetingPlatform) (*models.MeetingCredential, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if c, ok := m.db.creds[consultantID+"|"+string(platform)]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m memCredentials) Upsert(_ context.Context, cred *models.MeetingCredential) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	cp := *cred
	m.db.creds[cred.ConsultantID+"|"+string(cred.Platform)] = &cp
	return nil
}

type memWebhookEvents struct{ db *memDB }

func (m memWebhookEvents) Seen(_ context.Context, eventID string) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	_, ok := m.db.events[eventID]
	return ok, nil
}

func (m memWebhookEvents) Record(_ context.Context, event models.WebhookEvent) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.events[event.EventID]; !ok {
		m.db.events[event.EventID] = event
	}
	return nil
}

// ---- collaborators ----

type recordingAudits struct {
	mu     sync.Mutex
	audits []*models.PaymentAudit
}

func (r *recordingAudits) Log(_ context.Context, audit *models.PaymentAudit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audits = append(r.audits, audit)
	return nil
}

func (r *recordingAudits) ListByOrderID(_ context.Context, orderID string) ([]models.PaymentAudit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PaymentAudit
	for _, a := range r.audits {
		if a.GatewayOrderID != nil && *a.GatewayOrderID == orderID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *recordingAudits) count(eventType models.PaymentEventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.audits {
		if a.EventType == eventType {
			n++
		}
	}
	return n
}

type recordingEmails struct {
	mu     sync.Mutex
	emails []models.Email
	err    error
}

func (r *recordingEmails) Enqueue(_ context.Context, email models.Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.emails = append(r.emails, email)
	return nil
}

func (r *recordingEmails) kinds() []models.EmailKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]models.EmailKind, 0, len(r.emails))
	for _, e := range r.emails {
		kinds = append(kinds, e.Kind())
	}
	return kinds
}

type recordingViews struct {
	mu          sync.Mutex
	invalidated map[string]int
	err         error
}

func (r *recordingViews) InvalidateConsultant(_ context.Context, consultantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.invalidated == nil {
		r.invalidated = map[string]int{}
	}
	r.invalidated[consultantID]++
	return r.err
}

func (r *recordingViews) count(consultantID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invalidated[consultantID]
}

// fakeProvider creates meetings without calling out
type fakeProvider struct {
	platform string
	needs    bool
	err      error
	mu       sync.Mutex
	calls    int
}

func (p *fakeProvider) Platform() string         { return p.platform }
func (p *fakeProvider) RequiresCredential() bool { return p.needs }
func (p *fakeProvider) CreateMeeting(_ context.Context, req meeting.Request, _ *oauth2.Token) (*meeting.Link, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	id := fmt.Sprintf("%s-%d", strings.ToLower(p.platform), p.calls)
	return &meeting.Link{URL: "https://meet.example.com/" + id, ID: id}, nil
}

// fakeGateway is a scripted payment gateway
type fakeGateway struct {
	mu       sync.Mutex
	orders   []razorpay.OrderRequest
	payments map[string]*razorpay.Payment
	refunds  []razorpay.RefundRequest

	createErr error
	fetchErr  error
	refundErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{payments: map[string]*razorpay.Payment{}}
}

func (g *fakeGateway) KeyID() string { return "rzp_test_key" }

func (g *fakeGateway) CreateOrder(_ context.Context, req razorpay.OrderRequest) (*razorpay.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.orders = append(g.orders, req)
	return &razorpay.Order{
		ID:       fmt.Sprintf("order_%d", len(g.orders)),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
		Notes:    req.Notes,
	}, nil
}

// capture registers a captured payment for an order, as the gateway would
// after checkout
func (g *fakeGateway) capture(orderID, paymentID string, minor int64, notes map[string]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[paymentID] = &razorpay.Payment{
		ID:       paymentID,
		Amount:   minor,
		Currency: "INR",
		Status:   razorpay.PaymentCaptured,
		OrderID:  orderID,
		Captured: true,
		Notes:    notes,
	}
}

func (g *fakeGateway) FetchPayment(_ context.Context, paymentID string) (*razorpay.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	p, ok := g.payments[paymentID]
	if !ok {
		return nil, &razorpay.APIError{StatusCode: 400, Code: "BAD_REQUEST_ERROR", Description: "payment not found"}
	}
	cp := *p
	return &cp, nil
}

func (g *fakeGateway) Refund(_ context.Context, paymentID string, req razorpay.RefundRequest) (*razorpay.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refunds = append(g.refunds, req)
	return &razorpay.Refund{
		ID:        fmt.Sprintf("rfnd_%d", len(g.refunds)),
		Amount:    req.Amount,
		Currency:  "INR",
		PaymentID: paymentID,
		Status:    "processed",
	}, nil
}

type memDashboardCache struct {
	mu      sync.Mutex
	entries map[string]*models.ConsultantDashboard
	getErr  error
}

func (c *memDashboardCache) GetDashboard(_ context.Context, consultantID string) (*models.ConsultantDashboard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.entries[consultantID], nil
}

func (c *memDashboardCache) SetDashboard(_ context.Context, d *models.ConsultantDashboard) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string]*models.ConsultantDashboard{}
	}
	c.entries[d.ConsultantID] = d
	return nil
}

// ---- harness ----

const (
	testKeySecret     = "key_secret_for_tests"
	testWebhookSecret = "webhook_secret_for_tests"
	testConsultantID  = "11111111-1111-1111-1111-111111111111"
	testSlug          = "asha-rao"
)

var errBoom = errors.New("boom")

// harness wires every service against one memDB, with the clock fixed at
// 2025-02-01 09:00 in Asia/Kolkata
type harness struct {
	db           *memDB
	sessions     *memSessions
	transactions memTransactions
	gateway      *fakeGateway
	emails       *recordingEmails
	views        *recordingViews
	audits       *recordingAudits
	google       *fakeProvider
	jitsi        *fakeProvider

	meetings   *MeetingService
	booking    *BookingService
	payments   *PaymentGatewayService
	reconciler *PaymentReconciler
	webhooks   *WebhookService

	loc *time.Location
	now time.Time
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newHarness() *harness {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.FixedZone("IST", 5*3600+1800)
	}
	h := &harness{
		db:      newMemDB(),
		gateway: newFakeGateway(),
		emails:  &recordingEmails{},
		views:   &recordingViews{},
		audits:  &recordingAudits{},
		google:  &fakeProvider{platform: string(models.PlatformGoogleMeet), needs: true},
		jitsi:   &fakeProvider{platform: string(models.PlatformJitsi)},
		loc:     loc,
		now:     time.Date(2025, 2, 1, 9, 0, 0, 0, loc),
	}
	h.sessions = &memSessions{db: h.db}
	h.transactions = memTransactions{db: h.db}
	logger := testLogger()
	clock := func() time.Time { return h.now }

	provisioner := meeting.NewProvisioner(time.Minute, h.google, h.jitsi)

	h.meetings = NewMeetingService(provisioner, memCredentials{h.db}, h.sessions, memConsultants{h.db},
		memClients{h.db}, h.emails, h.views, logger)
	h.meetings.now = clock

	h.booking = NewBookingService(memConsultants{h.db}, memClients{h.db}, h.sessions, h.meetings, h.emails, h.views,
		config.BookingConfig{Timezone: "Asia/Kolkata", PriceEpsilon: 0.01}, loc, logger)
	h.booking.now = clock

	h.payments = NewPaymentGatewayService(h.gateway, h.transactions, h.sessions, memQuotations{h.db}, h.audits,
		config.PaymentConfig{Currency: "INR", MinAmount: 1, MaxAmount: 500000, DailyCap: 200000, RefundWindowDays: 180},
		0.01, loc, logger)
	h.payments.now = clock

	h.reconciler = NewPaymentReconciler(h.gateway, h.transactions, h.audits, h.meetings, h.emails, h.views,
		testKeySecret, 180, logger)
	h.reconciler.now = clock

	h.webhooks = NewWebhookService(h.reconciler, memWebhookEvents{h.db}, h.audits, testWebhookSecret, logger)
	h.webhooks.now = clock

	h.db.consultants[testConsultantID] = &models.Consultant{
		ID:              testConsultantID,
		Slug:            testSlug,
		Name:            "Asha Rao",
		Email:           "asha@example.com",
		IsApproved:      true,
		IsActive:        true,
		DefaultPlatform: models.PlatformJitsi,
	}
	h.db.prices[testConsultantID+"|strategy"] = &models.SessionTypePrice{
		ConsultantID:    testConsultantID,
		SessionType:     "strategy",
		Price:           decimal.NewFromInt(1000),
		Currency:        "INR",
		DurationMinutes: 60,
	}
	return h
}

func strPtr(s string) *string { return &s }

func bookingRequest(date, clock string) BookingRequest {
	req := BookingRequest{
		Client:      models.ClientContact{Name: "Ravi Kumar", Email: "Ravi@Example.com"},
		SessionType: "strategy",
		Amount:      decimal.NewFromInt(1000),
	}
	if date != "" {
		req.ScheduledDate = strPtr(date)
		req.ScheduledTime = strPtr(clock)
	}
	return req
}

func (h *harness) client(id string) *models.Client {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()
	return copyClient(h.db.clients[id])
}

func (h *harness) session(id string) *models.Session {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()
	return copySession(h.db.sessions[id])
}

func (h *harness) txn(id string) *models.PaymentTransaction {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()
	return copyTxn(h.db.txns[id])
}
