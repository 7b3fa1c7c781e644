package services

import (
	"context"
	"time"

	"github.com/consultdesk/booking-backend/internal/database"
	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/consultdesk/booking-backend/pkg/meeting"
	"github.com/consultdesk/booking-backend/pkg/razorpay"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
)

// Narrow views of the repositories. The database package satisfies them;
// tests use in-memory fakes.

type ConsultantStore interface {
	GetByID(ctx context.Context, id string) (*models.Consultant, error)
	GetBySlug(ctx context.Context, slug string) (*models.Consultant, error)
	GetSessionTypePrice(ctx context.Context, consultantID, sessionType string) (*models.SessionTypePrice, error)
}

type ClientStore interface {
	FindOrCreate(ctx context.Context, consultantID string, contact models.ClientContact) (*models.Client, error)
	GetByID(ctx context.Context, id string) (*models.Client, error)
}

type SessionStore interface {
	HasActiveSlot(ctx context.Context, consultantID, date, clock string) (bool, error)
	CreateBooked(ctx context.Context, p database.CreateSessionParams) (*models.Session, *models.Client, error)
	GetByID(ctx context.Context, id string) (*models.Session, error)
	SetMeetingDetails(ctx context.Context, id string, details models.MeetingDetails) (bool, error)
	Cancel(ctx context.Context, id string, at time.Time) (*models.Session, error)
	ListAwaitingMeetingLink(ctx context.Context, consultantID string, platform models.MeetingPlatform, now time.Time) ([]models.Session, error)
	Dashboard(ctx context.Context, consultantID string, now time.Time) (*models.ConsultantDashboard, error)
}

type SessionJobStore interface {
	StartDue(ctx context.Context, now time.Time) ([]string, error)
	CompleteElapsed(ctx context.Context, now time.Time) ([]string, error)
	AbandonUnpaid(ctx context.Context, now time.Time) ([]string, error)
}

type CredentialStore interface {
	Get(ctx context.Context, consultantID string, platform models.MeetingPlatform) (*models.MeetingCredential, error)
	Upsert(ctx context.Context, cred *models.MeetingCredential) error
}

type TransactionStore interface {
	CreatePending(ctx context.Context, txn *models.PaymentTransaction) error
	AttachGatewayOrder(ctx context.Context, id, orderID string, response models.JSONB) error
	MarkOrderFailed(ctx context.Context, id, code, description string) error
	GetByID(ctx context.Context, id string) (*models.PaymentTransaction, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.PaymentTransaction, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*models.PaymentTransaction, error)
	SumCompletedSince(ctx context.Context, consultantID string, since time.Time) (decimal.Decimal, error)
	Complete(ctx context.Context, p models.CompletionParams) (*models.SettlementResult, error)
	Fail(ctx context.Context, p models.FailureParams) (*models.PaymentTransaction, error)
	Refund(ctx context.Context, p models.RefundParams) (*models.SettlementResult, error)
}

type QuotationStore interface {
	GetByID(ctx context.Context, id string) (*models.Quotation, error)
}

type WebhookEventStore interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, event models.WebhookEvent) error
}

type PaymentAuditLogger interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
}

// External collaborators

// MeetingLinkGenerator is satisfied by *meeting.Provisioner
type MeetingLinkGenerator interface {
	Supports(platform string) bool
	GenerateMeetingLink(ctx context.Context, platform string, req meeting.Request, token *oauth2.Token) (*meeting.Link, error)
}

// PaymentGateway is satisfied by *razorpay.Client
type PaymentGateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, req razorpay.OrderRequest) (*razorpay.Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*razorpay.Payment, error)
	Refund(ctx context.Context, paymentID string, req razorpay.RefundRequest) (*razorpay.Refund, error)
}

// EmailDispatcher queues an email for at-least-once delivery
type EmailDispatcher interface {
	Enqueue(ctx context.Context, email models.Email) error
}

// ViewInvalidator drops cached read views of a consultant
type ViewInvalidator interface {
	InvalidateConsultant(ctx context.Context, consultantID string) error
}

// RequestMeta is caller metadata recorded on payment audits
type RequestMeta struct {
	IP        string
	UserAgent string
	Device    string
}
