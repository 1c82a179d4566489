package notify

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/YorickdeJong/energy-contracts/internal/entity"
	"github.com/YorickdeJong/energy-contracts/internal/repository"
)

// MaxSendAttempts bounds how often an invitation email is retried.
const MaxSendAttempts = 5

type invitationData struct {
	HouseholdName string
	InviterName   string
	Link          string
	ExpiresAt     string
}

var invitationText = template.Must(template.New("text").Parse(`Hello,

{{.InviterName}} has invited you to join {{.HouseholdName}} on Energy Contracts.

Create your account with the link below:
{{.Link}}

This invitation expires on {{.ExpiresAt}}.
`))

var invitationHTML = htmltemplate.Must(htmltemplate.New("html").Parse(`<p>Hello,</p>
<p>{{.InviterName}} has invited you to join <strong>{{.HouseholdName}}</strong> on Energy Contracts.</p>
<p><a href="{{.Link}}">Create your account</a></p>
<p>This invitation expires on {{.ExpiresAt}}.</p>
`))

// InvitationLink is the registration URL carrying the invitation token.
func InvitationLink(frontendURL string, inv *entity.Invitation) string {
	return strings.TrimRight(frontendURL, "/") + "/register-invitation/" + inv.Token.String()
}

// InvitationMessage renders the invitation email.
func InvitationMessage(frontendURL string, inv *entity.Invitation, household *entity.Household, inviter *entity.User) (Message, error) {
	data := invitationData{
		HouseholdName: household.Name,
		InviterName:   "Your landlord",
		Link:          InvitationLink(frontendURL, inv),
		ExpiresAt:     inv.ExpiresAt.UTC().Format("January 2, 2006"),
	}
	if inviter != nil && strings.TrimSpace(inviter.FullName()) != "" {
		data.InviterName = inviter.FullName()
	}

	var text, html bytes.Buffer
	if err := invitationText.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render invitation text: %w", err)
	}
	if err := invitationHTML.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render invitation html: %w", err)
	}
	return Message{
		To:      inv.Email,
		Subject: "You've been invited to join " + household.Name,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

// Inviter sends invitation emails and records the outcome on the invitation.
// Send failures never undo the invitation itself.
type Inviter struct {
	store       repository.Store
	mailer      Mailer
	frontendURL string
	logger      *slog.Logger
	now         func() time.Time
}

func NewInviter(store repository.Store, mailer Mailer, frontendURL string, logger *slog.Logger) *Inviter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inviter{store: store, mailer: mailer, frontendURL: frontendURL, logger: logger, now: time.Now}
}

// Deliver sends one invitation. The returned error is informational; the
// outcome is already stored.
func (i *Inviter) Deliver(ctx context.Context, inv *entity.Invitation) error {
	repos := i.store.Repos()
	log := i.logger.With("invitation_id", inv.ID, "email", inv.Email)

	household, err := repos.Households.Get(ctx, inv.HouseholdID)
	if err != nil {
		return i.recordFailure(ctx, log, inv, err)
	}
	inviter, err := repos.Users.Get(ctx, inv.InvitedBy)
	if err != nil {
		log.Warn("invitation.inviter_lookup_failed", "error", err)
		inviter = nil
	}
	msg, err := InvitationMessage(i.frontendURL, inv, household, inviter)
	if err != nil {
		return i.recordFailure(ctx, log, inv, err)
	}
	if err := i.mailer.Send(ctx, msg); err != nil {
		return i.recordFailure(ctx, log, inv, err)
	}

	if err := repos.Invitations.MarkSent(context.WithoutCancel(ctx), inv.ID, i.now().UTC()); err != nil {
		log.Error("invitation.mark_sent_failed", "error", err)
		return err
	}
	log.Info("invitation.sent")
	return nil
}

func (i *Inviter) recordFailure(ctx context.Context, log *slog.Logger, inv *entity.Invitation, cause error) error {
	log.Error("invitation.send_failed", "error", cause)
	if err := i.store.Repos().Invitations.MarkSendFailed(context.WithoutCancel(ctx), inv.ID, cause.Error()); err != nil {
		log.Error("invitation.mark_failed_error", "error", err)
	}
	return fmt.Errorf("send invitation %s: %w", inv.ID, cause)
}

// ResendPending retries unsent, unexpired invitations. It returns how many
// were sent.
func (i *Inviter) ResendPending(ctx context.Context, limit int) (int, error) {
	pending, err := i.store.Repos().Invitations.ListUnsent(ctx, i.now().UTC(), MaxSendAttempts, limit)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, inv := range pending {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if err := i.Deliver(ctx, inv); err == nil {
			sent++
		}
	}
	if len(pending) > 0 {
		i.logger.Info("invitation.resend.done", "pending", len(pending), "sent", sent)
	}
	return sent, nil
}
