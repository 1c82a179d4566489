package notify

import (
	"context"
	"errors"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/constants"
	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/entity"
	"github.com/YorickdeJong/energy-contracts/internal/repository"
	"github.com/YorickdeJong/energy-contracts/internal/repository/memory"
	"github.com/YorickdeJong/energy-contracts/internal/repository/repotest"
)

type fakeMailer struct {
	mu   sync.Mutex
	err  error
	sent []Message
}

func (m *fakeMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func TestInvitationMessage(t *testing.T) {
	inv := &entity.Invitation{Token: uuid.New(), Email: "john@example.com", ExpiresAt: time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC)}
	h := &entity.Household{Name: "Canal House"}
	owner := &entity.User{FirstName: "Lena", LastName: "Visser"}

	msg, err := InvitationMessage("http://localhost:3000/", inv, h, owner)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Subject != "You've been invited to join Canal House" {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
	link := "http://localhost:3000/register-invitation/" + inv.Token.String()
	if !strings.Contains(msg.Text, link) || !strings.Contains(msg.HTML, link) {
		t.Errorf("Expected link %s in both bodies", link)
	}
	if !strings.Contains(msg.Text, "Lena Visser") || !strings.Contains(msg.Text, "January 22, 2024") {
		t.Errorf("unexpected text body %q", msg.Text)
	}
	if msg.To != "john@example.com" {
		t.Errorf("unexpected recipient %s", msg.To)
	}
}

func seedInvitation(t *testing.T, store repository.Store) *entity.Invitation {
	t.Helper()
	owner, h := repotest.SeedOwner(t, store)
	inv := &entity.Invitation{
		Email:       "john@example.com",
		HouseholdID: h.ID,
		InvitedBy:   owner.ID,
		Status:      constants.InvitationPending,
		ExpiresAt:   time.Now().Add(7 * 24 * time.Hour),
	}
	if err := store.Repos().Invitations.Create(context.Background(), inv); err != nil {
		t.Fatal(err)
	}
	return inv
}

func TestInviterRecordsFailureThenResends(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	inv := seedInvitation(t, store)
	mailer := &fakeMailer{err: errors.New("smtp: connection refused")}
	inviter := NewInviter(store, mailer, "http://localhost:3000", nil)

	if err := inviter.Deliver(ctx, inv); err == nil {
		t.Fatal("Expected delivery error")
	}
	got, err := store.Repos().Invitations.Get(ctx, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SentAt != nil || got.SendError == nil || got.SendAttempts != 1 {
		t.Fatalf("Expected recorded failure, got %+v", got)
	}

	mailer.err = nil
	n, err := inviter.ResendPending(ctx, 10)
	if err != nil || n != 1 {
		t.Fatalf("Expected one resend, got %d, %v", n, err)
	}
	got, _ = store.Repos().Invitations.Get(ctx, inv.ID)
	if got.SentAt == nil || got.SendError != nil {
		t.Errorf("Expected invitation marked sent, got %+v", got)
	}

	n, _ = inviter.ResendPending(ctx, 10)
	if n != 0 {
		t.Errorf("Expected nothing left to resend, got %d", n)
	}
}

func TestInviterGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	seedInvitation(t, store)
	inviter := NewInviter(store, &fakeMailer{err: errors.New("down")}, "", nil)

	for i := 0; i < MaxSendAttempts+2; i++ {
		_, _ = inviter.ResendPending(ctx, 10)
	}
	list, err := store.Repos().Invitations.ListUnsent(ctx, time.Now(), MaxSendAttempts, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("Expected exhausted invitation to be skipped, got %d", len(list))
	}
}

func TestNewMailerDrivers(t *testing.T) {
	if m, err := New(common.MailConfig{Driver: "log"}, nil); err != nil || m == nil {
		t.Errorf("log driver: %v", err)
	}
	if _, err := New(common.MailConfig{Driver: "smtp"}, nil); !common.IsCode(err, common.CodeConfiguration) {
		t.Errorf("Expected CONFIGURATION_ERROR for smtp without host, got %v", err)
	}
	if _, err := New(common.MailConfig{Driver: "pigeon"}, nil); !common.IsCode(err, common.CodeConfiguration) {
		t.Errorf("Expected CONFIGURATION_ERROR for unknown driver, got %v", err)
	}
}

// fakeSMTP accepts one message without TLS or auth.
func fakeSMTP(t *testing.T) (addr string, received chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	received = make(chan string, 1)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 localhost ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
			switch cmd {
			case "EHLO", "HELO":
				_ = tp.PrintfLine("250-localhost")
				_ = tp.PrintfLine("250 8BITMIME")
			case "MAIL", "RCPT", "RSET", "NOOP":
				_ = tp.PrintfLine("250 OK")
			case "DATA":
				_ = tp.PrintfLine("354 go ahead")
				body, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				received <- string(body)
				_ = tp.PrintfLine("250 queued")
			case "QUIT":
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("502 unsupported")
			}
		}
	}()
	return ln.Addr().String(), received
}

func TestSMTPMailerSend(t *testing.T) {
	addr, received := fakeSMTP(t)
	host, portStr, _ := net.SplitHostPort(addr)
	port, _ := strconv.Atoi(portStr)

	m := NewSMTPMailer(SMTPConfig{Host: host, Port: port, From: "noreply@energy.test", Timeout: 5 * time.Second}, nil)
	err := m.Send(context.Background(), Message{To: "john@example.com", Subject: "You've been invited to join Canal House", Text: "hello", HTML: "<p>hello</p>"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case body := <-received:
		for _, want := range []string{"To: john@example.com", "Subject: You've been invited to join Canal House", "multipart/alternative", "text/html"} {
			if !strings.Contains(body, want) {
				t.Errorf("Expected %q in message", want)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}
