package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/config"
)

var testMessage = port.Message{
	To:        "a@x.edu",
	ToName:    "Alice",
	Subject:   "Alumni Network - Email Verification Code",
	PlainBody: "Verification Code: 123456",
	HTMLBody:  "<p>Verification Code: <code>123456</code></p>",
}

type stubProvider struct {
	name string
	err  error

	mu    sync.Mutex
	calls []port.Message
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Send(_ context.Context, msg port.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, msg)
	return p.err
}

func (p *stubProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func TestBrevoSenderPostsTransactionalEmail(t *testing.T) {
	var got brevoRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "secret-key", r.Header.Get("api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"messageId":"<id@brevo>"}`))
	}))
	defer server.Close()

	sender, err := NewBrevoSender(config.BrevoSettings{APIKey: "secret-key", APIURL: server.URL}, Sender{Email: "noreply@alumni.local", Name: "Alumni Network"}, server.Client())
	require.NoError(t, err)

	require.NoError(t, sender.Send(context.Background(), testMessage))
	require.Equal(t, "noreply@alumni.local", got.Sender.Email)
	require.Equal(t, []brevoContact{{Email: "a@x.edu", Name: "Alice"}}, got.To)
	require.Equal(t, testMessage.Subject, got.Subject)
	require.Equal(t, testMessage.PlainBody, got.TextContent)
	require.Equal(t, testMessage.HTMLBody, got.HTMLContent)
}

func TestBrevoSenderReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"unauthorized"}`))
	}))
	defer server.Close()

	sender, err := NewBrevoSender(config.BrevoSettings{APIKey: "bad", APIURL: server.URL}, Sender{Email: "noreply@alumni.local"}, server.Client())
	require.NoError(t, err)

	err = sender.Send(context.Background(), testMessage)
	require.Error(t, err)
	require.Contains(t, err.Error(), "status=401")
}

func TestNewBrevoSenderRequiresKey(t *testing.T) {
	_, err := NewBrevoSender(config.BrevoSettings{}, Sender{Email: "noreply@alumni.local"}, nil)
	require.Error(t, err)
}

func TestFallbackMailerUsesNextProvider(t *testing.T) {
	primary := &stubProvider{name: "brevo", err: errors.New("quota exceeded")}
	secondary := &stubProvider{name: "smtp"}
	mailer := NewFallbackMailer(zaptest.NewLogger(t), primary, nil, secondary)

	require.Equal(t, []string{"brevo", "smtp"}, mailer.Providers())
	require.NoError(t, mailer.Send(context.Background(), testMessage))
	require.Equal(t, 1, primary.count())
	require.Equal(t, 1, secondary.count())
}

func TestFallbackMailerStopsAtFirstSuccess(t *testing.T) {
	primary := &stubProvider{name: "brevo"}
	secondary := &stubProvider{name: "smtp"}
	mailer := NewFallbackMailer(nil, primary, secondary)

	require.NoError(t, mailer.Send(context.Background(), testMessage))
	require.Zero(t, secondary.count())
}

func TestFallbackMailerJoinsErrors(t *testing.T) {
	down := errors.New("connection refused")
	mailer := NewFallbackMailer(nil,
		&stubProvider{name: "brevo", err: errors.New("quota exceeded")},
		&stubProvider{name: "smtp", err: down},
	)

	err := mailer.Send(context.Background(), testMessage)
	require.ErrorIs(t, err, down)
	require.Contains(t, err.Error(), "brevo")

	require.ErrorIs(t, NewFallbackMailer(nil).Send(context.Background(), testMessage), ErrNoProvider)
}

func TestFallbackMailerRejectsInvalidMessage(t *testing.T) {
	provider := &stubProvider{name: "smtp"}
	mailer := NewFallbackMailer(nil, provider)

	require.Error(t, mailer.Send(context.Background(), port.Message{Subject: "x", PlainBody: "y"}))
	require.Zero(t, provider.count())
}

func TestAsyncMailerDeliversInBackground(t *testing.T) {
	provider := &stubProvider{name: "smtp"}
	mailer := NewAsyncMailer(provider, AsyncConfig{Workers: 2, QueueSize: 8}, zaptest.NewLogger(t))

	var results sync.WaitGroup
	results.Add(3)
	mailer.OnResult(func(error) { results.Done() })

	for i := 0; i < 3; i++ {
		require.NoError(t, mailer.Send(context.Background(), testMessage))
	}
	results.Wait()
	mailer.Close()

	require.Equal(t, 3, provider.count())
	require.ErrorIs(t, mailer.Send(context.Background(), testMessage), ErrMailerClosed)
}

type blockingProvider struct {
	release chan struct{}
	started chan struct{}
}

func (p *blockingProvider) Name() string { return "blocking" }

func (p *blockingProvider) Send(context.Context, port.Message) error {
	p.started <- struct{}{}
	<-p.release
	return nil
}

func TestAsyncMailerDropsWhenQueueFull(t *testing.T) {
	provider := &blockingProvider{release: make(chan struct{}), started: make(chan struct{}, 1)}
	mailer := NewAsyncMailer(provider, AsyncConfig{Workers: 1, QueueSize: 1, SendTimeout: time.Second}, nil)

	require.NoError(t, mailer.Send(context.Background(), testMessage))
	<-provider.started
	require.NoError(t, mailer.Send(context.Background(), testMessage))
	require.ErrorIs(t, mailer.Send(context.Background(), testMessage), ErrQueueFull)
	require.Equal(t, uint64(1), mailer.Dropped())

	close(provider.release)
	mailer.Close()
}

func TestAsyncMailerCountsFailures(t *testing.T) {
	provider := &stubProvider{name: "smtp", err: errors.New("down")}
	mailer := NewAsyncMailer(provider, AsyncConfig{}, nil)

	require.NoError(t, mailer.Send(context.Background(), testMessage))
	mailer.Close()
	require.Equal(t, uint64(1), mailer.Failed())
}

func TestAsyncMailerDeliversEveryAcceptedMessageAcrossClose(t *testing.T) {
	provider := &stubProvider{name: "smtp"}
	mailer := NewAsyncMailer(provider, AsyncConfig{Workers: 2, QueueSize: 256}, nil)

	var (
		senders  sync.WaitGroup
		accepted atomic.Int64
	)
	for i := 0; i < 8; i++ {
		senders.Add(1)
		go func() {
			defer senders.Done()
			for j := 0; j < 20; j++ {
				err := mailer.Send(context.Background(), testMessage)
				if err == nil {
					accepted.Add(1)
					continue
				}
				if !errors.Is(err, ErrMailerClosed) && !errors.Is(err, ErrQueueFull) {
					t.Errorf("unexpected send error: %v", err)
				}
			}
		}()
	}
	mailer.Close()
	senders.Wait()

	require.Equal(t, int(accepted.Load()), provider.count())
	require.ErrorIs(t, mailer.Send(context.Background(), testMessage), ErrMailerClosed)
}

func TestBuildMessageMultipart(t *testing.T) {
	payload, err := buildMessage(Sender{Email: "noreply@alumni.local", Name: "Alumni Network"}, testMessage)
	require.NoError(t, err)

	text := string(payload)
	require.Contains(t, text, "From: Alumni Network <noreply@alumni.local>")
	require.Contains(t, text, "To: Alice <a@x.edu>")
	require.Contains(t, text, "multipart/alternative")
	require.Contains(t, text, "Content-Type: text/plain")
	require.Contains(t, text, "Content-Type: text/html")
	require.True(t, strings.HasSuffix(text, "--\r\n"))

	plain, err := buildMessage(Sender{Email: "noreply@alumni.local"}, port.Message{To: "a@x.edu", Subject: "s", PlainBody: "body"})
	require.NoError(t, err)
	require.Contains(t, string(plain), `Content-Type: text/plain; charset="UTF-8"`)
	require.NotContains(t, string(plain), "multipart")
}

func TestNewFromConfigFallsBackToLogMailer(t *testing.T) {
	mailer, err := NewFromConfig(config.MailSettings{From: "noreply@alumni.local"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Equal(t, []string{"log"}, mailer.Providers())
	require.NoError(t, mailer.Send(context.Background(), testMessage))

	mailer, err = NewFromConfig(config.MailSettings{
		From:  "noreply@alumni.local",
		Brevo: config.BrevoSettings{APIKey: "key"},
		SMTP:  config.SMTPSettings{Host: "smtp.example.org", Port: 587},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"brevo", "smtp"}, mailer.Providers())
}
