package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"

	"gfc/internal/admission"
	"gfc/internal/build"
	"gfc/internal/checkout"
	"gfc/internal/deploy"
	"gfc/internal/event"
	"gfc/internal/journal"
	"gfc/internal/runner"
)

const testCommit = "a1b2c3d4e5f6a7b8c9d0a1b2c3d4e5f6a7b8c9d0"

type serverOptions struct {
	maxBuilds int
	pattern   string
	noDeploy  bool
	detach    bool
	devMode   bool
	runner    runner.Runner
}

func newTestServer(t *testing.T, opts serverOptions) *Server {
	t.Helper()

	if opts.maxBuilds == 0 {
		opts.maxBuilds = 2
	}
	if opts.pattern == "" {
		opts.pattern = ".*"
	}
	if opts.runner == nil {
		opts.runner = &runner.Fake{}
	}

	logger := slog.New(slog.DiscardHandler)
	gate := admission.NewGate(opts.maxBuilds)

	j, err := journal.Open()
	if err != nil {
		t.Fatalf("opening journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })

	builder := &build.Builder{
		Checkout: &checkout.Checkout{Runner: opts.runner, SSH: &checkout.SSHMaterial{}, Logger: logger},
		Deployer: &deploy.Deployer{
			Argv:     []string{"docker", "compose", "up", "-d"},
			Disabled: opts.noDeploy,
			Detach:   opts.detach,
			Runner:   opts.runner,
			Logger:   logger,
		},
		ConfigFileName: "gfc.yaml",
		Logger:         logger,
	}

	return &Server{
		Logger:  logger,
		Gate:    gate,
		Filter:  &event.Filter{Allow: regexp.MustCompile(`\A(?:` + opts.pattern + `)\z`), Ref: "refs/heads/main"},
		Builder: builder,
		Journal: j,
		UseSSH:  true,
		Secret:  testSecret,
		DevMode: opts.devMode,
		// limiters stays nil: rate limiting is off in handler tests.
	}
}

func pushPayload(ref, commit string) []byte {
	return []byte(fmt.Sprintf(`{
		"ref": %q,
		"after": %q,
		"repository": {
			"ssh_url": "git@git.example.com:team/app.git",
			"clone_url": "https://git.example.com/team/app.git"
		}
	}`, ref, commit))
}

func signedRequest(body []byte, eventType string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gitea-Event", eventType)
	req.Header.Set("X-Gitea-Delivery", "delivery-42")
	req.Header.Set("X-Gitea-Signature", makeTestSignature(body, testSecret))
	return req
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestWebhook_SuccessfulPushDeploysEventCommit(t *testing.T) {
	fake := &runner.Fake{}
	s := newTestServer(t, serverOptions{runner: fake})

	rec := do(s, signedRequest(pushPayload("refs/heads/main", testCommit), "push"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	calls := fake.Calls()
	if len(calls) != 5 {
		t.Fatalf("got %d process invocations, want 4 git + 1 deploy", len(calls))
	}
	fetch := calls[2].Argv
	if fetch[len(fetch)-1] != testCommit {
		t.Errorf("fetch used %q, want the event commit", fetch[len(fetch)-1])
	}
	if s.Gate.InFlight() != 0 {
		t.Errorf("admission slot leaked: in-flight = %d", s.Gate.InFlight())
	}
}

func TestWebhook_InvalidSignatureRejected(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	body := pushPayload("refs/heads/main", testCommit)
	req := signedRequest(body, "push")
	req.Header.Set("X-Gitea-Signature", makeTestSignature(body, "wrong-secret-wrong-secret-wrong-secret"))

	rec := do(s, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWebhook_MissingSignatureRejected(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	req := signedRequest(pushPayload("refs/heads/main", testCommit), "push")
	req.Header.Del("X-Gitea-Signature")

	if rec := do(s, req); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWebhook_DevModeBypassesSignature(t *testing.T) {
	fake := &runner.Fake{}
	s := newTestServer(t, serverOptions{devMode: true, runner: fake})

	req := signedRequest(pushPayload("refs/heads/main", testCommit), "push")
	req.Header.Del("X-Gitea-Signature")

	if rec := do(s, req); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 in dev mode", rec.Code)
	}
	if len(fake.Calls()) == 0 {
		t.Error("build did not run in dev mode")
	}
}

func TestWebhook_DisallowedRepositoryRejectedBeforeOtherFilters(t *testing.T) {
	fake := &runner.Fake{}
	s := newTestServer(t, serverOptions{pattern: `git@allowed\.example\.com:.*`, runner: fake})

	// Would also fail the event-type filter, but the repository check runs
	// first and is the one that must answer.
	rec := do(s, signedRequest(pushPayload("refs/heads/main", testCommit), "create"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "repository not allowed") {
		t.Errorf("body = %q", rec.Body.String())
	}
	if len(fake.Calls()) != 0 {
		t.Error("disallowed repository must not trigger any process")
	}
}

// Scenario: a non-push event is a silent no-op with no admission change.
func TestWebhook_NonPushEventIsNoOp(t *testing.T) {
	fake := &runner.Fake{}
	s := newTestServer(t, serverOptions{runner: fake})

	rec := do(s, signedRequest(pushPayload("refs/heads/main", testCommit), "create"))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if len(fake.Calls()) != 0 {
		t.Error("non-push event must not trigger checkout or deploy")
	}
	if s.Gate.InFlight() != 0 {
		t.Error("non-push event touched the admission counter")
	}
}

func TestWebhook_OtherRefIsNoOp(t *testing.T) {
	fake := &runner.Fake{}
	s := newTestServer(t, serverOptions{runner: fake})

	rec := do(s, signedRequest(pushPayload("refs/heads/feature", testCommit), "push"))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if len(fake.Calls()) != 0 {
		t.Error("non-deployable ref must not trigger a build")
	}
}

func TestWebhook_MissingCommitFailsClosed(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	rec := do(s, signedRequest(pushPayload("refs/heads/main", ""), "push"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWebhook_MalformedJSONFailsClosed(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	rec := do(s, signedRequest([]byte(`{"ref": "refs/heads/`), "push"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWebhook_WrongContentTypeRejected(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	req := signedRequest(pushPayload("refs/heads/main", testCommit), "push")
	req.Header.Set("Content-Type", "text/plain")

	if rec := do(s, req); rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", rec.Code)
	}
}

func TestWebhook_OversizedPayloadRejected(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	big := append(pushPayload("refs/heads/main", testCommit), make([]byte, MaxPayloadBytes)...)
	req := signedRequest(big, "push")

	if rec := do(s, req); rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

// Scenario: deploy failure responds 500, releases the slot exactly once, and
// removes the working directory.
func TestWebhook_DeployFailure(t *testing.T) {
	fake := &runner.Fake{}
	fake.Script(
		runner.FakeStep{Result: &runner.Result{ExitCode: 0}},
		runner.FakeStep{Result: &runner.Result{ExitCode: 0}},
		runner.FakeStep{Result: &runner.Result{ExitCode: 0}},
		runner.FakeStep{Result: &runner.Result{ExitCode: 0}},
		runner.FakeStep{Result: &runner.Result{ExitCode: 1, Stderr: []byte("secret-leaking output")}},
	)
	s := newTestServer(t, serverOptions{runner: fake})

	rec := do(s, signedRequest(pushPayload("refs/heads/main", testCommit), "push"))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret-leaking output") {
		t.Error("process output leaked into the HTTP response")
	}
	if s.Gate.InFlight() != 0 {
		t.Errorf("admission slot leaked after failure: in-flight = %d", s.Gate.InFlight())
	}

	calls := fake.Calls()
	if _, err := os.Stat(calls[0].Dir); !os.IsNotExist(err) {
		t.Error("working directory survived a failed build")
	}
}

// Scenario: deploys disabled, checkout still runs, response is 200.
func TestWebhook_NoDeployMode(t *testing.T) {
	fake := &runner.Fake{}
	s := newTestServer(t, serverOptions{noDeploy: true, runner: fake})

	rec := do(s, signedRequest(pushPayload("refs/heads/main", testCommit), "push"))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	calls := fake.Calls()
	if len(calls) != 4 {
		t.Fatalf("got %d invocations, want exactly the 4 git steps", len(calls))
	}
	for _, call := range calls {
		if call.Argv[0] != "git" {
			t.Errorf("unexpected invocation %v with deploys disabled", call.Argv)
		}
	}
}

// blockingRunner holds every invocation until released, so a build can be
// kept in flight while a concurrent request is issued.
type blockingRunner struct {
	release chan struct{}
	started chan struct{}
	once    sync.Once
	inner   runner.Fake
}

func (b *blockingRunner) Run(ctx context.Context, spec runner.Spec) (*runner.Result, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.inner.Run(ctx, spec)
}

func (b *blockingRunner) Start(ctx context.Context, spec runner.Spec) (runner.Handle, error) {
	return b.inner.Start(ctx, spec)
}

// Scenario: capacity 1, two simultaneous pushes; one builds to 200, the
// other is turned away with 429 while the first is in flight.
func TestWebhook_CapacityExceededWhileBuildInFlight(t *testing.T) {
	blocking := &blockingRunner{
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
	s := newTestServer(t, serverOptions{maxBuilds: 1, runner: blocking})

	firstDone := make(chan *httptest.ResponseRecorder)
	go func() {
		firstDone <- do(s, signedRequest(pushPayload("refs/heads/main", testCommit), "push"))
	}()

	<-blocking.started // first build now holds the only slot

	second := do(s, signedRequest(pushPayload("refs/heads/main", testCommit), "push"))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("concurrent request status = %d, want 429", second.Code)
	}
	if got := s.Gate.InFlight(); got != 1 {
		t.Errorf("in-flight during build = %d, want 1", got)
	}

	close(blocking.release)
	first := <-firstDone
	if first.Code != http.StatusOK {
		t.Errorf("first request status = %d, want 200", first.Code)
	}
	if s.Gate.InFlight() != 0 {
		t.Errorf("in-flight after build = %d, want 0", s.Gate.InFlight())
	}
}

func TestWebhook_PathIsNotDistinguished(t *testing.T) {
	fake := &runner.Fake{}
	s := newTestServer(t, serverOptions{runner: fake})

	body := pushPayload("refs/heads/main", testCommit)
	req := httptest.NewRequest(http.MethodPost, "/some/arbitrary/hook/path", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gitea-Event", "push")
	req.Header.Set("X-Gitea-Signature", makeTestSignature(body, testSecret))

	if rec := do(s, req); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 on arbitrary POST path", rec.Code)
	}
}

func TestWebhook_RecordsJournalEntries(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	do(s, signedRequest(pushPayload("refs/heads/main", testCommit), "push"))

	entries, err := s.Journal.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d journal entries, want 1", len(entries))
	}
	if entries[0].Status != "success" || entries[0].Commit != testCommit {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, serverOptions{maxBuilds: 3})

	rec := do(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"capacity":3`) {
		t.Errorf("healthz body = %s", body)
	}
}

func TestStatus_ReturnsRecentBuilds(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	do(s, signedRequest(pushPayload("refs/heads/main", testCommit), "push"))

	rec := do(s, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), testCommit) {
		t.Errorf("status body missing the build: %s", rec.Body.String())
	}
}
