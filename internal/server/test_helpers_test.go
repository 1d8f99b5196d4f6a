package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/chat"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/content"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/database"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/documents"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/events"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/media"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/portfolio"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	testOwnerUsername = "owner"
	testOwnerPassword = "correct horse battery staple"
	testSigningSecret = "server-test-secret"
	testMediaBaseURL  = "http://media.test/media"
)

type recordingPublisher struct {
	mu        sync.Mutex
	published []events.DocumentPublished
	err       error
}

func (p *recordingPublisher) PublishDocumentPublished(_ context.Context, event events.DocumentPublished) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, event)
	return nil
}

func (p *recordingPublisher) Close() error {
	return nil
}

func (p *recordingPublisher) recorded() []events.DocumentPublished {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.DocumentPublished(nil), p.published...)
}

type stubCompleter struct {
	reply string
	err   error
}

func (s stubCompleter) Complete(context.Context, string, []chat.Message, string) (string, error) {
	return s.reply, s.err
}

type testServer struct {
	server        *httptest.Server
	tokens        *auth.TokenIssuer
	store         *documents.Store
	sessions      *SessionRegistry
	notifications *NotificationDispatcher
	publisher     *recordingPublisher
	mediaRoot     string
	token         string
}

type testServerOptions struct {
	healthChecks []HealthCheck
	completer    chat.Completer
}

func newTestServer(testContext *testing.T, options testServerOptions) *testServer {
	testContext.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:portfolio_server_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := database.OpenSQLite(dsn, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	idProvider := content.NewUUIDProvider()

	store, err := documents.NewStore(documents.StoreConfig{Database: db, IDProvider: idProvider})
	if err != nil {
		testContext.Fatalf("failed to build documents store: %v", err)
	}
	profile, err := portfolio.NewService(portfolio.ServiceConfig{Database: db, IDProvider: idProvider})
	if err != nil {
		testContext.Fatalf("failed to build portfolio service: %v", err)
	}

	mediaRoot := testContext.TempDir()
	blobStore, err := media.NewLocalStore(mediaRoot, testMediaBaseURL)
	if err != nil {
		testContext.Fatalf("failed to build local store: %v", err)
	}
	uploader, err := media.NewUploader(media.UploaderConfig{Store: blobStore, IDProvider: idProvider})
	if err != nil {
		testContext.Fatalf("failed to build uploader: %v", err)
	}

	completer := options.completer
	if completer == nil {
		completer = stubCompleter{reply: "Hello from the assistant."}
	}
	chatService, err := chat.NewService(chat.ServiceConfig{
		Completer: completer,
		Persona:   portfolio.NewPersona(profile, "Assistant"),
	})
	if err != nil {
		testContext.Fatalf("failed to build chat service: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(testOwnerPassword), bcrypt.MinCost)
	if err != nil {
		testContext.Fatalf("failed to hash password: %v", err)
	}
	gate, err := auth.NewCredentialGate(auth.CredentialGateConfig{Username: testOwnerUsername, PasswordHash: hash})
	if err != nil {
		testContext.Fatalf("failed to build credential gate: %v", err)
	}
	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        "portfolio-auth",
		Audience:      "portfolio-admin",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		testContext.Fatalf("failed to build token issuer: %v", err)
	}

	sessions := NewSessionRegistry(SessionRegistryConfig{Gateway: store, IDProvider: idProvider})
	notifications := NewNotificationDispatcher()
	publisher := &recordingPublisher{}

	handler, err := NewHTTPHandler(Dependencies{
		Credentials:   gate,
		TokenManager:  tokens,
		Documents:     store,
		Portfolio:     profile,
		Chat:          chatService,
		Uploader:      uploader,
		MediaFiles:    blobStore,
		Publisher:     publisher,
		Notifications: notifications,
		Sessions:      sessions,
		HealthChecks:  options.healthChecks,
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	server := httptest.NewServer(handler)
	testContext.Cleanup(func() {
		server.Close()
		sessions.Shutdown()
	})

	token, _, err := tokens.IssueToken(context.Background(), testOwnerUsername)
	if err != nil {
		testContext.Fatalf("failed to issue token: %v", err)
	}

	return &testServer{
		server:        server,
		tokens:        tokens,
		store:         store,
		sessions:      sessions,
		notifications: notifications,
		publisher:     publisher,
		mediaRoot:     mediaRoot,
		token:         token,
	}
}

// do sends a JSON request. body may be nil; authorized adds the admin token.
func (s *testServer) do(testContext *testing.T, method, path string, body any, authorized bool) *http.Response {
	testContext.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			testContext.Fatalf("failed to encode request: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	request, err := http.NewRequest(method, s.server.URL+path, reader)
	if err != nil {
		testContext.Fatalf("failed to build request: %v", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if authorized {
		request.Header.Set("Authorization", "Bearer "+s.token)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		testContext.Fatalf("request %s %s failed: %v", method, path, err)
	}
	return response
}

type multipartFile struct {
	name        string
	contentType string
	body        string
}

func (s *testServer) upload(testContext *testing.T, path, field string, files []multipartFile) *http.Response {
	testContext.Helper()
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	for _, file := range files {
		header := make(map[string][]string)
		header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name=%q; filename=%q`, field, file.name)}
		header["Content-Type"] = []string{file.contentType}
		part, err := writer.CreatePart(header)
		if err != nil {
			testContext.Fatalf("failed to create part: %v", err)
		}
		if _, err := io.WriteString(part, file.body); err != nil {
			testContext.Fatalf("failed to write part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		testContext.Fatalf("failed to close multipart writer: %v", err)
	}
	request, err := http.NewRequest(http.MethodPost, s.server.URL+path, &buffer)
	if err != nil {
		testContext.Fatalf("failed to build request: %v", err)
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())
	request.Header.Set("Authorization", "Bearer "+s.token)
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		testContext.Fatalf("upload %s failed: %v", path, err)
	}
	return response
}

func decodeResponse[T any](testContext *testing.T, response *http.Response, wantStatus int) T {
	testContext.Helper()
	defer response.Body.Close()
	payload, _ := io.ReadAll(response.Body)
	if response.StatusCode != wantStatus {
		testContext.Fatalf("unexpected status: got %d, want %d, body %s", response.StatusCode, wantStatus, payload)
	}
	var decoded T
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &decoded); err != nil {
			testContext.Fatalf("failed to decode response %s: %v", payload, err)
		}
	}
	return decoded
}

func expectStatus(testContext *testing.T, response *http.Response, wantStatus int) {
	testContext.Helper()
	defer response.Body.Close()
	if response.StatusCode != wantStatus {
		payload, _ := io.ReadAll(response.Body)
		testContext.Fatalf("unexpected status: got %d, want %d, body %s", response.StatusCode, wantStatus, payload)
	}
}
