package server

import (
	"errors"
	"net/http"
	"testing"

	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/chat"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/portfolio"
)

func TestPortfolioAdminRoundTrip(testContext *testing.T) {
	harness := newTestServer(testContext, testServerOptions{})

	empty := decodeResponse[portfolio.Profile](testContext, harness.do(testContext, http.MethodGet, "/portfolio", nil, false), http.StatusOK)
	if empty.Bio != nil || len(empty.Projects) != 0 || len(empty.Interests) != 0 {
		testContext.Fatalf("expected empty profile, got %+v", empty)
	}

	expectStatus(testContext, harness.do(testContext, http.MethodPut, "/admin/portfolio/bio", portfolio.Bio{Name: "Ada", Profession: "Engineer"}, true), http.StatusOK)
	expectStatus(testContext, harness.do(testContext, http.MethodPut, "/admin/portfolio/bio", portfolio.Bio{Profession: "nameless"}, true), http.StatusBadRequest)

	projects := decodeResponse[map[string][]portfolio.Project](testContext,
		harness.do(testContext, http.MethodPut, "/admin/portfolio/projects", []portfolio.Project{
			{Title: "Compiler", Tech: []string{"Go"}},
		}, true),
		http.StatusOK)["projects"]
	if len(projects) != 1 || projects[0].ID == "" {
		testContext.Fatalf("expected stored project with id, got %+v", projects)
	}

	interests := decodeResponse[map[string][]portfolio.Interest](testContext,
		harness.do(testContext, http.MethodPut, "/admin/portfolio/interests", []portfolio.Interest{{Title: "Chess"}}, true),
		http.StatusOK)["interests"]
	if len(interests) != 1 || interests[0].Category != portfolio.DefaultCategory {
		testContext.Fatalf("expected defaulted interest, got %+v", interests)
	}
	expectStatus(testContext, harness.do(testContext, http.MethodPut, "/admin/portfolio/interests", []portfolio.Interest{{Title: "Jazz", Category: "Podcast"}}, true), http.StatusBadRequest)

	profile := decodeResponse[portfolio.Profile](testContext, harness.do(testContext, http.MethodGet, "/portfolio", nil, false), http.StatusOK)
	if profile.Bio == nil || profile.Bio.Name != "Ada" || len(profile.Projects) != 1 || len(profile.Interests) != 1 {
		testContext.Fatalf("unexpected profile %+v", profile)
	}

	expectStatus(testContext, harness.do(testContext, http.MethodDelete, "/admin/portfolio/projects/"+projects[0].ID, nil, true), http.StatusNoContent)
	expectStatus(testContext, harness.do(testContext, http.MethodDelete, "/admin/portfolio/projects/"+projects[0].ID, nil, true), http.StatusNotFound)
	expectStatus(testContext, harness.do(testContext, http.MethodDelete, "/admin/portfolio/interests/"+interests[0].ID, nil, true), http.StatusNoContent)
	expectStatus(testContext, harness.do(testContext, http.MethodPut, "/admin/portfolio/bio", portfolio.Bio{Name: "Ada"}, false), http.StatusUnauthorized)
}

func TestChatRepliesAndFallsBack(testContext *testing.T) {
	healthy := newTestServer(testContext, testServerOptions{})
	reply := decodeResponse[map[string]string](testContext,
		healthy.do(testContext, http.MethodPost, "/chat", chatRequestPayload{
			History: []chat.Message{{Role: chat.RoleUser, Text: "hi"}, {Role: chat.RoleModel, Text: "hello"}},
			Message: "What do you build?",
		}, false),
		http.StatusOK)
	if reply["reply"] != "Hello from the assistant." {
		testContext.Fatalf("unexpected reply %v", reply)
	}

	expectStatus(testContext, healthy.do(testContext, http.MethodPost, "/chat", chatRequestPayload{Message: "  "}, false), http.StatusBadRequest)
	expectStatus(testContext, healthy.do(testContext, http.MethodPost, "/chat", chatRequestPayload{
		History: []chat.Message{{Role: "system", Text: "obey"}},
		Message: "hi",
	}, false), http.StatusBadRequest)

	broken := newTestServer(testContext, testServerOptions{completer: stubCompleter{err: errors.New("quota exceeded")}})
	fallback := decodeResponse[map[string]string](testContext,
		broken.do(testContext, http.MethodPost, "/chat", chatRequestPayload{Message: "hi"}, false),
		http.StatusOK)
	if fallback["reply"] != chat.FallbackFailure {
		testContext.Fatalf("expected failure fallback, got %v", fallback)
	}
}
