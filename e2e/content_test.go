package e2e

import (
	"fmt"
	"net/http"
	"testing"
	"time"
)

const startBody = `{
	"contentType": "story",
	"title": "%s",
	"idea": "A lighthouse keeper discovers the light answers back",
	"style": "moody, cinematic",
	"totalSegments": 20,
	"segmentsPerSet": 10
}`

func uniqueTitle(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestHealthCheck(t *testing.T) {
	a := setupApp(t)

	resp, err := doRequest(a.app, http.MethodGet, "/health", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
}

func TestStartRequiresAuth(t *testing.T) {
	a := setupApp(t)

	resp, err := doRequest(a.app, http.MethodPost, "/api/content/start",
		fmt.Sprintf(startBody, "unauthorized"), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestStartCreatesItem(t *testing.T) {
	a := setupApp(t)
	title := uniqueTitle("e2e-start")

	resp, err := doAuthRequest(t, a, http.MethodPost, "/api/content/start",
		fmt.Sprintf(startBody, title))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)

	body := parseJSON(t, resp)
	if body["title"] != title {
		t.Errorf("title = %v, want %s", body["title"], title)
	}
	md, ok := body["metadata"].(map[string]interface{})
	if !ok {
		t.Fatalf("response missing metadata: %v", body)
	}
	if md["synopsis"] == "" || md["synopsis"] == nil {
		t.Error("metadata has no synopsis")
	}
	if chars, ok := md["characters"].([]interface{}); !ok || len(chars) == 0 {
		t.Error("metadata has no character roster")
	}
}

func TestStartDuplicateConflicts(t *testing.T) {
	a := setupApp(t)
	title := uniqueTitle("e2e-dup")
	body := fmt.Sprintf(startBody, title)

	resp, err := doAuthRequest(t, a, http.MethodPost, "/api/content/start", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)
	readBody(t, resp)

	resp, err = doAuthRequest(t, a, http.MethodPost, "/api/content/start", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusConflict)
}

func TestStartRejectsUnknownContentType(t *testing.T) {
	a := setupApp(t)

	resp, err := doAuthRequest(t, a, http.MethodPost, "/api/content/start",
		`{"contentType": "podcast", "title": "x", "idea": "y", "totalSegments": 10, "segmentsPerSet": 5}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestInfoReportsMissingSets(t *testing.T) {
	a := setupApp(t)
	title := uniqueTitle("e2e-info")

	resp, err := doAuthRequest(t, a, http.MethodPost, "/api/content/start",
		fmt.Sprintf(startBody, title))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)
	readBody(t, resp)

	resp, err = doAuthRequest(t, a, http.MethodGet, "/api/content/story/"+title, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["complete"] != false {
		t.Errorf("fresh item reported complete: %v", body)
	}
	missing, ok := body["missingSets"].([]interface{})
	if !ok || len(missing) != 2 { // 20 segments at 10 per set
		t.Errorf("missingSets = %v, want 2 entries", body["missingSets"])
	}
}

func TestInfoUnknownItem(t *testing.T) {
	a := setupApp(t)

	resp, err := doAuthRequest(t, a, http.MethodGet, "/api/content/story/never-created", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestDeleteRemovesItem(t *testing.T) {
	a := setupApp(t)
	title := uniqueTitle("e2e-del")

	resp, err := doAuthRequest(t, a, http.MethodPost, "/api/content/start",
		fmt.Sprintf(startBody, title))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)
	readBody(t, resp)

	resp, err = doAuthRequest(t, a, http.MethodDelete, "/api/content/story/"+title, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNoContent)

	resp, err = doAuthRequest(t, a, http.MethodGet, "/api/content/story/"+title, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestBatchesEnqueuesJob(t *testing.T) {
	a := setupApp(t)
	title := uniqueTitle("e2e-batch")

	resp, err := doAuthRequest(t, a, http.MethodPost, "/api/content/start",
		fmt.Sprintf(startBody, title))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)
	readBody(t, resp)

	resp, err = doAuthRequest(t, a, http.MethodPost, "/api/content/batches",
		fmt.Sprintf(`{"contentType": "story", "title": "%s"}`, title))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	body := parseJSON(t, resp)
	jobID, ok := body["jobId"].(string)
	if !ok || jobID == "" {
		t.Fatalf("no jobId in response: %v", body)
	}

	// The worker is not running in this harness; the job stays queued.
	resp, err = doAuthRequest(t, a, http.MethodGet, "/api/jobs/"+jobID+"/status", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	status := parseJSON(t, resp)
	if status["status"] != "queued" {
		t.Errorf("job status = %v, want queued", status["status"])
	}
}

func TestResumeUnknownItemRejected(t *testing.T) {
	a := setupApp(t)

	resp, err := doAuthRequest(t, a, http.MethodPost, "/api/content/resume",
		`{"contentType": "story", "title": "never-started"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestVideoSynthesizeEnqueuesJob(t *testing.T) {
	a := setupApp(t)
	title := uniqueTitle("e2e-video")

	resp, err := doAuthRequest(t, a, http.MethodPost, "/api/content/start",
		fmt.Sprintf(startBody, title))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)
	readBody(t, resp)

	resp, err = doAuthRequest(t, a, http.MethodPost, "/api/videos/synthesize",
		fmt.Sprintf(`{"contentType": "story", "title": "%s", "characterRefKey": "refs/keeper.png"}`, title))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	body := parseJSON(t, resp)
	if body["jobId"] == "" || body["jobId"] == nil {
		t.Errorf("no jobId in response: %v", body)
	}
}

func TestJobStatusUnknownJob(t *testing.T) {
	a := setupApp(t)

	resp, err := doAuthRequest(t, a, http.MethodGet, "/api/jobs/no-such-job/status", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}
