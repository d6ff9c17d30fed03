package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xactions/xactions-a2a/pkg/a2a"
	"github.com/xactions/xactions-a2a/pkg/bridge"
	"github.com/xactions/xactions-a2a/pkg/card"
	"github.com/xactions/xactions-a2a/pkg/config"
	"github.com/xactions/xactions-a2a/pkg/discovery"
	"github.com/xactions/xactions-a2a/pkg/orchestrator"
	"github.com/xactions/xactions-a2a/pkg/push"
	"github.com/xactions/xactions-a2a/pkg/skills"
	"github.com/xactions/xactions-a2a/pkg/storage"
	"github.com/xactions/xactions-a2a/pkg/stream"
	"github.com/xactions/xactions-a2a/pkg/task"
)

var testPushSecret = []byte("0123456789abcdef0123456789abcdef")

// newTestServer wires the full surface over a local bridge with a few
// runners registered.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts, _ := newTestServerWithStore(t)
	return ts
}

// newTestServerWithStore also exposes the task store so tests can stage
// tasks in non-terminal states without racing the executor.
func newTestServerWithStore(t *testing.T) (*httptest.Server, *task.Store) {
	t.Helper()

	cfg := &config.Config{
		AgentName:    "Test Agent",
		AgentVersion: "1.0.0",
		BaseURL:      "http://localhost:3100",
		TaskCapacity: 100,
	}

	registry := skills.NewRegistry()
	cardSvc := card.NewService(card.Options{
		Name:      cfg.AgentName,
		BaseURL:   cfg.BaseURL,
		Version:   cfg.AgentVersion,
		Streaming: true,
	}, registry)

	b := bridge.NewLocalBridge(registry)
	b.Register("x_get_profile", func(ctx context.Context, params map[string]any) (*bridge.Result, error) {
		return &bridge.Result{Output: map[string]any{"username": params["username"], "followers": 7}}, nil
	})
	b.Register("x_compare_profiles", func(ctx context.Context, params map[string]any) (*bridge.Result, error) {
		return &bridge.Result{Output: map[string]any{"winner": "alice"}}, nil
	})
	b.Register("x_post_tweet", func(ctx context.Context, params map[string]any) (*bridge.Result, error) {
		return nil, fmt.Errorf("posting disabled in tests")
	})

	store := task.NewStore(cfg.TaskCapacity)
	streams := stream.NewManager(store)
	subs := push.NewSubscriptionManager(push.NewNotifier(testPushSecret))
	subs.Bind(store)

	agents, err := discovery.NewRegistry(storage.NewMemoryRepository[map[string]discovery.Entry](), card.NewFetcher(), nil)
	require.NoError(t, err)
	trust, err := discovery.NewTrustStore(storage.NewMemoryRepository[map[string]discovery.TrustRecord]())
	require.NoError(t, err)
	matcher := discovery.NewMatcher(agents)

	srv := New(Deps{
		Config:       cfg,
		Registry:     registry,
		Card:         cardSvc,
		Store:        store,
		Executor:     task.NewExecutor(store, b),
		Streams:      streams,
		Subs:         subs,
		PushSecret:   testPushSecret,
		Agents:       agents,
		Matcher:      matcher,
		Trust:        trust,
		Orchestrator: orchestrator.New(registry, b, matcher, trust, orchestrator.NewDelegator(nil, trust)),
	})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, store
}

func rpcCall(t *testing.T, ts *httptest.Server, body string) (*http.Response, a2a.Response) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/a2a/tasks", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var rpc a2a.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpc))
	return resp, rpc
}

func sendTask(t *testing.T, ts *httptest.Server, method, skillID string, params map[string]any) (*http.Response, a2a.Response) {
	t.Helper()
	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      "req-1",
		"method":  method,
		"params": map[string]any{
			"message": map[string]any{
				"role":  "user",
				"parts": []map[string]any{{"type": "data", "data": params}},
			},
			"metadata": map[string]any{"skillId": skillID},
		},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return rpcCall(t, ts, string(body))
}

func decodeTask(t *testing.T, result any) a2a.Task {
	t.Helper()
	raw, err := json.Marshal(result)
	require.NoError(t, err)
	var task a2a.Task
	require.NoError(t, json.Unmarshal(raw, &task))
	return task
}

func TestTasksSend_RunsToCompletion(t *testing.T) {
	ts := newTestServer(t)

	resp, rpc := sendTask(t, ts, "tasks/send", "xactions.x_get_profile", map[string]any{"username": "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, rpc.Error)
	assert.Equal(t, "req-1", rpc.ID)

	final := decodeTask(t, rpc.Result)
	assert.Equal(t, a2a.TaskStateCompleted, final.Status.State)
	require.NotEmpty(t, final.Artifacts)
	assert.Equal(t, a2a.PartTypeData, final.Artifacts[0].Type)

	states := make([]a2a.TaskState, 0, len(final.History))
	for _, h := range final.History {
		states = append(states, h.State)
	}
	assert.Equal(t, []a2a.TaskState{a2a.TaskStateSubmitted, a2a.TaskStateWorking, a2a.TaskStateCompleted}, states)
}

func TestTasksSend_BridgeFailureFailsTask(t *testing.T) {
	ts := newTestServer(t)

	resp, rpc := sendTask(t, ts, "tasks/send", "xactions.x_post_tweet", map[string]any{"text": "hi"})
	require.Equal(t, http.StatusOK, resp.StatusCode, "a failed task is still a successful RPC")
	require.Nil(t, rpc.Error)

	final := decodeTask(t, rpc.Result)
	assert.Equal(t, a2a.TaskStateFailed, final.Status.State)
	assert.Contains(t, final.Status.Message, "posting disabled")
}

func TestTasksSendSubscribe_ReturnsEarly(t *testing.T) {
	ts := newTestServer(t)

	resp, rpc := sendTask(t, ts, "tasks/sendSubscribe", "xactions.x_get_profile", map[string]any{"username": "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, rpc.Error)

	submitted := decodeTask(t, rpc.Result)
	require.NotEmpty(t, submitted.ID)

	// The task completes in the background.
	require.Eventually(t, func() bool {
		getResp, err := http.Get(ts.URL + "/a2a/tasks/" + submitted.ID)
		if err != nil {
			return false
		}
		defer getResp.Body.Close()
		var current a2a.Task
		if json.NewDecoder(getResp.Body).Decode(&current) != nil {
			return false
		}
		return current.Status.State == a2a.TaskStateCompleted
	}, 3*time.Second, 20*time.Millisecond)
}

func TestTasksEndpoint_ErrorCodes(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   int
	}{
		{
			name:       "malformed json",
			body:       `{"jsonrpc": "2.0",`,
			wantStatus: http.StatusBadRequest,
			wantCode:   a2a.CodeParseError,
		},
		{
			name:       "wrong version",
			body:       `{"jsonrpc": "1.0", "id": 1, "method": "tasks/send"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   a2a.CodeInvalidRequest,
		},
		{
			name:       "unknown method",
			body:       `{"jsonrpc": "2.0", "id": 1, "method": "tasks/destroy"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   a2a.CodeMethodNotFound,
		},
		{
			name:       "missing message",
			body:       `{"jsonrpc": "2.0", "id": 1, "method": "tasks/send", "params": {}}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   a2a.CodeInvalidParams,
		},
		{
			name:       "invalid part",
			body:       `{"jsonrpc": "2.0", "id": 1, "method": "tasks/send", "params": {"message": {"role": "user", "parts": [{"type": "text"}]}}}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   a2a.CodeInvalidParams,
		},
		{
			name:       "unknown skill",
			body:       `{"jsonrpc": "2.0", "id": 1, "method": "tasks/send", "params": {"message": {"role": "user", "parts": [{"type": "text", "text": "hi"}]}, "metadata": {"skillId": "xactions.x_nope"}}}`,
			wantStatus: http.StatusNotFound,
			wantCode:   a2a.CodeSkillNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, rpc := rpcCall(t, ts, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			require.NotNil(t, rpc.Error)
			assert.Equal(t, tt.wantCode, rpc.Error.Code)
		})
	}
}

func TestGetTask_NotFound(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/a2a/tasks/no-such-task")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var rpc a2a.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpc))
	require.NotNil(t, rpc.Error)
	assert.Equal(t, a2a.CodeTaskNotFound, rpc.Error.Code)
}

func TestCancelTask_Conflicts(t *testing.T) {
	ts := newTestServer(t)

	// A completed task cannot be canceled.
	_, rpc := sendTask(t, ts, "tasks/send", "xactions.x_get_profile", map[string]any{"username": "alice"})
	done := decodeTask(t, rpc.Result)

	resp, err := http.Post(ts.URL+"/a2a/tasks/"+done.ID+"/cancel", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var cancelErr a2a.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cancelErr))
	require.NotNil(t, cancelErr.Error)
	assert.Equal(t, a2a.CodeTaskInvalidState, cancelErr.Error.Code)

	// Unknown task is a 404.
	resp2, err := http.Post(ts.URL+"/a2a/tasks/missing/cancel", "application/json", nil)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestListTasks_FiltersByState(t *testing.T) {
	ts := newTestServer(t)

	sendTask(t, ts, "tasks/send", "xactions.x_get_profile", map[string]any{"username": "alice"})
	sendTask(t, ts, "tasks/send", "xactions.x_post_tweet", map[string]any{"text": "hi"})

	resp, err := http.Get(ts.URL + "/a2a/tasks?state=failed")
	require.NoError(t, err)
	defer resp.Body.Close()

	var listing struct {
		Tasks []a2a.Task `json:"tasks"`
		Total int        `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
	assert.Equal(t, 1, listing.Total)
	require.Len(t, listing.Tasks, 1)
	assert.Equal(t, a2a.TaskStateFailed, listing.Tasks[0].Status.State)

	// Unknown state filters are rejected.
	bad, err := http.Get(ts.URL + "/a2a/tasks?state=exploded")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestAgentCard_FullAndMinimal(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/.well-known/agent.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Cache-Control"), "max-age=")

	var agentCard a2a.AgentCard
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&agentCard))
	require.NoError(t, agentCard.Validate())
	assert.Equal(t, "Test Agent", agentCard.Name)
	assert.NotEmpty(t, agentCard.Skills)

	minResp, err := http.Get(ts.URL + "/.well-known/agent.json?format=minimal")
	require.NoError(t, err)
	defer minResp.Body.Close()

	var minimal card.MinimalCard
	require.NoError(t, json.NewDecoder(minResp.Body).Decode(&minimal))
	assert.Equal(t, len(agentCard.Skills), minimal.SkillCount)
	assert.Len(t, minimal.SkillIDs, minimal.SkillCount)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/a2a/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status string `json:"status"`
		Agent  string `json:"agent"`
		Skills int    `json:"skills"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "Test Agent", health.Agent)
	assert.Greater(t, health.Skills, 0)
}

func TestSkillsListing(t *testing.T) {
	ts := newTestServer(t)

	get := func(query string) (int, []a2a.Skill) {
		resp, err := http.Get(ts.URL + "/a2a/skills" + query)
		require.NoError(t, err)
		defer resp.Body.Close()
		var out struct {
			Skills []a2a.Skill `json:"skills"`
			Total  int         `json:"total"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out.Total, out.Skills
	}

	totalAll, _ := get("")
	assert.Greater(t, totalAll, 10)

	totalSentiment, hits := get("?q=sentiment")
	require.Equal(t, 1, totalSentiment)
	assert.Equal(t, "xactions.x_analyze_sentiment", hits[0].ID)

	totalLimited, limited := get("?limit=3")
	assert.Equal(t, 3, totalLimited)
	assert.Len(t, limited, 3)

	_, posting := get("?category=posting")
	require.NotEmpty(t, posting)
	for _, skill := range posting {
		assert.NotContains(t, skill.ID, "x_analyze")
	}
}

func TestStream_TerminalTaskGetsDoneFrame(t *testing.T) {
	ts := newTestServer(t)

	_, rpc := sendTask(t, ts, "tasks/send", "xactions.x_get_profile", map[string]any{"username": "alice"})
	done := decodeTask(t, rpc.Result)

	resp, err := http.Get(ts.URL + "/a2a/tasks/" + done.ID + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), ": connected")
	assert.Contains(t, string(body), "event: done")
	assert.Contains(t, string(body), `"completed"`)
}

func TestStream_UnknownTask(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/a2a/tasks/missing/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCallback_TokenAuth(t *testing.T) {
	ts := newTestServer(t)

	notification, _ := json.Marshal(push.Notification{TaskID: "remote-1", State: a2a.TaskStateCompleted})

	// A bad token is rejected.
	resp, err := http.Post(ts.URL+"/a2a/callbacks/cb-1?token=wrong", "application/json", bytes.NewReader(notification))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var rpc a2a.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpc))
	require.NotNil(t, rpc.Error)
	assert.Equal(t, a2a.CodeAuthRequired, rpc.Error.Code)

	// The minted token passes.
	token := push.CallbackToken(testPushSecret, "cb-1")
	ok, err := http.Post(ts.URL+"/a2a/callbacks/cb-1?token="+token, "application/json", bytes.NewReader(notification))
	require.NoError(t, err)
	defer ok.Body.Close()
	assert.Equal(t, http.StatusOK, ok.StatusCode)
}

func TestOrchestratePlan(t *testing.T) {
	ts := newTestServer(t)

	body := `{"description": "compare @alice and @bob"}`
	resp, err := http.Post(ts.URL+"/a2a/orchestrate/plan", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var plan orchestrator.Plan
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&plan))
	assert.Equal(t, 3, plan.TotalSteps)
	assert.Equal(t, [][]int{{0, 1}}, plan.Parallel)
	assert.Equal(t, []int{2}, plan.Sequential)
}

func TestOrchestrate_ExecutesLocally(t *testing.T) {
	ts := newTestServer(t)

	body := `{"description": "compare @alice and @bob"}`
	resp, err := http.Post(ts.URL+"/a2a/orchestrate", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var outcome orchestrator.Outcome
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&outcome))
	assert.True(t, outcome.Success, "errors: %v", outcome.Errors)
	assert.Len(t, outcome.Results, 3)
}

func TestOrchestrate_RequiresDescription(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/a2a/orchestrate", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAgentTrust(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/a2a/agents/trust?url=https://unknown.example")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		Score int `json:"score"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, discovery.NeutralScore, out.Score)

	missing, err := http.Get(ts.URL + "/a2a/agents/trust")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusBadRequest, missing.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/a2a/tasks", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestTaskMessage_AppendsToConversation(t *testing.T) {
	ts, store := newTestServerWithStore(t)

	// Staged directly so the task stays non-terminal.
	created := store.Create(a2a.NewUserTextMessage("hold"), nil)

	msg, _ := json.Marshal(a2a.NewAgentTextMessage("follow-up note"))
	resp, err := http.Post(ts.URL+"/a2a/tasks/"+created.ID+"/message", "application/json", bytes.NewReader(msg))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated a2a.Task
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	found := false
	for _, m := range updated.Messages {
		if a2a.ExtractText(m) == "follow-up note" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestTaskMessage_TerminalTaskConflicts(t *testing.T) {
	ts := newTestServer(t)

	_, rpc := sendTask(t, ts, "tasks/send", "xactions.x_get_profile", map[string]any{"username": "alice"})
	done := decodeTask(t, rpc.Result)
	require.Equal(t, a2a.TaskStateCompleted, done.Status.State)

	msg, _ := json.Marshal(a2a.NewAgentTextMessage("too late"))
	resp, err := http.Post(ts.URL+"/a2a/tasks/"+done.ID+"/message", "application/json", bytes.NewReader(msg))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var rpcErr a2a.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpcErr))
	require.NotNil(t, rpcErr.Error)
	assert.Equal(t, a2a.CodeTaskInvalidState, rpcErr.Error.Code)
}
