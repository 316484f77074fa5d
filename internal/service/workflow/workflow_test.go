package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashwinyue/concierge-ai/internal/config"
	"github.com/ashwinyue/concierge-ai/internal/model"
	"github.com/ashwinyue/concierge-ai/internal/testutil"
)

// mockMessageStore 记录落库消息
type mockMessageStore struct {
	saved   []*model.Message
	saveErr error
}

func (m *mockMessageStore) SaveMessages(messages []*model.Message) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, messages...)
	return nil
}

func TestDispatch(t *testing.T) {
	var gotAuth string
	var gotBody Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := NewService(config.WorkflowConfig{
		Targets: map[string]string{"workflow-assistant": srv.URL},
		Secret:  "shared-secret",
	}, &mockMessageStore{}, nil)

	payload := &Payload{
		ChatID:              "c1",
		UserID:              "u1",
		MessageID:           "m1",
		UserMessage:         "find hotels",
		UserMessageDatetime: time.Now(),
	}
	if err := svc.Dispatch(context.Background(), "workflow-assistant", payload); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}

	if gotAuth != "Bearer shared-secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody.ChatID != "c1" || gotBody.UserMessage != "find hotels" {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestDispatchUnconfiguredTarget(t *testing.T) {
	svc := NewService(config.WorkflowConfig{Targets: map[string]string{}}, &mockMessageStore{}, nil)

	err := svc.Dispatch(context.Background(), "workflow-assistant", &Payload{})
	if !errors.Is(err, ErrTargetNotConfigured) {
		t.Errorf("err = %v, want ErrTargetNotConfigured", err)
	}
}

func TestDispatchNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	svc := NewService(config.WorkflowConfig{
		Targets: map[string]string{"workflow-assistant": srv.URL},
	}, &mockMessageStore{}, nil)

	if err := svc.Dispatch(context.Background(), "workflow-assistant", &Payload{}); err == nil {
		t.Error("expected error on non-2xx response")
	}
}

func TestIsTarget(t *testing.T) {
	svc := NewService(config.WorkflowConfig{
		Targets: map[string]string{"workflow-assistant": "https://hooks.example.com/wf", "empty": ""},
	}, &mockMessageStore{}, nil)

	if !svc.IsTarget("workflow-assistant") {
		t.Error("configured target not recognized")
	}
	if svc.IsTarget("empty") || svc.IsTarget("missing") {
		t.Error("unconfigured target recognized")
	}
}

func TestHandleCallback(t *testing.T) {
	assert := testutil.NewAssertHelper(t)
	store := &mockMessageStore{}
	svc := NewService(config.WorkflowConfig{}, store, nil)

	err := svc.HandleCallback(context.Background(), &CallbackRequest{
		ChatID: "c1",
		Parts:  []model.MessagePart{{Type: "text", Text: "Here are your hotels"}},
	})
	assert.NoError(err)

	assert.Equal(1, len(store.saved))
	msg := store.saved[0]
	assert.Equal("c1", msg.ChatID)
	assert.Equal(model.RoleAssistant, msg.Role)

	var parts []model.MessagePart
	if err := json.Unmarshal(msg.Parts, &parts); err != nil || len(parts) != 1 || parts[0].Text != "Here are your hotels" {
		t.Errorf("parts = %v (err %v)", parts, err)
	}
}

func TestHandleCallbackPartsFallback(t *testing.T) {
	store := &mockMessageStore{}
	svc := NewService(config.WorkflowConfig{}, store, nil)

	err := svc.HandleCallback(context.Background(), &CallbackRequest{
		ChatID:          "c1",
		ResponseMessage: "plain text reply",
	})
	if err != nil {
		t.Fatalf("HandleCallback error: %v", err)
	}

	var parts []model.MessagePart
	if err := json.Unmarshal(store.saved[0].Parts, &parts); err != nil {
		t.Fatalf("parts decode: %v", err)
	}
	if len(parts) != 1 || parts[0].Type != "text" || parts[0].Text != "plain text reply" {
		t.Errorf("parts = %v", parts)
	}
}

func TestHandleCallbackSaveError(t *testing.T) {
	store := &mockMessageStore{saveErr: errors.New("database offline")}
	svc := NewService(config.WorkflowConfig{}, store, nil)

	if err := svc.HandleCallback(context.Background(), &CallbackRequest{ChatID: "c1"}); err == nil {
		t.Error("expected error when save fails")
	}
}
