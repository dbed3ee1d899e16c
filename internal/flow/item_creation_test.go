package flow

import (
	"strings"
	"testing"

	"github.com/StayPipe/StayPipe/internal/models"
	"github.com/StayPipe/StayPipe/internal/store"
)

func staffUser() models.User {
	return models.User{ID: 7, Name: "Ana", Phone: "+41787192338", ScopeID: 1}
}

func TestDetectCommands(t *testing.T) {
	cases := []struct {
		in       string
		kind     ItemKind
		creating bool
		ok       bool
	}{
		{"requests", ItemKindRequest, false, true},
		{"todos", ItemKindTask, false, true},
		{"to do's", ItemKindTask, false, true},
		{"request", ItemKindRequest, true, true},
		{"todo", ItemKindTask, true, true},
		{"requests for tomorrow", "", false, false},
		{"i have a request", "", true, false},
	}
	for _, tc := range cases {
		var kind ItemKind
		var ok bool
		if tc.creating {
			kind, ok = DetectCreateCommand(tc.in)
		} else {
			kind, ok = DetectListCommand(tc.in)
		}
		if ok != tc.ok || (ok && kind != tc.kind) {
			t.Errorf("detect(%q, creating=%v) = %q/%v, want %q/%v", tc.in, tc.creating, kind, ok, tc.kind, tc.ok)
		}
	}
}

func TestRequestCreationFlow(t *testing.T) {
	st := store.NewInMemoryStore()
	conv := seedIdleConversation(t, st)
	c := NewItemCreation(st, NewStateManager(st), NewCatalog(nil))
	user := staffUser()

	reply, err := c.Begin(conv, ItemKindRequest, models.LanguageEnglish)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if !strings.Contains(reply, "responsible") {
		t.Errorf("expected responsible question: %q", reply)
	}
	if conv.State.Flow != models.FlowRequestCreation || conv.State.Step != models.StepWaitingForResponsible {
		t.Fatalf("unexpected state %s", conv.State)
	}

	reply, err = c.HandleStep(conv, &user, "Juan", models.LanguageEnglish)
	if err != nil {
		t.Fatalf("responsible step failed: %v", err)
	}
	if !strings.Contains(reply, "about") {
		t.Errorf("expected description question: %q", reply)
	}

	reply, err = c.HandleStep(conv, &user, "Fix the shower in room 3", models.LanguageEnglish)
	if err != nil {
		t.Fatalf("description step failed: %v", err)
	}
	if !strings.Contains(reply, "Juan") {
		t.Errorf("created reply should name the responsible: %q", reply)
	}
	if !conv.State.IsIdle() {
		t.Errorf("creation should reset to idle, state %s", conv.State)
	}

	items, err := st.ListOpenRequests(1)
	if err != nil {
		t.Fatalf("ListOpenRequests failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 request, got %d", len(items))
	}
	item := items[0]
	if item.Responsible != "Juan" || item.Description != "Fix the shower in room 3" || item.CreatedBy != "Ana" {
		t.Errorf("request fields wrong: %+v", item)
	}
	if item.Status != models.ItemStatusOpen {
		t.Errorf("expected open status, got %q", item.Status)
	}
}

func TestTaskCreationFlow(t *testing.T) {
	st := store.NewInMemoryStore()
	conv := seedIdleConversation(t, st)
	c := NewItemCreation(st, NewStateManager(st), NewCatalog(nil))
	user := staffUser()

	if _, err := c.Begin(conv, ItemKindTask, models.LanguageEnglish); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if conv.State.Flow != models.FlowTaskCreation {
		t.Fatalf("unexpected flow %s", conv.State.Flow)
	}
	if _, err := c.HandleStep(conv, &user, "Pedro", models.LanguageEnglish); err != nil {
		t.Fatalf("responsible step failed: %v", err)
	}
	reply, err := c.HandleStep(conv, &user, "Restock towels", models.LanguageEnglish)
	if err != nil {
		t.Fatalf("description step failed: %v", err)
	}
	if !strings.Contains(reply, "to-do") || !strings.Contains(reply, "Pedro") {
		t.Errorf("unexpected created reply: %q", reply)
	}

	tasks, err := st.ListOpenTasks(1)
	if err != nil {
		t.Fatalf("ListOpenTasks failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Responsible != "Pedro" {
		t.Errorf("task not stored: %+v", tasks)
	}
}

func TestListCommands(t *testing.T) {
	st := store.NewInMemoryStore()
	conv := seedIdleConversation(t, st)
	c := NewItemCreation(st, NewStateManager(st), NewCatalog(nil))

	reply, err := c.List(conv, ItemKindRequest, models.LanguageEnglish)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !strings.Contains(reply, "No open requests") {
		t.Errorf("expected empty list reply: %q", reply)
	}

	if err := st.CreateRequest(models.RequestItem{ID: "req_1", ScopeID: 1, Responsible: "Juan", Description: "Fix sink", Status: models.ItemStatusOpen}); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	// Items from another scope never leak into the list.
	if err := st.CreateRequest(models.RequestItem{ID: "req_2", ScopeID: 2, Responsible: "Eva", Description: "Other scope", Status: models.ItemStatusOpen}); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	reply, err = c.List(conv, ItemKindRequest, models.LanguageEnglish)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !strings.Contains(reply, "Juan: Fix sink") {
		t.Errorf("expected request line: %q", reply)
	}
	if strings.Contains(reply, "Eva") {
		t.Errorf("foreign scope item leaked: %q", reply)
	}
}

func TestEmptyAnswerRepeatsQuestion(t *testing.T) {
	st := store.NewInMemoryStore()
	conv := seedIdleConversation(t, st)
	c := NewItemCreation(st, NewStateManager(st), NewCatalog(nil))
	user := staffUser()

	if _, err := c.Begin(conv, ItemKindRequest, models.LanguageEnglish); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	reply, err := c.HandleStep(conv, &user, "   ", models.LanguageEnglish)
	if err != nil {
		t.Fatalf("empty answer failed: %v", err)
	}
	if !strings.Contains(reply, "responsible") {
		t.Errorf("empty answer should repeat the question: %q", reply)
	}
	if conv.State.Step != models.StepWaitingForResponsible {
		t.Errorf("empty answer must not advance, state %s", conv.State)
	}
}
