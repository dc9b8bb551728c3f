package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestSummarizeVerdicts(t *testing.T) {
	tests := []struct {
		name     string
		states   []string
		want     Verdict
		wantCode int
	}{
		{name: "all ready", states: []string{StateReady, StateReady}, want: VerdictSuccess, wantCode: 0},
		{name: "some ready", states: []string{StateReady, StateTimedOut}, want: VerdictPartial, wantCode: 1},
		{name: "ready and skipped", states: []string{StateReady, StateSkipped}, want: VerdictPartial, wantCode: 1},
		{name: "none ready", states: []string{StateFailed, StateSkipped}, want: VerdictFailed, wantCode: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resources := make([]ResourceReport, len(tt.states))
			for i, s := range tt.states {
				resources[i] = ResourceReport{Resource: "r" + string(rune('a'+i)), State: s}
			}
			rep := Summarize("abc123", time.Now(), resources, "")
			if rep.Verdict != tt.want {
				t.Errorf("Verdict = %s, want %s", rep.Verdict, tt.want)
			}
			if rep.ExitCode() != tt.wantCode {
				t.Errorf("ExitCode() = %d, want %d", rep.ExitCode(), tt.wantCode)
			}
		})
	}
}

func TestSummarizeSortsByStageThenName(t *testing.T) {
	rep := Summarize("abc123", time.Now(), []ResourceReport{
		{Resource: "Deployment/default/app", Stage: 1, State: StateReady},
		{Resource: "Secret/default/creds", Stage: 0, State: StateReady},
		{Resource: "PersistentVolume/data", Stage: 0, State: StateReady},
	}, "")

	want := []string{"PersistentVolume/data", "Secret/default/creds", "Deployment/default/app"}
	for i, w := range want {
		if rep.Resources[i].Resource != w {
			t.Errorf("Resources[%d] = %s, want %s", i, rep.Resources[i].Resource, w)
		}
	}
}

func TestRenderTextCarriesMessagesVerbatim(t *testing.T) {
	message := `0/1 nodes are available: pod has unbound immediate PersistentVolumeClaims.`
	rep := Summarize("abc123", time.Now(), []ResourceReport{
		{Resource: "Secret/default/creds", Stage: 0, State: StateReady, Outcome: "Created"},
		{Resource: "Deployment/default/app", Stage: 1, State: StateTimedOut, Message: message},
	}, "")

	var buf bytes.Buffer
	if err := rep.RenderText(&buf); err != nil {
		t.Fatalf("RenderText() error = %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, message) {
		t.Errorf("output does not carry the failure message verbatim:\n%s", out)
	}
	if !strings.Contains(out, "Stage 0:") || !strings.Contains(out, "Stage 1:") {
		t.Errorf("output missing stage headers:\n%s", out)
	}
	if !strings.Contains(out, "Verdict: Partial") {
		t.Errorf("output missing verdict line:\n%s", out)
	}
}

func TestRenderTextFatal(t *testing.T) {
	rep := Summarize("abc123", time.Now(), []ResourceReport{
		{Resource: "Secret/default/creds", Stage: 0, State: StateSkipped},
	}, "apply: Unauthorized")

	var buf bytes.Buffer
	if err := rep.RenderText(&buf); err != nil {
		t.Fatalf("RenderText() error = %v", err)
	}
	if !strings.Contains(buf.String(), "apply: Unauthorized") {
		t.Errorf("output missing fatal message:\n%s", buf.String())
	}
}

func TestRenderJSONRoundTrip(t *testing.T) {
	rep := Summarize("abc123", time.Now(), []ResourceReport{
		{Resource: "Secret/default/creds", Stage: 0, State: StateReady},
	}, "")

	var buf bytes.Buffer
	if err := rep.RenderJSON(&buf); err != nil {
		t.Fatalf("RenderJSON() error = %v", err)
	}

	var decoded Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Verdict != VerdictSuccess {
		t.Errorf("decoded Verdict = %s, want %s", decoded.Verdict, VerdictSuccess)
	}
	if len(decoded.Resources) != 1 {
		t.Errorf("decoded %d resources, want 1", len(decoded.Resources))
	}
}
