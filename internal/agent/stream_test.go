package agent

import (
	"bytes"
	"strings"
	"testing"
)

const sampleStream = `{"type":"system","session_id":"abc123","model":"claude-opus","tools":[]}
{"type":"assistant","message":{"content":[{"type":"text","text":"Looking at the repo."}],"usage":{"input_tokens":10,"output_tokens":5}}}
{"type":"assistant","message":{"content":[{"type":"tool_use","id":"tool_1","name":"bash","input":{"command":"ls"}}]}}
{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"tool_1","content":"<event topic=\"fake.tool\">no</event>"}]}}
{"type":"assistant","message":{"content":[{"type":"text","text":"Done.\n<event topic=\"build.done\">tests pass</event>\nLOOP_COMPLETE"}]}}
[stderr] warning: something
{"type":"result","subtype":"success","duration_ms":4200,"total_cost_usd":0.0125,"num_turns":3,"is_error":false,"result":"Done.","usage":{"input_tokens":120,"output_tokens":45}}
`

func TestDecodeStream(t *testing.T) {
	text, usage := DecodeStream(sampleStream)

	want := "Looking at the repo.\nDone.\n<event topic=\"build.done\">tests pass</event>\nLOOP_COMPLETE\n"
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
	if strings.Contains(text, "fake.tool") {
		t.Error("tool results must not reach the assistant text")
	}
	if usage == nil {
		t.Fatal("expected a session result")
	}
	if usage.CostUSD != 0.0125 || usage.Turns != 3 || usage.DurationMs != 4200 || usage.IsError {
		t.Errorf("usage = %+v", usage)
	}
	if usage.InputTokens != 120 || usage.OutputTokens != 45 {
		t.Errorf("tokens = %d/%d, want the result totals 120/45", usage.InputTokens, usage.OutputTokens)
	}
}

func TestDecodeStream_NoResult(t *testing.T) {
	text, usage := DecodeStream(`{"type":"assistant","message":{"content":[{"type":"text","text":"partial"}]}}` + "\nnot json\n{broken")
	if text != "partial\n" {
		t.Errorf("text = %q", text)
	}
	if usage != nil {
		t.Errorf("usage = %+v, want nil without a result line", usage)
	}
}

func TestDecodeStream_TokensFromMessagesWithoutResultTotals(t *testing.T) {
	raw := `{"type":"assistant","message":{"content":[],"usage":{"input_tokens":10,"output_tokens":5}}}
{"type":"assistant","message":{"content":[],"usage":{"input_tokens":7,"output_tokens":3}}}
{"type":"result","total_cost_usd":0.5,"num_turns":2}`
	_, usage := DecodeStream(raw)
	if usage == nil || usage.InputTokens != 17 || usage.OutputTokens != 8 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestStreamWriter_RendersLines(t *testing.T) {
	var out bytes.Buffer
	w := newStreamWriter(&out)
	// Split a line across writes.
	i := strings.Index(sampleStream, "Done.")
	w.Write([]byte(sampleStream[:i]))
	w.Write([]byte(sampleStream[i:]))

	got := out.String()
	for _, s := range []string{"Looking at the repo.\n", "[tool] bash\n", "LOOP_COMPLETE\n", "[stderr] warning: something\n", "[result] turns=3 cost=$0.0125\n"} {
		if !strings.Contains(got, s) {
			t.Errorf("live output missing %q:\n%s", s, got)
		}
	}
	if strings.Contains(got, `"type"`) {
		t.Errorf("raw JSON leaked into live output:\n%s", got)
	}
}
