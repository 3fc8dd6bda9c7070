package main

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/script-bridge/bridge"
	"github.com/wippyai/script-bridge/corelib"
)

func TestParseGuests(t *testing.T) {
	tests := []struct {
		in      string
		want    []bridge.Guest
		wantErr bool
	}{
		{"", nil, false},
		{"ai=ai.wasm", []bridge.Guest{{Name: "ai", Path: "ai.wasm"}}, false},
		{" a=x.wasm , b=y.wasm ", []bridge.Guest{{Name: "a", Path: "x.wasm"}, {Name: "b", Path: "y.wasm"}}, false},
		{"ai.wasm", nil, true},
		{"=x.wasm", nil, true},
	}
	for _, tt := range tests {
		got, err := parseGuests(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseGuests(%q) error = %v", tt.in, err)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("parseGuests(%q) = %v", tt.in, got)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseGuests(%q)[%d] = %v", tt.in, i, got[i])
			}
		}
	}
}

func TestFormatValues(t *testing.T) {
	got := formatValues([]any{nil, "x", int64(3), corelib.Vec2{X: 1, Y: 2}, true})
	want := "nil\t\"x\"\t3\tVec2(1, 2)\ttrue"
	if got != want {
		t.Errorf("formatValues = %q, want %q", got, want)
	}
}

func TestInteractiveModel_Eval(t *testing.T) {
	ctx := context.Background()
	opts := bridge.DefaultOptions()
	opts.Reflectors = []string{corelib.MathReflector}
	b, err := bridge.New(ctx, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	m := newInteractiveModel(ctx, b)
	m.input.SetValue("geom.Vec2(3, 4):len()")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter produced no command")
	}
	m.Update(cmd())

	m.input.SetValue("error('boom')")
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m.Update(cmd())

	if len(m.transcript) != 2 {
		t.Fatalf("transcript = %+v", m.transcript)
	}
	if e := m.transcript[0]; e.failed || e.output != "5" {
		t.Errorf("first entry = %+v", e)
	}
	if e := m.transcript[1]; !e.failed || !strings.Contains(e.output, "boom") {
		t.Errorf("second entry = %+v", e)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	if m.input.Value() != "error('boom')" {
		t.Errorf("history recall = %q", m.input.Value())
	}
	if !strings.Contains(m.View(), "lua> ") {
		t.Error("view lacks the transcript")
	}
}
