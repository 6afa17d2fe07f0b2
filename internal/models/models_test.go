package models

import (
	"strings"
	"testing"
)

func TestGenerationOptions_Validate(t *testing.T) {
	t.Parallel()

	ptr := func(v float64) *float64 { return &v }
	n := func(v int) *int { return &v }

	tests := []struct {
		name    string
		opts    GenerationOptions
		wantErr string
	}{
		{name: "unset", opts: GenerationOptions{}},
		{name: "bounds inclusive", opts: GenerationOptions{Temperature: ptr(2), MaxOutputTokens: n(1)}},
		{name: "zero temperature", opts: GenerationOptions{Temperature: ptr(0)}},
		{name: "temperature too high", opts: GenerationOptions{Temperature: ptr(2.1)}, wantErr: "temperature must be between 0 and 2, got 2.1"},
		{name: "negative temperature", opts: GenerationOptions{Temperature: ptr(-0.5)}, wantErr: "temperature"},
		{name: "zero max tokens", opts: GenerationOptions{MaxOutputTokens: n(0)}, wantErr: "max_tokens must be positive, got 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.opts.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v; want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v; want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestOutcome_Failed(t *testing.T) {
	t.Parallel()

	for outcome, want := range map[Outcome]bool{
		OutcomeStop:   false,
		OutcomeLength: false,
		OutcomeSafety: true,
		OutcomeError:  true,
	} {
		if got := outcome.Failed(); got != want {
			t.Errorf("%s.Failed() = %v; want %v", outcome, got, want)
		}
	}
}
