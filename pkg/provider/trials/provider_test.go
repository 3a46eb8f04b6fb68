package trials_test

import (
	"testing"

	"github.com/MrWong99/medsift/pkg/provider/trials"
	"github.com/MrWong99/medsift/pkg/types"
)

func TestExplain(t *testing.T) {
	t.Parallel()

	trial := types.Trial{
		Conditions:    []string{"Type 2 Diabetes Mellitus", "Obesity"},
		Interventions: []string{"Metformin ER", "Placebo"},
	}
	tests := []struct {
		name       string
		conditions []string
		drugs      []string
		want       string
	}{
		{
			name:       "condition and drug",
			conditions: []string{"type 2 diabetes", "asthma"},
			drugs:      []string{"metformin"},
			want:       "Matches condition(s): type 2 diabetes; Matches drug(s): metformin",
		},
		{
			name:  "drug only",
			drugs: []string{"Placebo"},
			want:  "Matches drug(s): Placebo",
		},
		{
			name:       "no direct match",
			conditions: []string{"asthma"},
			drugs:      []string{"albuterol"},
			want:       "Related to search terms: asthma, albuterol",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := trials.Explain(trial, tt.conditions, tt.drugs); got != tt.want {
				t.Errorf("Explain() = %q, want %q", got, tt.want)
			}
		})
	}
}
