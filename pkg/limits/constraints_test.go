package limits

import "testing"

func TestConstraintsValidateClamps(t *testing.T) {
	tests := []struct {
		name string
		in   Constraints
		want Constraints
	}{
		{
			name: "defaults untouched",
			in:   Constraints{},
			want: Constraints{},
		},
		{
			name: "in-range values kept",
			in:   Constraints{MemoryLimitMB: 512, NicePriority: 10, OOMScoreAdj: -500},
			want: Constraints{MemoryLimitMB: 512, NicePriority: 10, OOMScoreAdj: -500},
		},
		{
			name: "negative memory cleared",
			in:   Constraints{MemoryLimitMB: -1},
			want: Constraints{MemoryLimitMB: 0},
		},
		{
			name: "nice clamped high",
			in:   Constraints{NicePriority: 100},
			want: Constraints{NicePriority: 19},
		},
		{
			name: "nice clamped low",
			in:   Constraints{NicePriority: -100},
			want: Constraints{NicePriority: -20},
		},
		{
			name: "oom score clamped",
			in:   Constraints{OOMScoreAdj: 5000},
			want: Constraints{OOMScoreAdj: 1000},
		},
		{
			name: "oom score clamped low",
			in:   Constraints{OOMScoreAdj: -5000},
			want: Constraints{OOMScoreAdj: -1000},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.in
			if err := c.Validate(); err != nil {
				t.Fatalf("Validate returned error: %v", err)
			}
			if c != tt.want {
				t.Errorf("after Validate = %+v, want %+v", c, tt.want)
			}
		})
	}
}
