package rules

import (
	"testing"

	"github.com/solatis/rulematch/internal/types"
)

func TestCost(t *testing.T) {
	tests := []struct {
		name string
		cond types.Condition
		want int
	}{
		{
			name: "equals on one segment",
			cond: types.Single("platform", "equals", types.Scalar("youtube")),
			want: CostLookupPerSegment + CostEquals,
		},
		{
			name: "in scales with list length",
			cond: types.Single("platform", "in", types.List("youtube", "tiktok", "twitch")),
			want: CostLookupPerSegment + CostIn*3,
		},
		{
			name: "wildcard multiplies operator cost",
			cond: types.Single("accounts[*].platform", "exists", types.ScalarOrList{}),
			want: 3*CostLookupPerSegment + CostExists*8,
		},
		{
			name: "two wildcards",
			cond: types.Single("accounts[*].tags[*]", "contains", types.Scalar("x")),
			want: 4*CostLookupPerSegment + CostContains*64,
		},
		{
			name: "nested sums children",
			cond: types.All(
				types.Single("fansCount", "greaterThan", types.Scalar("1000")),
				types.Any(
					types.Single("platform", "startsWith", types.Scalar("you")),
					types.Single("score", "between", types.List("1", "2")),
				),
			),
			want: (CostLookupPerSegment + CostOrdering) +
				(CostLookupPerSegment + CostAffix) +
				(CostLookupPerSegment + CostOrdering*2),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vc := mustValidate(t, tt.cond)
			if got := vc.Cost(); got != tt.want {
				t.Errorf("Cost() = %d, want %d", got, tt.want)
			}
			if got := Cost(vc.Root()); got != tt.want {
				t.Errorf("Cost(Root()) = %d, want %d", got, tt.want)
			}
		})
	}
}
