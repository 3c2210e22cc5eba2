package intervention

import (
	"slices"
	"testing"

	"groupchat/model"
)

func TestDetectMention(t *testing.T) {
	moderator := model.AIParticipant{Role: model.RoleModerator}
	aliased := model.AIParticipant{Role: model.RolePlanner, CustomMention: "Plan-Bot"}
	atAlias := model.AIParticipant{Role: model.RoleEducator, CustomMention: "@teach"}

	tests := []struct {
		name string
		text string
		p    model.AIParticipant
		want bool
	}{
		{"full role", "hey @moderator can you step in", moderator, true},
		{"case insensitive", "HEY @MODERATOR", moderator, true},
		{"short form", "@mod please", moderator, true},
		{"substring has no word boundary", "calling all @moderators", moderator, true},
		{"no at sign", "the moderator said hi", moderator, false},
		{"empty text", "", moderator, false},
		{"other role", "@planner what's next", moderator, false},
		{"alias verbatim", "@plan-bot organize this", aliased, true},
		{"alias stripped", "@planbot organize this", aliased, true},
		{"role still works with alias", "@planner organize this", aliased, true},
		{"alias given with at sign", "@teach explain", atAlias, true},
		{"short role of educator", "@edu explain", atAlias, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectMention(tt.text, tt.p); got != tt.want {
				t.Errorf("DetectMention(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestKeywordTiersAreCumulative(t *testing.T) {
	for _, kw := range ArgumentKeywords(model.SensitivityConservative) {
		if !slices.Contains(ArgumentKeywords(model.SensitivityBalanced), kw) {
			t.Errorf("balanced argument keywords missing %q", kw)
		}
	}
	for _, kw := range PlanningKeywords(model.SensitivityBalanced) {
		if !slices.Contains(PlanningKeywords(model.SensitivityProactive), kw) {
			t.Errorf("proactive planning keywords missing %q", kw)
		}
	}

	if got, want := len(ArgumentKeywords(model.SensitivityProactive)), 19; got != want {
		t.Errorf("proactive argument keywords = %d, want %d", got, want)
	}
	if got, want := len(PlanningKeywords(model.SensitivityConservative)), 10; got != want {
		t.Errorf("conservative planning keywords = %d, want %d", got, want)
	}
}

func TestSummaryThreshold(t *testing.T) {
	tests := map[model.Sensitivity]int{
		model.SensitivityConservative: 12,
		model.SensitivityBalanced:     8,
		model.SensitivityProactive:    5,
		model.SensitivitySilent:       12,
	}
	for level, want := range tests {
		if got := SummaryThreshold(level); got != want {
			t.Errorf("SummaryThreshold(%s) = %d, want %d", level, got, want)
		}
	}
}
