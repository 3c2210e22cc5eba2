package model

import (
	"fmt"
	"sort"
	"strings"
)

// RoleInfo describes a built-in persona and the instructions sent to the
// generator on its behalf.
type RoleInfo struct {
	Role           Role   `json:"role"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	PromptTemplate string `json:"-"`
}

var roleRegistry = map[Role]RoleInfo{
	RoleModerator: {
		Role:        RoleModerator,
		Name:        "Moderator",
		Description: "Keeps conversations civil and productive, greets newcomers and draws quieter people in.",
		PromptTemplate: `You are a helpful AI moderator in a group chat. Your role is to:
1. Keep conversations civil and productive
2. Help resolve disagreements constructively
3. Welcome newcomers and encourage participation from everyone
4. Step in when the discussion becomes heated or goes off track
Keep responses brief, friendly and neutral. Do not take sides.`,
	},
	RolePlanner: {
		Role:        RolePlanner,
		Name:        "Planner",
		Description: "Picks up tasks, deadlines and schedules and turns them into plans.",
		PromptTemplate: `You are a helpful AI planner in a group chat. Your role is to:
1. Identify tasks, deadlines and action items mentioned in the conversation
2. Help organize schedules and timelines
3. Suggest clear next steps and owners
4. Keep track of what the group has agreed to do
Keep responses concise and structured. Use short lists where they help.`,
	},
	RoleSummarizer: {
		Role:        RoleSummarizer,
		Name:        "Summarizer",
		Description: "Condenses long stretches of discussion into the key points.",
		PromptTemplate: `You are a helpful AI summarizer in a group chat. Your role is to:
1. Condense the recent discussion into its key points
2. Highlight decisions that were made and questions still open
3. Attribute points to participants where it is useful
4. Stay neutral and accurate
Keep summaries short. Use bullet points.`,
	},
	RoleEducator: {
		Role:        RoleEducator,
		Name:        "Educator",
		Description: "Explains concepts and answers questions when asked.",
		PromptTemplate: `You are a helpful AI educator in a group chat. Your role is to:
1. Explain concepts that come up in the conversation clearly
2. Answer questions with accurate, well-structured information
3. Offer examples and analogies where they help understanding
4. Point to further resources when appropriate
Keep explanations approachable and to the point.`,
	},
}

const genericPromptTemplate = `You are a helpful AI assistant participating in a group chat as the %s.
Respond to the conversation in a way that fits your role. Keep responses brief and relevant.`

// LookupRole returns the registry entry for r. Unknown roles get a generic
// entry derived from the role name.
func LookupRole(r Role) RoleInfo {
	if info, ok := roleRegistry[r]; ok {
		return info
	}
	name := titleCase(string(r))
	if name == "" {
		name = "Assistant"
	}
	return RoleInfo{
		Role:           r,
		Name:           name,
		Description:    "Custom participant",
		PromptTemplate: fmt.Sprintf(genericPromptTemplate, strings.ToLower(name)),
	}
}

// BuiltinRoles lists the registered roles in name order.
func BuiltinRoles() []RoleInfo {
	roles := make([]RoleInfo, 0, len(roleRegistry))
	for _, info := range roleRegistry {
		roles = append(roles, info)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles
}

// IsBuiltin reports whether r is a registered role.
func IsBuiltin(r Role) bool {
	_, ok := roleRegistry[r]
	return ok
}

// RoleLabel is r as a metrics label. Roles outside the registry all report
// as "custom", keeping label values bounded.
func RoleLabel(r Role) string {
	r = Role(strings.ToLower(strings.TrimSpace(string(r))))
	if IsBuiltin(r) {
		return string(r)
	}
	return "custom"
}

// SenderLabel is the senderName written on AI messages, e.g. "AI Moderator".
func SenderLabel(r Role) string {
	return "AI " + LookupRole(r).Name
}

func titleCase(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
