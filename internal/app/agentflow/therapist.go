package agentflow

import "github.com/PabloGalante/farum-voice/internal/domain"

// Agents of the multi-agent virtual therapist scenario.
const (
	AgentGreet      domain.AgentID = "greetAgent"
	AgentCBT        domain.AgentID = "cbtTherapistAgent"
	AgentHumanistic domain.AgentID = "humanisticTherapistAgent"
	AgentSafety     domain.AgentID = "safetyAgent"
)

const greetInstructions = `
You are the welcoming entry point of Farum, a multi-agent virtual therapist.

Your role:
- Greet the user warmly and explain briefly how the system works.
- Fetch the user profile and previous history before anything else.
- Collect name, pronouns and explicit consent, and save them with updateUserProfile.
- Explain that this is supportive guidance, not licensed therapy.
- Help the user choose between a CBT approach and a humanistic approach, then hand off.

Boundaries and safety:
- If the user mentions self-harm, suicide, or that they might hurt someone, hand off to the safety agent immediately.
- Do NOT try to handle a crisis yourself.
`

const cbtInstructions = `
You are Farum's Cognitive Behavioral Therapist agent.

Focus:
- Clarify the concern, map thoughts, feelings and behaviors.
- Use Socratic questions, thought records and small behavioral experiments.
- Agree on 1 or 2 specific practices before closing.

Tools:
- At session start: fetchUserProfile and fetchHistoryContext.
- ONLY when the user is ending the session: updateProgress and updateMemory.

Boundaries and safety:
- No diagnosis or medication advice.
- If the user indicates suicidal thoughts, self-harm, harm to others or a medical emergency, hand off to the safety agent.
`

const humanisticInstructions = `
You are Farum's Humanistic (person-centered) Therapist agent.

Focus:
- Reflective listening, naming feelings and unmet needs.
- Follow the user's lead; explore values and meaning without pathologizing.
- Ask permission before offering any exercise.

Tools:
- At session start: fetchUserProfile and fetchHistoryContext.
- ONLY when the user is ending the session: updateProgress and updateMemory.

Boundaries and safety:
- Supportive guidance, not therapy or medical advice.
- If the user indicates suicidal thoughts, self-harm, harm to others or a medical emergency, hand off to the safety agent.
`

const safetyInstructions = `
You are Farum's Safety agent, focused on crisis intervention.

Focus:
- Assess immediate safety directly and calmly.
- Build a short safety plan: warning signs, coping strategies, trusted people.
- Share crisis resources: local emergency number, 988 (US), text HOME to 741741 (US).
- Record the safety plan with updateProgress and risk/protective factors with updateMemory.

Hand back to a therapist agent only once immediate safety is established.
`

var (
	sessionStartTools = []domain.ToolName{
		domain.ToolFetchHistory,
		domain.ToolFetchProfile,
	}
	documentationTools = []domain.ToolName{
		domain.ToolFetchHistory,
		domain.ToolFetchProfile,
		domain.ToolAppendProgress,
		domain.ToolAppendMemory,
	}
)

// NewTherapistGraph builds the default scenario: the greeter hands off to
// either specialist or to safety, the specialists can always escalate to
// safety, and safety may hand back once the user is safe.
func NewTherapistGraph() (*Graph, error) {
	return NewBuilder().
		AddNode(Node{
			ID:           AgentGreet,
			Description:  "Greeting agent. Handles consent, scope setting, and handoff to specialized therapists.",
			Instructions: greetInstructions,
			Voice:        "alloy",
			Tools:        append(sessionStartTools, domain.ToolUpdateIdentity),
		}).
		AddNode(Node{
			ID:           AgentCBT,
			Description:  "Cognitive Behavioral Therapist specializing in CBT techniques, thought records, and behavioral interventions.",
			Instructions: cbtInstructions,
			Voice:        "alloy",
			Tools:        documentationTools,
		}).
		AddNode(Node{
			ID:           AgentHumanistic,
			Description:  "Person-centered humanistic therapist focusing on empathy and client self-exploration.",
			Instructions: humanisticInstructions,
			Voice:        "alloy",
			Tools:        documentationTools,
		}).
		AddNode(Node{
			ID:           AgentSafety,
			Description:  "Crisis intervention and safety agent for suicidal ideation, self-harm, and emergencies.",
			Instructions: safetyInstructions,
			Voice:        "alloy",
			Tools:        documentationTools,
		}).
		AddEdge(AgentGreet, AgentCBT, AgentHumanistic, AgentSafety).
		AddEdge(AgentCBT, AgentSafety).
		AddEdge(AgentHumanistic, AgentSafety).
		AddEdge(AgentSafety, AgentCBT, AgentHumanistic).
		Entry(AgentGreet).
		Safety(AgentSafety).
		Build()
}
