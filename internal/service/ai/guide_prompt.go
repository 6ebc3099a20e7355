package ai

import (
	"fmt"
	"strings"

	"github.com/ceylontrails/tourchat/internal/analysis/intent"
	"github.com/ceylontrails/tourchat/internal/model/guide"
)

// PromptTemplate holds the guide-specific parts of a system prompt.
type PromptTemplate struct {
	SystemPrompt string
	StyleHints   []string
	ContextRules []string
}

// GuidePromptManager builds system prompts for guides.
type GuidePromptManager struct {
	templates map[string]*PromptTemplate
}

// NewGuidePromptManager creates a manager with the built-in templates.
func NewGuidePromptManager() *GuidePromptManager {
	pm := &GuidePromptManager{templates: make(map[string]*PromptTemplate)}
	pm.loadDefaultTemplates()
	return pm
}

// GetPromptTemplate returns the template registered for guideID.
func (pm *GuidePromptManager) GetPromptTemplate(guideID string) (*PromptTemplate, error) {
	template, ok := pm.templates[guideID]
	if !ok {
		return nil, fmt.Errorf("prompt template not found for guide: %s", guideID)
	}
	return template, nil
}

// BuildSystemPrompt renders the system prompt for g, answering in language.
func (pm *GuidePromptManager) BuildSystemPrompt(g guide.Guide, language string) string {
	if language == "" {
		language = "en"
	}

	template, err := pm.GetPromptTemplate(g.ID)
	if err != nil {
		return pm.buildBasicSystemPrompt(g, language)
	}

	return fmt.Sprintf(`%s

Guide profile:
- Name: %s
- Role: %s
- Tone: %s
- Regions: %s

Style:
- %s

Rules:
- %s
- Reply in the language with code %q.

Opening line for reference: %s`,
		template.SystemPrompt,
		g.Name,
		g.Title,
		g.Tone,
		strings.Join(g.Regions, ", "),
		strings.Join(template.StyleHints, "\n- "),
		strings.Join(append(commonRules(), template.ContextRules...), "\n- "),
		language,
		g.OpeningLine,
	)
}

func (pm *GuidePromptManager) buildBasicSystemPrompt(g guide.Guide, language string) string {
	return fmt.Sprintf(`You are %s, %s, a travel assistant for visitors to Sri Lanka.

Tone: %s
Hint: %s

Rules:
- %s
- Reply in the language with code %q.`,
		g.Name,
		g.Title,
		g.Tone,
		g.PromptHint,
		strings.Join(commonRules(), "\n- "),
		language,
	)
}

// IntentHint describes the analysed intent for the model.
func IntentHint(res intent.Result) string {
	if res.Intent == "" || res.Intent == intent.General {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The traveller's question looks like a %s question (confidence %.2f).", res.Intent, res.Confidence)
	if len(res.Entities) > 0 {
		names := make([]string, 0, len(res.Entities))
		for _, e := range res.Entities {
			names = append(names, e.Value)
		}
		fmt.Fprintf(&b, " Places mentioned: %s.", strings.Join(names, ", "))
	}
	return b.String()
}

func commonRules() []string {
	return []string{
		"Keep answers under 150 words unless asked for an itinerary",
		"Never invent prices or opening hours; say when information may be out of date",
		"Stay on travel in Sri Lanka and politely steer back when asked about other topics",
	}
}

func (pm *GuidePromptManager) loadDefaultTemplates() {
	pm.templates[guide.DefaultID] = &PromptTemplate{
		SystemPrompt: `You are Nimali, a friendly Sri Lankan travel concierge. You help first-time visitors plan routes, budgets and logistics across the island.`,
		StyleHints: []string{
			"Lead with the direct answer, then one practical tip",
			"Suggest a sensible order of places when several are mentioned",
		},
		ContextRules: []string{
			"Mention the ETA visa requirement when the traveller asks about arrival",
		},
	}

	pm.templates["hill-country"] = &PromptTemplate{
		SystemPrompt: `You are Ruwan, a trekking guide from Nuwara Eliya who knows the hill country trails, tea estates and the scenic railway.`,
		StyleHints: []string{
			"Be energetic and encouraging",
			"Mention start times, weather and footwear for hikes",
		},
		ContextRules: []string{
			"Recommend booking observation car seats early for the Kandy to Ella train",
		},
	}

	pm.templates["heritage"] = &PromptTemplate{
		SystemPrompt: `You are Dr. Perera, a historian of the ancient Sri Lankan kingdoms and the Cultural Triangle.`,
		StyleHints: []string{
			"Add one short historical detail per answer",
			"Use respectful language about religious sites",
		},
		ContextRules: []string{
			"Remind travellers to cover shoulders and knees and remove shoes at temples",
		},
	}

	pm.templates["coast"] = &PromptTemplate{
		SystemPrompt: `You are Shanika, a ranger who covers the beaches and national parks of the south and east coasts.`,
		StyleHints: []string{
			"Keep a relaxed, upbeat tone",
			"Point out which coast is in season for the travel month",
		},
		ContextRules: []string{
			"Promote responsible wildlife viewing and licensed operators",
		},
	}
}
