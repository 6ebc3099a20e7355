package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ceylontrails/tourchat/internal/analysis/intent"
	"github.com/ceylontrails/tourchat/internal/model/chat"
	"github.com/ceylontrails/tourchat/internal/model/guide"
)

// Request is one user turn to answer.
type Request struct {
	ConversationID string
	Guide          guide.Guide
	History        []chat.Message
	Text           string
	Language       string
}

// Responder produces a fully formed turn for a request.
type Responder interface {
	Respond(ctx context.Context, req Request) (chat.Message, error)
}

// RuleResponder answers from intent analysis alone. It is used when no
// model is configured.
type RuleResponder struct{}

// Respond implements Responder.
func (RuleResponder) Respond(_ context.Context, req Request) (chat.Message, error) {
	start := time.Now()
	analysis := intent.Analyze(req.Text)
	return buildMessage(req, ruleReply(req.Guide, analysis), analysis, start), nil
}

func ruleReply(g guide.Guide, res intent.Result) string {
	place := ""
	if len(res.Entities) > 0 {
		place = res.Entities[0].Value
	}

	switch res.Intent {
	case intent.Greeting:
		if g.OpeningLine != "" {
			return g.OpeningLine
		}
		return "Ayubowan! How can I help with your Sri Lanka trip?"
	case intent.Attractions:
		if place != "" {
			return fmt.Sprintf("%s is one of the island's highlights. Go early in the morning to beat the heat and the crowds.", place)
		}
		return "Popular first-trip highlights are Sigiriya, Kandy, Ella and Galle Fort."
	case intent.Transport:
		if place != "" {
			return fmt.Sprintf("Trains and buses both reach %s; a private driver is the quickest option if you are short on time.", place)
		}
		return "Trains are scenic and cheap, buses are frequent, and tuk-tuks cover short hops."
	case intent.Accommodation:
		return "Guesthouses are great value across the island; book ahead for the hill country in the April holidays."
	case intent.Food:
		return "Try rice and curry, hoppers and kottu. Most towns have good vegetarian options too."
	case intent.Weather:
		return "The south and west coasts are driest from December to April, the east coast from May to September."
	case intent.Culture:
		return "Cover shoulders and knees and remove your shoes when visiting temples."
	case intent.Wildlife:
		return "Yala and Wilpattu are best for leopards, Minneriya for elephants, and Mirissa for whales from November to April."
	case intent.Practical:
		return "Most visitors need an ETA before arrival. ATMs are common in towns and a local SIM is cheap."
	default:
		return "I can help with places to visit, getting around, where to stay and what to eat. What would you like to know?"
	}
}

// buildMessage assembles the turn returned by every responder.
func buildMessage(req Request, reply string, analysis intent.Result, start time.Time) chat.Message {
	language := req.Language
	if language == "" {
		language = "en"
	}
	return chat.Message{
		ConversationID: req.ConversationID,
		RequestText:    req.Text,
		ResponseText:   strings.TrimSpace(reply),
		Language:       language,
		Timestamp:      time.Now().UTC(),
		Intent:         string(analysis.Intent),
		Confidence:     analysis.Confidence,
		Entities:       analysis.Entities,
		Suggestions:    analysis.Suggestions,
		ResponseTimeMS: time.Since(start).Milliseconds(),
	}
}
