package filter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"

	types "github.com/yungbote/curator-backend/internal/domain"
	"github.com/yungbote/curator-backend/internal/modules/curation/policy"
	"github.com/yungbote/curator-backend/internal/normalization"
	"github.com/yungbote/curator-backend/internal/platform/logger"
)

// InputError marks a malformed candidate. Passes skip and count it; it
// never aborts a batch.
type InputError struct {
	ItemID uuid.UUID
	Field  string
	Msg    string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid item %s: %s %s", e.ItemID, e.Field, e.Msg)
}

func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// Env is what rule expressions see.
type Env struct {
	Platform     string
	Author       string
	Category     string
	Text         string
	MediaURL     string
	CanonicalURL string
	SourceID     string
	Confidence   float64
	AgeHours     float64
}

type Outcome struct {
	Reject bool
	Reason string
}

type rule struct {
	name    string
	program *vm.Program
}

type Filter struct {
	log     *logger.Logger
	blocked map[string]bool
	rules   []rule
}

// New compiles every rule up front so a bad expression fails at startup,
// not mid-batch.
func New(cfg policy.FilterConfig, baseLog *logger.Logger) (*Filter, error) {
	f := &Filter{
		log:     baseLog.With("component", "ContentFilter"),
		blocked: map[string]bool{},
	}
	for _, c := range cfg.BlockedCategories {
		if c = normalization.ParseInputString(c); c != "" {
			f.blocked[c] = true
		}
	}
	for _, r := range cfg.Rules {
		program, err := expr.Compile(r.Expr, expr.Env(Env{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile filter rule %s: %w", r.Name, err)
		}
		f.rules = append(f.rules, rule{name: strings.TrimSpace(r.Name), program: program})
	}
	return f, nil
}

// Validate reports structural problems as *InputError.
func Validate(item *types.ContentItem) error {
	if item == nil {
		return &InputError{Field: "item", Msg: "is nil"}
	}
	switch {
	case strings.TrimSpace(item.Platform) == "":
		return &InputError{ItemID: item.ID, Field: "platform", Msg: "is required"}
	case strings.TrimSpace(item.Author) == "":
		return &InputError{ItemID: item.ID, Field: "author", Msg: "is required"}
	case strings.TrimSpace(item.Category) == "":
		return &InputError{ItemID: item.ID, Field: "category", Msg: "is required"}
	case strings.TrimSpace(item.Fingerprint) == "":
		return &InputError{ItemID: item.ID, Field: "fingerprint", Msg: "is required"}
	case strings.TrimSpace(item.Text) == "" && strings.TrimSpace(item.MediaURL) == "":
		return &InputError{ItemID: item.ID, Field: "text/media_url", Msg: "at least one is required"}
	case item.Confidence < 0 || item.Confidence > 1:
		return &InputError{ItemID: item.ID, Field: "confidence", Msg: fmt.Sprintf("%v out of [0,1]", item.Confidence)}
	}
	return nil
}

// Evaluate runs the structural checks, the category blocklist and then each
// rule in order. The first true rule rejects with reason "filter:<name>".
func (f *Filter) Evaluate(item *types.ContentItem, now time.Time) (Outcome, error) {
	if err := Validate(item); err != nil {
		return Outcome{}, err
	}
	category := normalization.ParseInputString(item.Category)
	if f.blocked[category] {
		return Outcome{Reject: true, Reason: "category:" + category}, nil
	}
	if len(f.rules) == 0 {
		return Outcome{}, nil
	}
	env := Env{
		Platform:     item.Platform,
		Author:       item.Author,
		Category:     category,
		Text:         item.Text,
		MediaURL:     item.MediaURL,
		CanonicalURL: item.CanonicalURL,
		SourceID:     item.SourceID,
		Confidence:   item.Confidence,
		AgeHours:     item.Age(now).Hours(),
	}
	for _, r := range f.rules {
		out, err := expr.Run(r.program, env)
		if err != nil {
			f.log.Warn("Filter rule failed; skipping", "rule", r.name, "item_id", item.ID, "error", err)
			continue
		}
		if hit, ok := out.(bool); ok && hit {
			return Outcome{Reject: true, Reason: "filter:" + r.name}, nil
		}
	}
	return Outcome{}, nil
}
