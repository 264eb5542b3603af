// Package intent maps free text to a content-type tag using ordered keyword
// rules. The first rule with any matching keyword wins; rule order is the
// only tie-break.
package intent

import (
	"fmt"
	"strings"

	"github.com/harunnryd/copydesk/internal/config"
	"github.com/harunnryd/copydesk/internal/content"
)

type Rule struct {
	Tag      content.Tag
	Keywords []string
}

// Classifier is immutable after construction and safe for concurrent use.
type Classifier struct {
	rules      []Rule
	defaultTag content.Tag
}

// New copies rules and lower-cases their keywords. Empty keywords are dropped.
func New(rules []Rule, defaultTag content.Tag) *Classifier {
	copied := make([]Rule, 0, len(rules))
	for _, r := range rules {
		kws := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				kws = append(kws, kw)
			}
		}
		if len(kws) == 0 {
			continue
		}
		copied = append(copied, Rule{Tag: r.Tag, Keywords: kws})
	}
	return &Classifier{rules: copied, defaultTag: defaultTag}
}

// FromConfig builds a classifier from config, falling back to DefaultRules
// when no rules are configured.
func FromConfig(cfg config.IntentConfig) (*Classifier, error) {
	defaultTag := content.Tag(config.DefaultIntentTag)
	if strings.TrimSpace(cfg.DefaultTag) != "" {
		tag, ok := content.ParseTag(cfg.DefaultTag)
		if !ok {
			return nil, fmt.Errorf("unknown default tag %q", cfg.DefaultTag)
		}
		defaultTag = tag
	}

	if len(cfg.Rules) == 0 {
		return New(DefaultRules(), defaultTag), nil
	}

	rules := make([]Rule, 0, len(cfg.Rules))
	for i, r := range cfg.Rules {
		tag, ok := content.ParseTag(r.Tag)
		if !ok {
			return nil, fmt.Errorf("rule %d: unknown tag %q", i, r.Tag)
		}
		rules = append(rules, Rule{Tag: tag, Keywords: r.Keywords})
	}
	return New(rules, defaultTag), nil
}

func (c *Classifier) Classify(text string) content.Tag {
	lowered := strings.ToLower(text)
	if strings.TrimSpace(lowered) == "" {
		return c.defaultTag
	}
	for _, r := range c.rules {
		for _, kw := range r.Keywords {
			if strings.Contains(lowered, kw) {
				return r.Tag
			}
		}
	}
	return c.defaultTag
}

func (c *Classifier) DefaultTag() content.Tag {
	return c.defaultTag
}

func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	for i, r := range c.rules {
		out[i] = Rule{Tag: r.Tag, Keywords: append([]string(nil), r.Keywords...)}
	}
	return out
}
