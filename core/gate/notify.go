package gate

import (
	"fmt"
	"strings"

	"github.com/filegate/filegate/core/infra/config"
)

const (
	defaultBlockedTitle = "Download blocked"
	defaultWarningTitle = "Download warning"
)

// notification resolves the title/body for a decision: rule-supplied
// templates when present, otherwise a localized default parameterized with
// filename, referring page and final URL.
func notification(rule *config.Rule, action string, c *DecisionContext) (string, string) {
	if rule != nil && rule.Message != nil {
		title := renderTemplate(rule.Message.Title, c)
		body := renderTemplate(rule.Message.Body, c)
		if title != "" || body != "" {
			if title == "" {
				title = defaultTitle(action)
			}
			if body == "" {
				body = defaultBody(action, c)
			}
			return title, body
		}
	}
	return defaultTitle(action), defaultBody(action, c)
}

func defaultTitle(action string) string {
	if action == config.ActionNotify {
		return defaultWarningTitle
	}
	return defaultBlockedTitle
}

func defaultBody(action string, c *DecisionContext) string {
	verb := "was blocked by policy"
	if action == config.ActionNotify {
		verb = "was flagged by policy"
	}
	name := c.Filename
	if name == "" {
		name = c.URL
	}
	body := fmt.Sprintf("%q %s.", name, verb)
	if c.Referrer != "" {
		body += fmt.Sprintf(" Referring page: %s.", c.Referrer)
	}
	if c.URL != "" {
		body += fmt.Sprintf(" Source: %s.", c.URL)
	}
	return body
}

// renderTemplate substitutes {filename}, {url}, {referrer}, {hash} and
// {mime} tokens from the decision context.
func renderTemplate(tpl string, c *DecisionContext) string {
	if tpl == "" {
		return ""
	}
	r := strings.NewReplacer(
		"{filename}", c.Filename,
		"{url}", c.URL,
		"{referrer}", c.Referrer,
		"{hash}", c.Hash,
		"{mime}", c.Item.Mime,
	)
	return r.Replace(tpl)
}
