package gate

import (
	"path/filepath"
	"strings"

	"github.com/filegate/filegate/core/infra/config"
)

// DecisionContext is the ephemeral per-invocation view combining the host
// item's live fields with the bound transfer record. Record fields win for
// hash and inspection data; the referring page prefers the record's
// submitted value, falling back to the active tab URL snapshot carried on
// the lifecycle event.
type DecisionContext struct {
	Item     *DownloadItem
	Record   *TransferRecord
	Filename string
	URL      string
	Referrer string
	Hash     string
	Verdicts []string
}

func buildDecisionContext(item *DownloadItem, rec *TransferRecord, activeTabURL string) *DecisionContext {
	c := &DecisionContext{
		Item:     item,
		Record:   rec,
		Filename: filepath.Base(item.Filename),
		URL:      item.ResolvedURL(),
		Referrer: activeTabURL,
	}
	if c.Filename == "." || c.Filename == string(filepath.Separator) {
		c.Filename = ""
	}
	if rec != nil {
		if rec.ReferringPage != "" {
			c.Referrer = rec.ReferringPage
		}
		if rec.Hash != "" && rec.Hash != HashPending {
			c.Hash = rec.Hash
		}
		c.Verdicts = inspectionVerdicts(rec.Inspection)
	}
	return c
}

func (c *DecisionContext) policyInput() config.DecisionInput {
	return config.DecisionInput{
		Filename:  c.Filename,
		Extension: strings.ToLower(filepath.Ext(c.Filename)),
		URL:       c.URL,
		Mime:      c.Item.Mime,
		Referrer:  c.Referrer,
		Hash:      c.Hash,
		Verdicts:  c.Verdicts,
	}
}

// inspectionVerdicts extracts scanner verdicts from the opaque inspection
// payload: a top-level "verdict" string plus per-finding "verdict" values.
func inspectionVerdicts(inspection map[string]any) []string {
	if inspection == nil {
		return nil
	}
	var out []string
	if v, ok := inspection["verdict"].(string); ok && v != "" {
		out = append(out, v)
	}
	findings, ok := inspection[findingsField].([]any)
	if !ok {
		return out
	}
	for _, f := range findings {
		entry, ok := f.(map[string]any)
		if !ok {
			continue
		}
		if v, ok := entry["verdict"].(string); ok && v != "" {
			out = append(out, v)
		}
	}
	return out
}
