package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	"squadkeeper.io/keeper/internal/domain"
)

// BuildPayload renders a template for one tenant. "{{key}}" placeholders in
// member config strings are replaced from the runtime context; unknown
// placeholders are left untouched.
func BuildPayload(tpl *domain.Template, rc *domain.RuntimeContext) (*domain.ProvisionPayload, error) {
	vars := placeholderVars(tpl, rc)

	members := tpl.MemberConfigs
	if len(members) > 0 {
		var tree interface{}
		if err := json.Unmarshal(members, &tree); err != nil {
			return nil, fmt.Errorf("decode member configs of %s: %w", tpl.Ref(), err)
		}
		rendered, err := json.Marshal(substitute(tree, vars))
		if err != nil {
			return nil, fmt.Errorf("encode member configs of %s: %w", tpl.Ref(), err)
		}
		members = rendered
	} else {
		members = json.RawMessage("[]")
	}

	meta := map[string]string{
		"template_id": tpl.ID,
		"managed_by":  "squadkeeper",
	}
	if len(rc.KnowledgeIDs) > 0 {
		meta["knowledge_ids"] = strings.Join(rc.KnowledgeIDs, ",")
	}

	return &domain.ProvisionPayload{
		Name:            fmt.Sprintf("%s - %s", rc.DisplayName, displayNameOf(tpl)),
		AccountID:       rc.AccountID,
		TemplateName:    tpl.Name,
		TemplateVersion: tpl.Version,
		Members:         members,
		Metadata:        meta,
	}, nil
}

func displayNameOf(tpl *domain.Template) string {
	if tpl.DisplayName != "" {
		return tpl.DisplayName
	}
	return tpl.Name
}

func placeholderVars(tpl *domain.Template, rc *domain.RuntimeContext) map[string]string {
	vars := make(map[string]string, len(rc.Variables)+5)
	for k, v := range rc.Variables {
		vars[k] = v
	}
	vars["account_id"] = rc.AccountID
	vars["display_name"] = rc.DisplayName
	vars["contact_number"] = rc.ContactNumber
	vars["template_name"] = tpl.Name
	vars["template_version"] = tpl.Version
	return vars
}

func substitute(node interface{}, vars map[string]string) interface{} {
	switch v := node.(type) {
	case string:
		return render(v, vars)
	case []interface{}:
		for i := range v {
			v[i] = substitute(v[i], vars)
		}
		return v
	case map[string]interface{}:
		for k := range v {
			v[k] = substitute(v[k], vars)
		}
		return v
	default:
		return v
	}
}

func render(s string, vars map[string]string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	var b strings.Builder
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			b.WriteString(s)
			return b.String()
		}
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			b.WriteString(s)
			return b.String()
		}
		end += start
		key := strings.TrimSpace(s[start+2 : end])
		b.WriteString(s[:start])
		if val, ok := vars[key]; ok {
			b.WriteString(val)
		} else {
			b.WriteString(s[start : end+2])
		}
		s = s[end+2:]
	}
}
