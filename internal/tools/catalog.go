package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/codefionn/flowpilot/internal/llm"
)

// CatalogBackend serves read-only lookups against the built-in template and
// connector catalogs. It backs the "templates" and "connectors" prefixes.
type CatalogBackend struct{}

// NewCatalogBackend creates the catalog backend
func NewCatalogBackend() *CatalogBackend {
	return &CatalogBackend{}
}

var workflowTemplates = map[string]string{
	"invoice-approval":   "Route incoming invoices through reviewer approval with an amount threshold",
	"employee-onboarding": "Provision accounts and schedule orientation for a new hire",
	"lead-routing":       "Assign inbound leads to sales reps by region and availability",
	"expense-report":     "Collect receipts, validate totals and forward to finance",
	"incident-triage":    "Classify incoming incidents and page the on-call owner",
}

var connectorCatalog = map[string]string{
	"email":      "available",
	"slack":      "available",
	"salesforce": "available",
	"jira":       "available",
	"sheets":     "available",
	"sap":        "planned",
	"workday":    "planned",
}

func (b *CatalogBackend) Execute(_ context.Context, tool string, args map[string]interface{}) (string, error) {
	switch tool {
	case "templates.search":
		query, _ := args["query"].(string)
		return b.searchTemplates(query), nil
	case "connectors.lookup":
		name, _ := args["name"].(string)
		if strings.TrimSpace(name) == "" {
			return "", fmt.Errorf("missing required parameter \"name\"")
		}
		return b.lookupConnector(name), nil
	default:
		return "", fmt.Errorf("unknown catalog tool %q", tool)
	}
}

func (b *CatalogBackend) searchTemplates(query string) string {
	query = strings.ToLower(strings.TrimSpace(query))

	var names []string
	for name := range workflowTemplates {
		if query == "" || strings.Contains(name, query) ||
			strings.Contains(strings.ToLower(workflowTemplates[name]), query) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "No templates match " + query
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		fmt.Fprintf(&sb, "%s - %s\n", name, workflowTemplates[name])
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func (b *CatalogBackend) lookupConnector(name string) string {
	status, ok := connectorCatalog[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return fmt.Sprintf("Connector %q is not in the catalog", name)
	}
	return fmt.Sprintf("Connector %q is %s", name, status)
}

// DefaultRegistry builds a registry with the catalog backend and its tool
// declarations wired in.
func DefaultRegistry() *Registry {
	registry := NewRegistry()
	backend := NewCatalogBackend()
	registry.RegisterBackend("templates", backend)
	registry.RegisterBackend("connectors", backend)

	registry.Declare(llmToolSpec("templates.search",
		"Search the built-in workflow template catalog",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Free-text filter over template names and descriptions",
				},
			},
		}))
	registry.Declare(llmToolSpec("connectors.lookup",
		"Check whether a named integration connector is available",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Connector name, for example slack or salesforce",
				},
			},
			"required": []string{"name"},
		}))

	return registry
}

func llmToolSpec(name, description string, parameters map[string]interface{}) llm.ToolSpec {
	return llm.ToolSpec{Name: name, Description: description, Parameters: parameters}
}
