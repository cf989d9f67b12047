// Package template models immutable workflow graph definitions. Templates are
// imported once and duplicated per tenant; nothing in this service mutates a
// stored template.
package template

import "time"

// CredentialRef points a node at an engine-side credential object.
type CredentialRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Node is one step in a workflow graph. Parameters stay schemaless because
// their shape is owned by the engine's node implementations; everything this
// service inspects (type, webhook path, credentials) is typed.
type Node struct {
	ID          string                   `json:"id,omitempty"`
	Name        string                   `json:"name"`
	Type        string                   `json:"type"`
	TypeVersion float64                  `json:"typeVersion,omitempty"`
	Position    []float64                `json:"position,omitempty"`
	Parameters  map[string]interface{}   `json:"parameters,omitempty"`
	Credentials map[string]CredentialRef `json:"credentials,omitempty"`
}

// Workflow is an immutable workflow definition: ordered node list plus the
// connection graph and engine settings.
type Workflow struct {
	ID          string                 `json:"id,omitempty"`
	Name        string                 `json:"name"`
	Nodes       []Node                 `json:"nodes"`
	Connections map[string]interface{} `json:"connections,omitempty"`
	Settings    map[string]interface{} `json:"settings,omitempty"`
	CreatedAt   time.Time              `json:"created_at,omitempty"`
}

// CloneNodes returns a deep-enough copy of the node list for safe mutation:
// credential maps are fresh, parameter maps are shared (never written).
func (w Workflow) CloneNodes() []Node {
	nodes := make([]Node, len(w.Nodes))
	copy(nodes, w.Nodes)
	for i := range nodes {
		if nodes[i].Credentials != nil {
			creds := make(map[string]CredentialRef, len(nodes[i].Credentials))
			for k, v := range nodes[i].Credentials {
				creds[k] = v
			}
			nodes[i].Credentials = creds
		}
	}
	return nodes
}
