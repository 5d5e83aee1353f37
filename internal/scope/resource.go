package scope

// ResourceRecord describes one MCP resource or resource template.
type ResourceRecord struct {
	Name        string
	ID          string
	URITemplate string
	MIMEType    string
	Read        func() ([]byte, error)
}

// ResourceRegistry is the spec 3/4.2 resource registry.
type ResourceRegistry struct {
	*Registry[*ResourceRecord]
}

// NewResourceRegistry constructs an empty ResourceRegistry.
func NewResourceRegistry() *ResourceRegistry {
	return &ResourceRegistry{Registry: NewRegistry[*ResourceRecord]()}
}

func (r *ResourceRegistry) adoptFrom(child *ResourceRegistry, parentID string) {
	for _, e := range child.List() {
		qname := QualifiedName(parentID, e.QualifiedName)
		rec := *e.Value
		rec.ID = qname
		r.Upsert(&Entry[*ResourceRecord]{
			Name:          e.Name,
			QualifiedName: qname,
			DependsOn:     e.DependsOn,
			Value:         &rec,
			Ready:         e.Ready,
		})
	}
}

// PromptRecord describes one MCP prompt.
type PromptRecord struct {
	Name     string
	ID       string
	Template string
	Render   func(args map[string]string) (string, error)
}

// PromptRegistry is the spec 3/4.2 prompt registry.
type PromptRegistry struct {
	*Registry[*PromptRecord]
}

// NewPromptRegistry constructs an empty PromptRegistry.
func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{Registry: NewRegistry[*PromptRecord]()}
}

func (p *PromptRegistry) adoptFrom(child *PromptRegistry, parentID string) {
	for _, e := range child.List() {
		qname := QualifiedName(parentID, e.QualifiedName)
		rec := *e.Value
		rec.ID = qname
		p.Upsert(&Entry[*PromptRecord]{
			Name:          e.Name,
			QualifiedName: qname,
			DependsOn:     e.DependsOn,
			Value:         &rec,
			Ready:         e.Ready,
		})
	}
}
