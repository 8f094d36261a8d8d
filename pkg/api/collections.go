package api

// CollectionConfig represents request to create a collection: a named,
// reusable bundle of task configurations a submission can reference instead
// of spelling its tasks out inline.
type CollectionConfig struct {
	Name        string   `json:"name" validate:"required"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Tasks       TaskMap  `json:"tasks"`
}

// CollectionResource represents collection resource
type CollectionResource struct {
	Resource Resource `json:"resource"`
	Type     string   `json:"type" enum:"system,owned"`
	CollectionConfig
}

// CollectionResourceList represents list of collection resources with pagination
type CollectionResourceList struct {
	Page
	Items []CollectionResource `json:"items"`
}
