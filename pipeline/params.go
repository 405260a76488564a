package pipeline

// Field names one slot of the Params record.
type Field string

const (
	FieldCloudServiceName                Field = "cloud_service_name"
	FieldPublicDocumentation             Field = "public_documentation"
	FieldInternalSecurityRecommendations Field = "internal_security_recommendations"
	FieldSecurityRecommendations         Field = "security_recommendations"
	FieldAzurePolicy                     Field = "azure_policy"
	FieldTerraformCode                   Field = "terraform_code"
)

// Valid reports whether f is a known field.
func (f Field) Valid() bool {
	switch f {
	case FieldCloudServiceName, FieldPublicDocumentation, FieldInternalSecurityRecommendations,
		FieldSecurityRecommendations, FieldAzurePolicy, FieldTerraformCode:
		return true
	}
	return false
}

// Params is the record carried from step to step. It is a value type: With
// and WithError return modified copies and never touch the receiver.
type Params struct {
	CloudServiceName                string `json:"cloud_service_name"`
	PublicDocumentation             string `json:"public_documentation,omitempty"`
	InternalSecurityRecommendations string `json:"internal_security_recommendations,omitempty"`
	SecurityRecommendations         string `json:"security_recommendations,omitempty"`
	AzurePolicy                     string `json:"azure_policy,omitempty"`
	TerraformCode                   string `json:"terraform_code,omitempty"`
	ErrorMessage                    string `json:"error_message,omitempty"`
}

// NewParams seeds a record with the cloud service name.
func NewParams(cloudServiceName string) Params {
	return Params{CloudServiceName: cloudServiceName}
}

// Get returns the value of f (empty for unknown fields).
func (p Params) Get(f Field) string {
	switch f {
	case FieldCloudServiceName:
		return p.CloudServiceName
	case FieldPublicDocumentation:
		return p.PublicDocumentation
	case FieldInternalSecurityRecommendations:
		return p.InternalSecurityRecommendations
	case FieldSecurityRecommendations:
		return p.SecurityRecommendations
	case FieldAzurePolicy:
		return p.AzurePolicy
	case FieldTerraformCode:
		return p.TerraformCode
	}
	return ""
}

// With returns a copy of p with f set to v. Unknown fields leave the copy
// unchanged.
func (p Params) With(f Field, v string) Params {
	switch f {
	case FieldCloudServiceName:
		p.CloudServiceName = v
	case FieldPublicDocumentation:
		p.PublicDocumentation = v
	case FieldInternalSecurityRecommendations:
		p.InternalSecurityRecommendations = v
	case FieldSecurityRecommendations:
		p.SecurityRecommendations = v
	case FieldAzurePolicy:
		p.AzurePolicy = v
	case FieldTerraformCode:
		p.TerraformCode = v
	}
	return p
}

// WithError returns a copy of p carrying msg as error message.
func (p Params) WithError(msg string) Params {
	p.ErrorMessage = msg
	return p
}

// Values returns the given fields keyed by name, the data a step's task
// template is rendered with.
func (p Params) Values(fields ...Field) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[string(f)] = p.Get(f)
	}
	return out
}
