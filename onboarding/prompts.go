package onboarding

const internalInstruction = `You are a cloud security analyst. Search the organisation's internal security
guidance for the cloud service you are given and report every control,
baseline setting and known exception that applies to it. Quote the source
documents. Say so plainly when nothing internal exists.`

const internalTask = `Retrieve the internal security recommendations for {{.cloud_service_name}}.`

const publicInstruction = `You are a cloud security researcher. Find the vendor's public security
documentation for the cloud service you are given: the security baseline,
network isolation, identity, encryption and logging options. Cite every
source with its URL.`

const publicTask = `Retrieve the public security documentation for {{.cloud_service_name}}.

Our internal recommendations, for context:
{{quote .internal_security_recommendations}}`

const recommendInstruction = `You are a cloud security architect. Combine internal guidance and public
documentation into a prioritised list of security recommendations for the
cloud service. Every recommendation names the setting to change and the
reason. Internal guidance wins where the sources disagree.`

const recommendTask = `Make security recommendations for {{.cloud_service_name}}.

Internal security recommendations:
{{quote .internal_security_recommendations}}

Public documentation:
{{quote .public_documentation}}`

const policyInstruction = `You build Azure Policy definitions. Produce a single policy definition in
JSON that enforces the recommendations for the cloud service and can be
dropped into a Terraform module. Return the JSON in one fenced json code
block followed by a short explanation.`

const policyTask = `Build an Azure Policy for {{.cloud_service_name}}.

Public documentation:
{{quote .public_documentation}}

Internal security recommendations:
{{quote .internal_security_recommendations}}`

const terraformInstruction = `You write Terraform for Azure. Produce a module using the azurerm provider
that deploys the cloud service with the recommended security settings and
assigns the given Azure Policy. Return the code in one fenced hcl code block
followed by a short explanation.`

const terraformTask = `Write Terraform for {{.cloud_service_name}}.

Public documentation:
{{quote .public_documentation}}

Internal security recommendations:
{{quote .internal_security_recommendations}}

Azure Policy:
{{quote .azure_policy}}`
