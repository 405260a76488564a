// Package onboarding declares the cloud service onboarding pipeline: five
// steps that gather internal and public security guidance for a cloud
// service, turn it into recommendations, an Azure Policy and a Terraform
// module.
//
//	reg, _ := agent.NewRegistry(agent.NewModelAgent(onboarding.DefaultAgentName, llm))
//	def, err := onboarding.Build(reg)
//	...
//	res, err := def.Bind(rc).Start(pipeline.NewParams("Azure Storage Account"))
package onboarding
