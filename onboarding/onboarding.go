package onboarding

import (
	"fmt"

	"github.com/hupe1980/secboard/agent"
	"github.com/hupe1980/secboard/pipeline"
)

// PipelineName names the onboarding pipeline in logs and traces.
const PipelineName = "cloud-service-onboarding"

// DefaultAgentName is the agent every step calls unless overridden.
const DefaultAgentName = "cloud-security-agent"

// Step names.
const (
	StepRetrieveInternalSecurityRecommendations = "RetrieveInternalSecurityRecommendations"
	StepRetrievePublicDocumentation             = "RetrievePublicDocumentation"
	StepMakeSecurityRecommendations             = "MakeSecurityRecommendations"
	StepBuildAzurePolicy                        = "BuildAzurePolicy"
	StepWriteTerraform                          = "WriteTerraform"
)

// File names of the generated artifacts.
const (
	PolicyFileName    = "azure-policy.json"
	TerraformFileName = "main.tf"
)

// Prompt is the instruction and task template of one step. Empty values keep
// the defaults.
type Prompt struct {
	Instruction string `yaml:"instruction"`
	Task        string `yaml:"task"`
}

// Options configures Build.
type Options struct {
	// AgentName is the registry entry used by steps without an entry in Agents.
	AgentName string
	// Agents maps step names to agent names.
	Agents map[string]string
	// Prompts maps step names to prompt overrides.
	Prompts map[string]Prompt
	// DisableFiles stops BuildAzurePolicy and WriteTerraform from storing
	// their output as files.
	DisableFiles bool
}

type stepSpec struct {
	name   string
	title  string
	inputs []pipeline.Field
	output pipeline.Field
	prompt Prompt
	file   *pipeline.FileOutput
}

func stepSpecs() []stepSpec {
	return []stepSpec{
		{
			name:   StepRetrieveInternalSecurityRecommendations,
			title:  "Internal security recommendations",
			inputs: []pipeline.Field{pipeline.FieldCloudServiceName},
			output: pipeline.FieldInternalSecurityRecommendations,
			prompt: Prompt{
				Instruction: internalInstruction,
				Task:        internalTask,
			},
		},
		{
			name:  StepRetrievePublicDocumentation,
			title: "Public documentation",
			inputs: []pipeline.Field{
				pipeline.FieldCloudServiceName,
				pipeline.FieldInternalSecurityRecommendations,
			},
			output: pipeline.FieldPublicDocumentation,
			prompt: Prompt{
				Instruction: publicInstruction,
				Task:        publicTask,
			},
		},
		{
			name:  StepMakeSecurityRecommendations,
			title: "Security recommendations",
			inputs: []pipeline.Field{
				pipeline.FieldCloudServiceName,
				pipeline.FieldInternalSecurityRecommendations,
				pipeline.FieldPublicDocumentation,
			},
			output: pipeline.FieldSecurityRecommendations,
			prompt: Prompt{
				Instruction: recommendInstruction,
				Task:        recommendTask,
			},
		},
		{
			name:  StepBuildAzurePolicy,
			title: "Azure Policy",
			inputs: []pipeline.Field{
				pipeline.FieldCloudServiceName,
				pipeline.FieldPublicDocumentation,
				pipeline.FieldInternalSecurityRecommendations,
			},
			output: pipeline.FieldAzurePolicy,
			prompt: Prompt{
				Instruction: policyInstruction,
				Task:        policyTask,
			},
			file: &pipeline.FileOutput{
				Name:        PolicyFileName,
				ContentType: "application/json",
				Languages:   []string{"json"},
			},
		},
		{
			name:  StepWriteTerraform,
			title: "Terraform",
			inputs: []pipeline.Field{
				pipeline.FieldCloudServiceName,
				pipeline.FieldPublicDocumentation,
				pipeline.FieldInternalSecurityRecommendations,
				pipeline.FieldAzurePolicy,
			},
			output: pipeline.FieldTerraformCode,
			prompt: Prompt{
				Instruction: terraformInstruction,
				Task:        terraformTask,
			},
			file: &pipeline.FileOutput{
				Name:        TerraformFileName,
				ContentType: "text/plain",
				Languages:   []string{"hcl", "terraform", "tf"},
			},
		},
	}
}

// StepNames returns the step names in execution order.
func StepNames() []string {
	s := stepSpecs()
	names := make([]string, len(s))
	for i, ss := range s {
		names[i] = ss.name
	}
	return names
}

// Build resolves the agents from reg and returns the validated onboarding
// pipeline. The steps run in StepNames order; the first Error outcome halts
// the run.
func Build(reg *agent.Registry, optFns ...func(o *Options)) (*pipeline.Definition, error) {
	opts := Options{AgentName: DefaultAgentName}
	for _, fn := range optFns {
		fn(&opts)
	}

	for name := range opts.Prompts {
		if !isStep(name) {
			return nil, fmt.Errorf("prompt override for unknown step %q", name)
		}
	}
	for name := range opts.Agents {
		if !isStep(name) {
			return nil, fmt.Errorf("agent override for unknown step %q", name)
		}
	}

	b := pipeline.NewBuilder(PipelineName)

	var handles []*pipeline.StepHandle
	for _, ss := range stepSpecs() {
		agentName := opts.AgentName
		if n, ok := opts.Agents[ss.name]; ok && n != "" {
			agentName = n
		}

		a, err := reg.Get(agentName)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", ss.name, err)
		}

		prompt := ss.prompt
		if o, ok := opts.Prompts[ss.name]; ok {
			if o.Instruction != "" {
				prompt.Instruction = o.Instruction
			}
			if o.Task != "" {
				prompt.Task = o.Task
			}
		}

		step := &pipeline.Step{
			Name:        ss.name,
			Title:       ss.title,
			Instruction: prompt.Instruction,
			Task:        prompt.Task,
			Inputs:      ss.inputs,
			Output:      ss.output,
			Agent:       a,
		}
		if !opts.DisableFiles {
			step.File = ss.file
		}

		handles = append(handles, b.AddStep(step))
	}

	b.OnInputEvent(pipeline.StartEvent).SendTo(handles[0])
	for i, h := range handles {
		if i+1 < len(handles) {
			h.OnComplete().SendTo(handles[i+1])
		} else {
			h.OnComplete().Finish()
		}
		h.OnError().Halt()
	}

	return b.Build()
}

func isStep(name string) bool {
	for _, n := range StepNames() {
		if n == name {
			return true
		}
	}
	return false
}
