package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/supervisor.txt
	supervisorRaw string

	//go:embed template/analyzer.txt
	analyzerRaw string

	//go:embed template/writer.txt
	writerRaw string

	//go:embed template/classifier.txt
	classifierRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Supervisor string
	Analyzer   string
	Writer     string
	Classifier string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Supervisor: strings.TrimSpace(supervisorRaw),
		Analyzer:   strings.TrimSpace(analyzerRaw),
		Writer:     strings.TrimSpace(writerRaw),
		Classifier: strings.TrimSpace(classifierRaw),
	}
}
