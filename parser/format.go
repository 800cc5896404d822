package parser

import "strings"

// Format renders a job spec back to a command line, as typed. It is used for
// job listings and notices.
func Format(spec *JobSpec) string {
	var result strings.Builder

	for i, stage := range spec.Stages {
		if i > 0 {
			result.WriteString(" | ")
		}
		result.WriteString(formatStage(stage))
	}

	// Add & symbol if the entire pipeline runs in the background
	if spec.Background {
		result.WriteString(" &")
	}

	return result.String()
}

func formatStage(stage *Stage) string {
	var result strings.Builder

	result.WriteString(rawWord(stage.Name))
	for _, arg := range stage.Args {
		result.WriteString(" ")
		result.WriteString(rawWord(arg))
	}
	if stage.Input != nil {
		result.WriteString(" < ")
		result.WriteString(rawWord(stage.Input.Target))
	}
	if stage.Output != nil {
		if stage.Output.Append {
			result.WriteString(" >> ")
		} else {
			result.WriteString(" > ")
		}
		result.WriteString(rawWord(stage.Output.Target))
	}

	return result.String()
}

func rawWord(w *Word) string {
	if w == nil {
		return ""
	}
	if w.Raw != "" {
		return w.Raw
	}
	return w.String()
}
