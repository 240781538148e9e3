package console

import (
	"io"
	"strings"

	"github.com/chzyer/readline"
)

const (
	Yes = "y"
	No  = "n"
)

// the first option is the default
var yesNoConstraints = []string{No, Yes}

// YesOrNo asks a question answered with y or n. Anything else, including an
// empty line, means no.
func YesOrNo(question string) (string, error) {
	return Prompt(question, yesNoConstraints...)
}

func Prompt(question string, constraints ...string) (string, error) {
	rl, err := readline.New(promptText(question, constraints...))
	if err != nil {
		return "", err
	}
	defer rl.Close()
	response, err := rl.Readline()
	if err != nil {
		if err == io.EOF || err == readline.ErrInterrupt {
			if len(constraints) > 0 {
				return constraints[0], nil
			}
		}
		return "", err
	}
	return match(response, constraints...), nil
}

func promptText(question string, constraints ...string) string {
	if len(constraints) == 0 {
		return question + " "
	}
	var prompt strings.Builder
	prompt.WriteString(question)
	prompt.WriteString(" [")
	prompt.WriteString(strings.ToUpper(constraints[0]))
	for i := 1; i < len(constraints); i++ {
		prompt.WriteString("/")
		prompt.WriteString(constraints[i])
	}
	prompt.WriteString("]: ")
	return prompt.String()
}

// match returns the constraint equal to response or the default.
func match(response string, constraints ...string) string {
	if len(constraints) == 0 {
		return response
	}
	normalized := strings.ToLower(strings.TrimSpace(response))
	for _, c := range constraints {
		if normalized == c {
			return normalized
		}
	}
	// return default on no input or no match
	return constraints[0]
}
