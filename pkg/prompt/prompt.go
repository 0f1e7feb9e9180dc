// Package prompt provides the interactive terminal prompts used while
// negotiating a migration.
package prompt

import (
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/lineagedb/lineage/pkg/migrations"
	"github.com/pkg/errors"
)

// Choice is the user's answer to a proposed migration step.
type Choice int

const (
	// Yes accepts the proposed step.
	Yes Choice = iota

	// No rejects it and asks the engine for an alternative.
	No

	// List prints the proposed statements again.
	List

	// Confirmed prints every statement accepted so far.
	Confirmed

	// Back undoes the previously accepted step.
	Back

	// Split stops here and saves the confirmed steps as one migration,
	// leaving the rest for a later one.
	Split

	// Quit abandons the session without saving anything.
	Quit
)

var choiceOptions = []string{
	"yes - apply this step",
	"no - reject and ask for an alternative",
	"list - show the proposed statements",
	"confirmed - show the statements accepted so far",
	"back - undo the last accepted step",
	"split - save confirmed steps and stop here",
	"quit - abandon without saving",
}

// Prompter is the interactive surface the negotiation session talks to.
// Tests substitute a scripted implementation.
type Prompter interface {
	// Choice asks what to do with a proposed step.
	Choice(question string) (Choice, error)

	// Expression collects an EdgeQL expression for a placeholder. The
	// default may be empty when no heuristic applies.
	Expression(name, question, deflt string) (string, error)

	// Confirm asks a yes/no question.
	Confirm(question string, deflt bool) (bool, error)
}

// Survey is the terminal Prompter.
type Survey struct{}

var _ Prompter = (*Survey)(nil)

// New creates a terminal Prompter.
func New() *Survey {
	return &Survey{}
}

// Choice implements Prompter.
func (s *Survey) Choice(question string) (Choice, error) {
	var index int
	err := survey.AskOne(&survey.Select{
		Message: question,
		Options: choiceOptions,
	}, &index)
	if err != nil {
		return Quit, errors.Wrap(err, "failed to read choice")
	}

	return Choice(index), nil
}

// Expression implements Prompter. The answer must be a non-empty,
// tokenizable expression; anything else re-prompts.
func (s *Survey) Expression(name, question, deflt string) (string, error) {
	var answer string
	err := survey.AskOne(&survey.Input{
		Message: question,
		Default: deflt,
	}, &answer, survey.WithValidator(validExpression))
	if err != nil {
		return "", errors.Wrapf(err, "failed to read expression for %s", name)
	}

	return strings.TrimSpace(answer), nil
}

// Confirm implements Prompter.
func (s *Survey) Confirm(question string, deflt bool) (bool, error) {
	var answer bool
	err := survey.AskOne(&survey.Confirm{
		Message: question,
		Default: deflt,
	}, &answer)
	if err != nil {
		return false, errors.Wrap(err, "failed to read confirmation")
	}

	return answer, nil
}

func validExpression(ans any) error {
	text, _ := ans.(string)
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("expression must not be empty")
	}

	tokens, err := migrations.Tokenize(text)
	if err != nil {
		return errors.New("value must be a valid expression")
	}
	if len(tokens) == 0 {
		return errors.New("expression must not be empty")
	}

	return nil
}
