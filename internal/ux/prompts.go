package ux

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm prompts the user for yes/no confirmation
func Confirm(message string, defaultYes bool) bool {
	prompt := message
	if defaultYes {
		prompt += " (Y/n): "
	} else {
		prompt += " (y/N): "
	}
	fmt.Print(prompt)

	response, err := readLine(os.Stdin)
	if err != nil || response == "" {
		return defaultYes
	}

	response = strings.ToLower(response)
	return response == "y" || response == "yes"
}

// PromptForSecret prompts for a credential value on stdin. The value is
// read as a plain line, so it also works when piped in.
func PromptForSecret(message string) (string, error) {
	fmt.Printf("%s: ", message)

	secret, err := readLine(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	if secret == "" {
		return "", fmt.Errorf("empty value")
	}
	return secret, nil
}
