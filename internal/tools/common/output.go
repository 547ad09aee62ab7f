package common

import (
	"encoding/json"
	"fmt"
	"os"
)

// CIResult is the machine-readable outcome printed in --ci mode.
type CIResult struct {
	OK      bool     `json:"ok"`
	Title   string   `json:"title"`
	Details []string `json:"details,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func PrintCIResult(ok bool, title string, details []string, err error) {
	result := CIResult{OK: ok, Title: title, Details: details}
	if err != nil {
		result.Error = err.Error()
	}
	out, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		fmt.Fprintf(os.Stderr, "marshal ci result: %v\n", marshalErr)
		return
	}
	fmt.Println(string(out))
}
