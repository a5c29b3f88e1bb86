package common

import (
	"encoding/json"
	"fmt"
	"os"
)

type CIResult struct {
	OK      bool     `json:"ok"`
	Title   string   `json:"title"`
	Details []string `json:"details,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// PrintCIResult writes a single JSON line to stdout for pipelines.
func PrintCIResult(ok bool, title string, details []string, err error) {
	res := CIResult{OK: ok, Title: title, Details: details}
	if err != nil {
		res.Error = err.Error()
	}
	b, mErr := json.Marshal(res)
	if mErr != nil {
		fmt.Fprintf(os.Stderr, "encode result: %v\n", mErr)
		return
	}
	fmt.Fprintln(os.Stdout, string(b))
}
