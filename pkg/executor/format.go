package executor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/harun/recondora/pkg/registry"
)

// ErrInvalidResponse is returned when a structured response does not decode.
var ErrInvalidResponse = errors.New("the API returned an invalid response")

const allowUnspecified = "Not specified (OPTIONS may not be enabled)"

// formatResponse turns a successful response into report text. body is
// already trimmed and valid UTF-8.
func formatResponse(format registry.Format, resp *http.Response, body string) (string, error) {
	switch format {
	case registry.FormatJSON:
		return formatJSON(body), nil
	case registry.FormatCrtsh:
		return formatCrtsh(body)
	case registry.FormatTechnologies:
		return formatTechnologies(body)
	case registry.FormatEmails:
		return formatEmails(body)
	case registry.FormatAllowHeader:
		allow := resp.Header.Get("Allow")
		if allow == "" {
			allow = allowUnspecified
		}
		return fmt.Sprintf("Allow: %s\nStatus: %d", allow, resp.StatusCode), nil
	default:
		return body, nil
	}
}

// formatJSON indents a JSON body and leaves anything else untouched.
func formatJSON(body string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(body), "", "  "); err != nil {
		return body
	}
	return buf.String()
}

type crtshEntry struct {
	NameValue string `json:"name_value"`
}

// formatCrtsh lists the sorted unique names of a crt.sh JSON search. Each
// name_value may hold several names separated by newlines; wildcard names
// are dropped.
func formatCrtsh(body string) (string, error) {
	if body == "" {
		return "", nil
	}

	var entries []crtshEntry
	if err := json.Unmarshal([]byte(body), &entries); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	seen := make(map[string]struct{})
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		for _, name := range strings.Split(entry.NameValue, "\n") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" || strings.HasPrefix(name, "*.") {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}

type technology struct {
	Name       string `json:"name"`
	Version    any    `json:"version"`
	Categories []struct {
		Name string `json:"name"`
	} `json:"categories"`
}

// formatTechnologies prints one line per category, sorted, listing the
// technologies whose first category it is.
func formatTechnologies(body string) (string, error) {
	var resp struct {
		Technologies []technology `json:"technologies"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	byCategory := make(map[string][]string)
	for _, tech := range resp.Technologies {
		if len(tech.Categories) == 0 || tech.Name == "" {
			continue
		}
		name := tech.Name
		if tech.Version != nil {
			if v := fmt.Sprint(tech.Version); v != "" {
				name += " (v" + v + ")"
			}
		}
		category := tech.Categories[0].Name
		byCategory[category] = append(byCategory[category], name)
	}

	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	lines := make([]string, 0, len(categories))
	for _, c := range categories {
		lines = append(lines, c+": "+strings.Join(byCategory[c], ", "))
	}
	return strings.Join(lines, "\n"), nil
}

// formatEmails numbers the addresses of a {"status": "Good", "result": [...]}
// response. A "Bad" status is the upstream rejecting the query.
func formatEmails(body string) (string, error) {
	var resp struct {
		Status string          `json:"status"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	switch resp.Status {
	case "Good":
		var emails []string
		if err := json.Unmarshal(resp.Result, &emails); err != nil {
			return "", fmt.Errorf("%w: result is not a list of addresses", ErrInvalidResponse)
		}
		lines := make([]string, len(emails))
		for i, email := range emails {
			lines[i] = fmt.Sprintf("%d. %s", i+1, email)
		}
		return strings.Join(lines, "\n"), nil
	case "Bad":
		var reason string
		if err := json.Unmarshal(resp.Result, &reason); err != nil {
			reason = string(resp.Result)
		}
		return "", errors.New(reason)
	default:
		return "", fmt.Errorf("%w: unexpected status %q", ErrInvalidResponse, resp.Status)
	}
}
