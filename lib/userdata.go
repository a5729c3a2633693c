package lib

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"
)

//go:embed templates/user-data.sh
var defaultUserData string

type UserData struct {
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Command   string
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// RenderUserData fills the init script template, the embedded default when
// tmpl is empty.
func RenderUserData(tmpl string, data UserData) (string, error) {
	if data.Bucket == "" {
		return "", fmt.Errorf("user data needs a bucket")
	}
	if data.Command == "" {
		return "", fmt.Errorf("user data needs a command")
	}
	if tmpl == "" {
		tmpl = defaultUserData
	}
	t, err := template.New("user-data").
		Funcs(template.FuncMap{"quote": shellQuote}).
		Option("missingkey=error").
		Parse(tmpl)
	if err != nil {
		Logger.Println("error:", err)
		return "", err
	}
	var buf bytes.Buffer
	err = t.Execute(&buf, data)
	if err != nil {
		Logger.Println("error:", err)
		return "", err
	}
	return buf.String(), nil
}

// ReadUserDataTemplate returns "" for an empty path so the default applies.
func ReadUserDataTemplate(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		Logger.Println("error:", err)
		return "", err
	}
	return string(data), nil
}
