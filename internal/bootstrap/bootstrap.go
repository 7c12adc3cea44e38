// Package bootstrap renders the instance user-data script. The script content
// itself is an opaque collaborator; this package only fills in the environment
// parameters and produces the base64 form the launch template expects.
package bootstrap

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"fmt"
	"text/template"
)

//go:embed userdata.sh.tmpl
var userdataTemplate string

// DefaultPort is the port the bootstrapped service listens on. The target
// group health check and the security group rules assume it.
const DefaultPort = 80

// Params parameterize the user-data script.
type Params struct {
	Environment string
	Port        int
	Bucket      string
}

// Render produces the user-data script for the given parameters.
func Render(p Params) (string, error) {
	if p.Port == 0 {
		p.Port = DefaultPort
	}
	tmpl, err := template.New("userdata").Parse(userdataTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse user-data template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("failed to render user-data: %w", err)
	}
	return buf.String(), nil
}

// RenderBase64 renders the script base64-encoded, as the EC2 launch template
// API requires.
func RenderBase64(p Params) (string, error) {
	script, err := Render(p)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString([]byte(script)), nil
}
