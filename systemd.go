package main

import (
	_ "embed"
	"io"
	"os"
	"path/filepath"
	"text/template"
)

//go:embed pinloop.service
var pinloopServiceEmbed string

var serviceTemplate = template.Must(template.New("pinloop.service").Parse(pinloopServiceEmbed))

type ServiceParams struct {
	BinaryPath       string
	WorkingDirectory string
	User             string
	Demo             string
}

// WriteServiceFile renders a unit file that runs this binary.
func WriteServiceFile(w io.Writer, params ServiceParams) error {
	return serviceTemplate.Execute(w, params)
}

func SystemdServiceFile(demo string) error {
	path, err := os.Executable()
	if err != nil {
		return err
	}
	return WriteServiceFile(os.Stdout, ServiceParams{
		BinaryPath:       path,
		WorkingDirectory: filepath.Dir(path),
		User:             "pi",
		Demo:             demo,
	})
}
