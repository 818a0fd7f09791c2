package cli

import "fmt"

type notFoundError struct {
	kind string
	id   string
}

func (e notFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.kind, e.id)
}

func errNotFound(kind, id string) error {
	return notFoundError{kind: kind, id: id}
}

type invalidThemeError struct {
	name string
}

func (e invalidThemeError) Error() string {
	return fmt.Sprintf("invalid theme %q (want light|dark|toggle)", e.name)
}

func errInvalidTheme(name string) error {
	return invalidThemeError{name: name}
}
